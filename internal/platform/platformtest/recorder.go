// Package platformtest provides an in-memory transport for tests.
package platformtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ent0n29/handoff/internal/platform"
)

var ErrInjected = errors.New("injected delivery failure")

// Delivery is one recorded outbound call. Message is set for forwards.
type Delivery struct {
	To      platform.Address
	Text    string
	Message *platform.Message
}

// Recorder records deliveries and fails those aimed at configured addresses.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	failTo     map[platform.Address]int
	failText   []string
}

func NewRecorder() *Recorder {
	return &Recorder{failTo: make(map[platform.Address]int)}
}

// FailTo makes the next n deliveries to addr fail. n < 0 fails forever.
func (r *Recorder) FailTo(addr platform.Address, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failTo[addr] = n
}

// FailText fails every text delivery containing substr.
func (r *Recorder) FailText(substr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failText = append(r.failText, substr)
}

func (r *Recorder) SendText(_ context.Context, to platform.Address, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.failText {
		if strings.Contains(text, sub) {
			return ErrInjected
		}
	}
	if r.shouldFail(to) {
		return ErrInjected
	}
	r.deliveries = append(r.deliveries, Delivery{To: to, Text: text})
	return nil
}

func (r *Recorder) Forward(_ context.Context, to platform.Address, msg platform.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shouldFail(to) {
		return ErrInjected
	}
	m := msg
	r.deliveries = append(r.deliveries, Delivery{To: to, Message: &m})
	return nil
}

func (r *Recorder) shouldFail(to platform.Address) bool {
	n, ok := r.failTo[to]
	if !ok || n == 0 {
		return false
	}
	if n > 0 {
		r.failTo[to] = n - 1
	}
	return true
}

// Deliveries returns everything recorded so far.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// TextsTo returns the texts delivered to addr in order.
func (r *Recorder) TextsTo(addr platform.Address) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, d := range r.deliveries {
		if d.To == addr && d.Message == nil {
			out = append(out, d.Text)
		}
	}
	return out
}

// LastTextTo returns the most recent text delivered to addr.
func (r *Recorder) LastTextTo(addr platform.Address) string {
	texts := r.TextsTo(addr)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// ForwardsTo returns the messages forwarded to addr.
func (r *Recorder) ForwardsTo(addr platform.Address) []platform.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []platform.Message
	for _, d := range r.deliveries {
		if d.To == addr && d.Message != nil {
			out = append(out, *d.Message)
		}
	}
	return out
}

// Reset drops recorded deliveries; failure rules are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}
