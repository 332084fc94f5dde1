package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ent0n29/handoff/internal/platform"
)

type stubTransport struct {
	err      error
	texts    []string
	forwards []platform.Message
}

func (s *stubTransport) SendText(_ context.Context, _ platform.Address, text string) error {
	if s.err != nil {
		return s.err
	}
	s.texts = append(s.texts, text)
	return nil
}

func (s *stubTransport) Forward(_ context.Context, _ platform.Address, msg platform.Message) error {
	if s.err != nil {
		return s.err
	}
	s.forwards = append(s.forwards, msg)
	return nil
}

func TestCriticalWrapsDeliveryError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tr := &stubTransport{err: errors.New("socket closed")}
	n := New(tr, logger, nil)

	err := n.Critical(context.Background(), platform.Direct("42"), "hi", KindClaimNotice)
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("Critical() error = %v, want ErrDelivery", err)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warn log entry, got %+v", entry)
	}
	if entry.Data["kind"] != string(KindClaimNotice) {
		t.Fatalf("kind field = %v, want %q", entry.Data["kind"], KindClaimNotice)
	}
}

func TestBestEffortSwallowsFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := New(&stubTransport{err: errors.New("down")}, logger, nil)
	n.BestEffort(context.Background(), platform.Direct("42"), "hi", KindQueuePosition)
	if len(hook.AllEntries()) != 1 {
		t.Fatalf("log entries = %d, want 1", len(hook.AllEntries()))
	}
}

func TestInvalidAddressIsADeliveryFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tr := &stubTransport{}
	n := New(tr, logger, nil)
	if err := n.Critical(context.Background(), platform.Address{}, "hi", KindReply); !errors.Is(err, ErrDelivery) {
		t.Fatalf("Critical() error = %v, want ErrDelivery", err)
	}
	if len(tr.texts) != 0 {
		t.Fatalf("transport should not be called for an empty address")
	}
}

func TestForwardPassesMessageThrough(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tr := &stubTransport{}
	n := New(tr, logger, nil)
	msg := platform.Message{Segments: []platform.Segment{
		{Type: platform.SegmentText, Text: "look"},
		{Type: platform.SegmentImage, URL: "https://example.test/x.png"},
	}}
	if err := n.Forward(context.Background(), platform.Direct("42"), msg); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if len(tr.forwards) != 1 || len(tr.forwards[0].Segments) != 2 {
		t.Fatalf("forwards = %+v", tr.forwards)
	}
}
