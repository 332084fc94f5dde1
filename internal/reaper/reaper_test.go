package reaper

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/handoff/internal/logging"
	"github.com/ent0n29/handoff/internal/notify"
	"github.com/ent0n29/handoff/internal/platform"
	"github.com/ent0n29/handoff/internal/platform/platformtest"
	"github.com/ent0n29/handoff/internal/session"
)

type harness struct {
	store   *session.Store
	rec     *platformtest.Recorder
	reaper  *Reaper
	advance func(time.Duration)
	expired []session.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := session.NewStore()
	store.SetClock(func() time.Time { return now })
	rec := platformtest.NewRecorder()
	n := notify.New(rec, logging.Discard(), nil)
	h := &harness{
		store:   store,
		rec:     rec,
		reaper:  New(Config{WaitingTimeout: 5 * time.Minute, ConversationTimeout: 10 * time.Minute}, store, n),
		advance: func(d time.Duration) { now = now.Add(d) },
	}
	h.reaper.SetExpireHook(func(s session.Session) { h.expired = append(h.expired, s) })
	return h
}

func TestSweepWaitingBoundaryIsInclusive(t *testing.T) {
	h := newHarness(t)
	_, _ = h.store.CreateWaiting("u1", "alice", "", platform.Direct("u1"))

	h.advance(5*time.Minute - time.Second)
	if got := h.reaper.Sweep(context.Background()); len(got) != 0 {
		t.Fatalf("Sweep() before threshold removed %d sessions", len(got))
	}
	if !h.store.Exists("u1") {
		t.Fatalf("session removed before its timeout")
	}

	h.advance(time.Second)
	got := h.reaper.Sweep(context.Background())
	if len(got) != 1 || got[0].UserID != "u1" {
		t.Fatalf("Sweep() at threshold = %+v, want [u1]", got)
	}
	if h.store.Exists("u1") {
		t.Fatalf("session should be removed at exactly the threshold")
	}
	if msg := h.rec.LastTextTo(platform.Direct("u1")); !strings.Contains(msg, "expired") {
		t.Fatalf("user notice = %q, want expiry notice", msg)
	}
	if len(h.expired) != 1 {
		t.Fatalf("expire hook calls = %d, want 1", len(h.expired))
	}
}

func TestSweepConnectedUsesConversationTimeout(t *testing.T) {
	h := newHarness(t)
	_, _ = h.store.CreateWaiting("u1", "alice", "", platform.Direct("u1"))
	h.advance(4 * time.Minute)
	_, _ = h.store.Claim("u1", "op1")

	// Past the waiting limit, inside the conversation limit: the claim reset the clock.
	h.advance(6 * time.Minute)
	if got := h.reaper.Sweep(context.Background()); len(got) != 0 {
		t.Fatalf("connected session expired on the waiting timeout")
	}

	h.advance(4 * time.Minute)
	got := h.reaper.Sweep(context.Background())
	if len(got) != 1 {
		t.Fatalf("Sweep() = %+v, want one expired session", got)
	}
	if len(h.rec.TextsTo(platform.Direct("u1"))) != 1 || len(h.rec.TextsTo(platform.Direct("op1"))) != 1 {
		t.Fatalf("both user and operator should be notified: %+v", h.rec.Deliveries())
	}
}

func TestSweepRemovesEvenWhenNoticesFail(t *testing.T) {
	h := newHarness(t)
	_, _ = h.store.CreateWaiting("u1", "alice", "", platform.Direct("u1"))
	_, _ = h.store.Claim("u1", "op1")
	h.rec.FailTo(platform.Direct("u1"), -1)

	h.advance(10 * time.Minute)
	got := h.reaper.Sweep(context.Background())
	if len(got) != 1 || h.store.Exists("u1") {
		t.Fatalf("session should be removed despite failed notice")
	}
	if len(h.rec.TextsTo(platform.Direct("op1"))) != 1 {
		t.Fatalf("operator notice should still be attempted and delivered")
	}
}

func TestZeroTimeoutDisablesExpiry(t *testing.T) {
	h := newHarness(t)
	h.reaper.cfg.WaitingTimeout = 0
	_, _ = h.store.CreateWaiting("u1", "", "", platform.Direct("u1"))
	h.advance(24 * time.Hour)
	if got := h.reaper.Sweep(context.Background()); len(got) != 0 {
		t.Fatalf("Sweep() = %+v, want nothing expired", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		time.Minute:      "1 minute",
		5 * time.Minute:  "5 minutes",
		90 * time.Second: "90 seconds",
	}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
