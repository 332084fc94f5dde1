// Package reaper expires sessions that outlived their phase's timeout.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/ent0n29/handoff/internal/notify"
	"github.com/ent0n29/handoff/internal/platform"
	"github.com/ent0n29/handoff/internal/session"
)

type Config struct {
	WaitingTimeout      time.Duration
	ConversationTimeout time.Duration
}

type Reaper struct {
	cfg      Config
	store    *session.Store
	notifier *notify.Notifier
	onExpire func(session.Session)
}

func New(cfg Config, store *session.Store, notifier *notify.Notifier) *Reaper {
	return &Reaper{cfg: cfg, store: store, notifier: notifier}
}

// SetExpireHook registers a callback run after each expired session is removed.
func (r *Reaper) SetExpireHook(hook func(session.Session)) {
	r.onExpire = hook
}

// Timeout returns the limit for a status. Zero disables expiry.
func (r *Reaper) Timeout(status session.Status) time.Duration {
	switch status {
	case session.StatusWaiting:
		return r.cfg.WaitingTimeout
	case session.StatusConnected:
		return r.cfg.ConversationTimeout
	default:
		return 0
	}
}

// Expired reports whether s has spent at least its phase's timeout in the
// current status.
func (r *Reaper) Expired(s session.Session, now time.Time) bool {
	limit := r.Timeout(s.Status)
	if limit <= 0 {
		return false
	}
	return s.Elapsed(now) >= limit
}

// Sweep removes every expired session. Notices are best-effort; removal is not.
func (r *Reaper) Sweep(ctx context.Context) []session.Session {
	now := r.store.Now()
	var expired []session.Session
	for _, s := range r.store.All() {
		if !r.Expired(s, now) {
			continue
		}
		removed, ok := r.store.Remove(s.UserID)
		if !ok {
			continue
		}
		r.notifyExpired(ctx, removed)
		expired = append(expired, removed)
		if r.onExpire != nil {
			r.onExpire(removed)
		}
	}
	return expired
}

func (r *Reaper) notifyExpired(ctx context.Context, s session.Session) {
	switch s.Status {
	case session.StatusConnected:
		limit := FormatDuration(r.cfg.ConversationTimeout)
		r.notifier.BestEffort(ctx, s.Address(),
			fmt.Sprintf("The conversation reached its %s time limit and has been closed. Send the request again if you still need help.", limit),
			notify.KindTimeoutNotice)
		r.notifier.BestEffort(ctx, platform.Direct(s.OperatorID),
			fmt.Sprintf("Conversation with %s(%s) reached the %s limit and was closed.", displayName(s), s.UserID, limit),
			notify.KindTimeoutNotice)
	case session.StatusWaiting:
		r.notifier.BestEffort(ctx, s.Address(),
			fmt.Sprintf("No operator was available within %s, so your request has expired. Send the request again to rejoin the queue.", FormatDuration(r.cfg.WaitingTimeout)),
			notify.KindTimeoutNotice)
	}
}

// FormatDuration renders whole minutes when possible, seconds otherwise.
func FormatDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return fmt.Sprintf("%d seconds", int(d/time.Second))
}

func displayName(s session.Session) string {
	if s.UserName != "" {
		return s.UserName
	}
	return "user"
}
