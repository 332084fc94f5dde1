// Package routing implements the request/claim/relay state machine that
// connects users with human operators.
//
// A session is Waiting after a user's request and Connected once an operator
// claims it. It is removed on cancel, end, timeout or teardown. Every handler
// runs under the router's mutex so only one event mutates state at a time;
// outbound notices are sent inside the same critical section and their
// failures never leak out of a handler.
package routing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ent0n29/handoff/internal/journal"
	"github.com/ent0n29/handoff/internal/notify"
	"github.com/ent0n29/handoff/internal/observability"
	"github.com/ent0n29/handoff/internal/platform"
	"github.com/ent0n29/handoff/internal/policy"
	"github.com/ent0n29/handoff/internal/queue"
	"github.com/ent0n29/handoff/internal/reaper"
	"github.com/ent0n29/handoff/internal/session"
)

type Config struct {
	WaitingTimeout      time.Duration
	ConversationTimeout time.Duration
	Keywords            Keywords
}

type Router struct {
	mu sync.Mutex

	cfg      Config
	store    *session.Store
	queue    *queue.Policy
	roster   policy.Roster
	notifier *notify.Notifier
	reaper   *reaper.Reaper
	journal  journal.Store
	metrics  *observability.Metrics
	log      logrus.FieldLogger
}

func New(cfg Config, store *session.Store, roster policy.Roster, notifier *notify.Notifier, journalStore journal.Store, metrics *observability.Metrics, log logrus.FieldLogger) *Router {
	cfg.Keywords = cfg.Keywords.WithDefaults()
	if journalStore == nil {
		journalStore = journal.NewInMemoryStore(0)
	}
	r := &Router{
		cfg:      cfg,
		store:    store,
		queue:    queue.NewPolicy(store),
		roster:   roster,
		notifier: notifier,
		journal:  journalStore,
		metrics:  metrics,
		log:      log,
		reaper: reaper.New(reaper.Config{
			WaitingTimeout:      cfg.WaitingTimeout,
			ConversationTimeout: cfg.ConversationTimeout,
		}, store, notifier),
	}
	r.reaper.SetExpireHook(func(s session.Session) {
		r.log.WithFields(logrus.Fields{
			"user_id":     s.UserID,
			"operator_id": s.OperatorID,
			"status":      string(s.Status),
		}).Info("routing: session expired")
		r.record(context.Background(), s, journal.EventExpired)
	})
	return r
}

// Keywords returns the active command keywords.
func (r *Router) Keywords() Keywords { return r.cfg.Keywords }

// Roster returns the operator roster.
func (r *Router) Roster() policy.Roster { return r.roster }

// HandleEvent routes one inbound platform event. Expired sessions are reaped
// first so nothing stale is routed.
func (r *Router) HandleEvent(ctx context.Context, ev platform.Event) platform.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reaper.Sweep(ctx)

	cmd, arg := r.cfg.Keywords.parse(ev.Message.Text())
	switch cmd {
	case cmdRequestHuman:
		return r.requestHuman(ctx, ev)
	case cmdCancelHuman:
		return r.cancelHuman(ctx, ev)
	case cmdAccept:
		quoted := ""
		if q, ok := ev.Message.Quote(); ok {
			quoted = q.QuotedText
		}
		return r.acceptConversation(ctx, ev, arg, quoted)
	case cmdEnd:
		return r.endConversation(ctx, ev)
	case cmdList:
		return r.listSessions(ctx, ev)
	default:
		return r.relayMessage(ctx, ev)
	}
}

// RequestHuman puts the sender in the waiting queue.
func (r *Router) RequestHuman(ctx context.Context, ev platform.Event) platform.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requestHuman(ctx, ev)
}

// CancelHuman drops the sender's request or conversation.
func (r *Router) CancelHuman(ctx context.Context, ev platform.Event) platform.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelHuman(ctx, ev)
}

// AcceptConversation lets an operator claim a waiting user. targetID may be
// empty, in which case quotedText is searched for a bracketed id.
func (r *Router) AcceptConversation(ctx context.Context, ev platform.Event, targetID, quotedText string) platform.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acceptConversation(ctx, ev, targetID, quotedText)
}

// EndConversation closes the operator's current conversation.
func (r *Router) EndConversation(ctx context.Context, ev platform.Event) platform.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endConversation(ctx, ev)
}

// ListSessions reports waiting and connected sessions to an operator.
func (r *Router) ListSessions(ctx context.Context, ev platform.Event) platform.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listSessions(ctx, ev)
}

// RelayMessage forwards an ordinary message across a connected session.
func (r *Router) RelayMessage(ctx context.Context, ev platform.Event) platform.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reaper.Sweep(ctx)
	return r.relayMessage(ctx, ev)
}

// Sweep runs one reaper pass.
func (r *Router) Sweep(ctx context.Context) []session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reaper.Sweep(ctx)
}

// StartJanitor sweeps on a fixed interval until ctx is done, so sessions
// expire even when no traffic arrives.
func (r *Router) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Teardown removes every session unconditionally.
func (r *Router) Teardown(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.store.Clear()
	for _, s := range removed {
		r.notifier.BestEffort(ctx, s.Address(), replyTeardown, notify.KindTeardownNotice)
		if s.Status == session.StatusConnected {
			r.notifier.BestEffort(ctx, platform.Direct(s.OperatorID), replyEnded(s.UserName, s.UserID), notify.KindTeardownNotice)
		}
		r.record(ctx, s, journal.EventTeardown)
	}
	r.log.WithField("removed", len(removed)).Info("routing: teardown cleared sessions")
	return len(removed)
}

// Snapshot is a read-only view of the queue.
type Snapshot struct {
	Waiting   []queue.Entry
	Connected []session.Session
	Now       time.Time
}

func (r *Router) Snapshot() Snapshot {
	return Snapshot{
		Waiting:   r.queue.Ranked(),
		Connected: r.store.ListByStatus(session.StatusConnected),
		Now:       r.store.Now(),
	}
}

func (r *Router) requestHuman(ctx context.Context, ev platform.Event) platform.Result {
	userID := strings.TrimSpace(ev.SenderID)
	if existing, ok := r.store.Get(userID); ok {
		if existing.Status == session.StatusConnected {
			r.reply(ctx, ev, replyAlreadyConnected)
		} else {
			rank, _ := r.queue.PositionOf(userID)
			r.reply(ctx, ev, replyAlreadyWaiting(rank, r.queue.WaitingCount()))
		}
		return platform.Result{Handled: true}
	}

	sess, err := r.store.CreateWaiting(userID, ev.SenderName, ev.Group(), ev.ReplyAddress())
	if err != nil {
		// Only reachable with an empty sender id or a concurrent create.
		r.log.WithError(err).WithField("user_id", userID).Warn("routing: create waiting session failed")
		r.reply(ctx, ev, replyNoSession)
		return platform.Result{Handled: true}
	}
	r.record(ctx, sess, journal.EventCreated)

	total := r.queue.WaitingCount()
	rank, _ := r.queue.PositionOf(userID)
	r.reply(ctx, ev, replyQueued(rank, total, r.cfg.WaitingTimeout))

	alert := operatorAlert(ev.SenderName, userID, total, r.cfg.Keywords.Accept)
	for _, op := range r.roster.IDs() {
		r.notifier.BestEffort(ctx, platform.Direct(op), alert, notify.KindOperatorAlert)
	}
	return platform.Result{Handled: true}
}

func (r *Router) cancelHuman(ctx context.Context, ev platform.Event) platform.Result {
	userID := strings.TrimSpace(ev.SenderID)
	existing, ok := r.store.Get(userID)
	if !ok {
		r.reply(ctx, ev, replyNoSession)
		return platform.Result{Handled: true}
	}
	if existing.Status == session.StatusConnected {
		r.notifier.BestEffort(ctx, platform.Direct(existing.OperatorID), cancelledByUser(ev.SenderName, userID), notify.KindCancelNotice)
	}

	removed, _ := r.store.Remove(userID)
	r.record(ctx, removed, journal.EventCancelled)
	r.broadcastPositions(ctx)

	if existing.Status == session.StatusConnected {
		r.reply(ctx, ev, replyConversationOver)
	} else {
		r.reply(ctx, ev, replyQueueCancelled)
	}
	return platform.Result{Handled: true}
}

func (r *Router) acceptConversation(ctx context.Context, ev platform.Event, targetID, quotedText string) platform.Result {
	operatorID := strings.TrimSpace(ev.SenderID)
	if !r.roster.IsOperator(operatorID) {
		r.reply(ctx, ev, replyAcceptDenied)
		return platform.Result{Handled: true}
	}

	target, ok := resolveTarget(targetID, quotedText)
	if !ok {
		r.reply(ctx, ev, replySpecifyTarget(r.cfg.Keywords.Accept))
		return platform.Result{Handled: true}
	}

	before, ok := r.store.Get(target)
	if !ok {
		r.reply(ctx, ev, replyNotWaiting(target))
		return platform.Result{Handled: true}
	}

	claimed, err := r.store.Claim(target, operatorID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		r.reply(ctx, ev, replyNotWaiting(target))
		return platform.Result{Handled: true}
	case errors.Is(err, session.ErrAlreadyClaimed):
		if claimed.OperatorID == operatorID {
			r.reply(ctx, ev, replyAlreadyTalking)
		} else {
			r.reply(ctx, ev, replyClaimedByOther(target))
		}
		return platform.Result{Handled: true}
	case errors.Is(err, session.ErrOperatorBusy):
		r.reply(ctx, ev, replyOperatorBusy(claimed.UserID))
		return platform.Result{Handled: true}
	case err != nil:
		r.log.WithError(err).WithField("user_id", target).Error("routing: claim failed")
		r.reply(ctx, ev, replyClaimFailed(target))
		return platform.Result{Handled: true}
	}

	fields := logrus.Fields{"user_id": target, "operator_id": operatorID}
	if err := r.notifier.Critical(ctx, claimed.Address(), claimNotice(ev.SenderName, r.cfg.ConversationTimeout), notify.KindClaimNotice); err != nil {
		// The user never learned about the operator; undo the claim.
		if _, revertErr := r.store.Revert(target, before); revertErr != nil {
			r.log.WithFields(fields).WithError(revertErr).Error("routing: claim rollback failed")
		}
		r.record(ctx, claimed, journal.EventClaimReverted)
		r.log.WithFields(fields).WithError(err).Warn("routing: claim rolled back after notice failure")
		r.reply(ctx, ev, replyClaimFailed(target))
		return platform.Result{Handled: true}
	}

	r.metrics.ObserveClaimWait(claimed.StartedAt.Sub(before.StartedAt))
	r.record(ctx, claimed, journal.EventClaimed)
	r.log.WithFields(fields).Info("routing: conversation claimed")
	r.broadcastPositions(ctx)
	r.reply(ctx, ev, replyClaimed(claimed.UserName, target, r.cfg.Keywords.End))
	return platform.Result{Handled: true}
}

func (r *Router) endConversation(ctx context.Context, ev platform.Event) platform.Result {
	operatorID := strings.TrimSpace(ev.SenderID)
	if !r.roster.IsOperator(operatorID) {
		return platform.Result{}
	}

	bound, ok := r.store.BoundTo(operatorID)
	if !ok {
		r.reply(ctx, ev, replyNothingToEnd)
		return platform.Result{Handled: true}
	}

	r.notifier.BestEffort(ctx, bound.Address(), replyEndedByOperator, notify.KindEndNotice)
	removed, _ := r.store.Remove(bound.UserID)
	r.record(ctx, removed, journal.EventEnded)
	r.reply(ctx, ev, replyEnded(bound.UserName, bound.UserID))
	return platform.Result{Handled: true}
}

func (r *Router) listSessions(ctx context.Context, ev platform.Event) platform.Result {
	if !r.roster.IsOperator(strings.TrimSpace(ev.SenderID)) {
		r.reply(ctx, ev, replyListDenied)
		return platform.Result{Handled: true}
	}

	r.reaper.Sweep(ctx)
	if r.store.Len() == 0 {
		r.reply(ctx, ev, replyNoSessions)
		return platform.Result{Handled: true}
	}
	r.reply(ctx, ev, renderSessions(r.queue.Ranked(), r.store.ListByStatus(session.StatusConnected), r.store.Now()))
	return platform.Result{Handled: true}
}

func (r *Router) relayMessage(ctx context.Context, ev platform.Event) platform.Result {
	if ev.Message.Empty() {
		return platform.Result{}
	}
	// Quoted content is never relayed, so forwarded text cannot loop.
	if _, quoted := ev.Message.Quote(); quoted {
		return platform.Result{}
	}

	senderID := strings.TrimSpace(ev.SenderID)
	if r.roster.IsOperator(senderID) && ev.Private && !r.cfg.Keywords.Reserved(ev.Message.Text()) {
		bound, ok := r.store.BoundTo(senderID)
		if !ok {
			return platform.Result{}
		}
		if err := r.notifier.Forward(ctx, bound.Address(), ev.Message); err != nil {
			r.reply(ctx, ev, replyRelayFailed(bound.UserID))
		}
		return platform.Result{Handled: true}
	}

	if sess, ok := r.store.Get(senderID); ok && sess.Status == session.StatusConnected && sess.OperatorID != "" {
		_ = r.notifier.Forward(ctx, platform.Direct(sess.OperatorID), ev.Message)
		return platform.Result{Handled: true}
	}
	return platform.Result{}
}

// broadcastPositions tells every waiting user their current rank.
func (r *Router) broadcastPositions(ctx context.Context) {
	ranked := r.queue.Ranked()
	for _, e := range ranked {
		r.notifier.BestEffort(ctx, e.Session.Address(), positionUpdate(e.Rank, len(ranked)), notify.KindQueuePosition)
	}
}

func (r *Router) reply(ctx context.Context, ev platform.Event, text string) {
	r.notifier.BestEffort(ctx, ev.ReplyAddress(), text, notify.KindReply)
}

func (r *Router) record(ctx context.Context, s session.Session, event journal.Event) {
	r.metrics.ObserveSessionEvent(string(event))
	r.metrics.SetQueue(r.store.Count(session.StatusWaiting), r.store.Count(session.StatusConnected))
	err := r.journal.Record(ctx, journal.Entry{
		SessionID:  s.ID,
		UserID:     s.UserID,
		OperatorID: s.OperatorID,
		Event:      event,
		Status:     string(s.Status),
		CreatedAt:  r.store.Now(),
	})
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"user_id": s.UserID,
			"event":   string(event),
		}).Warn("routing: journal write failed")
	}
}
