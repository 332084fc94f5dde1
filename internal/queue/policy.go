// Package queue derives waiting positions from the session store.
package queue

import "github.com/ent0n29/handoff/internal/session"

// Entry is one waiting session and its 1-based rank.
type Entry struct {
	Rank    int
	Session session.Session
}

// Policy is a read-only view over the waiting sessions. Nothing is cached;
// every call reads the store.
type Policy struct {
	store *session.Store
}

func NewPolicy(store *session.Store) *Policy {
	return &Policy{store: store}
}

func (p *Policy) WaitingCount() int {
	return p.store.Count(session.StatusWaiting)
}

// PositionOf returns the user's rank among waiting sessions, first request first.
func (p *Policy) PositionOf(userID string) (int, bool) {
	for i, sess := range p.store.ListByStatus(session.StatusWaiting) {
		if sess.UserID == userID {
			return i + 1, true
		}
	}
	return 0, false
}

// Ranked returns every waiting session with its rank.
func (p *Policy) Ranked() []Entry {
	waiting := p.store.ListByStatus(session.StatusWaiting)
	out := make([]Entry, 0, len(waiting))
	for i, sess := range waiting {
		out = append(out, Entry{Rank: i + 1, Session: sess})
	}
	return out
}
