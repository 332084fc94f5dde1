// Package journal records session lifecycle transitions. It never stores
// message content.
package journal

import (
	"context"
	"time"
)

type Event string

const (
	EventCreated       Event = "created"
	EventClaimed       Event = "claimed"
	EventClaimReverted Event = "claim_reverted"
	EventCancelled     Event = "cancelled"
	EventEnded         Event = "ended"
	EventExpired       Event = "expired"
	EventTeardown      Event = "teardown"
)

// Entry is a single lifecycle transition of one session.
type Entry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	OperatorID string    `json:"operator_id,omitempty"`
	Event      Event     `json:"event"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists and retrieves lifecycle entries.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)
	Close() error
}
