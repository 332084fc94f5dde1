package session

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/handoff/internal/platform"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusConnected Status = "connected"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrAlreadyExists  = errors.New("session already exists")
	ErrAlreadyClaimed = errors.New("session already claimed")
	ErrOperatorBusy   = errors.New("operator already in a conversation")
	ErrNotConnected   = errors.New("session not connected")
)

// Session is one user's engagement with the operator queue.
type Session struct {
	ID           string           `json:"session_id"`
	UserID       string           `json:"user_id"`
	UserName     string           `json:"user_name,omitempty"`
	OperatorID   string           `json:"operator_id,omitempty"`
	Status       Status           `json:"status"`
	Origin       platform.Address `json:"origin"`
	GroupContext string           `json:"group_context"`
	StartedAt    time.Time        `json:"started_at"`
	CreatedAt    time.Time        `json:"created_at"`

	seq uint64
}

// Address is where messages for the session's user are delivered.
func (s Session) Address() platform.Address {
	if s.Origin.Valid() {
		return s.Origin
	}
	return platform.To(s.GroupContext, s.UserID)
}

// Elapsed is the time spent in the current status.
func (s Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// Store owns the user -> session mapping. Reads return copies.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nextSeq  uint64
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Store) Exists(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[userID]
	return ok
}

func (s *Store) Get(userID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// CreateWaiting admits a user into the waiting state.
func (s *Store) CreateWaiting(userID, userName, groupContext string, origin platform.Address) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, errors.New("user_id is required")
	}
	if strings.TrimSpace(groupContext) == "" {
		groupContext = platform.NoGroup
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID]; ok {
		return Session{}, ErrAlreadyExists
	}
	now := s.now()
	s.nextSeq++
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		UserName:     userName,
		Status:       StatusWaiting,
		Origin:       origin,
		GroupContext: groupContext,
		StartedAt:    now,
		CreatedAt:    now,
		seq:          s.nextSeq,
	}
	s.sessions[userID] = sess
	return *sess, nil
}

// Connect binds an operator without checking the current status.
func (s *Store) Connect(userID, operatorID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, ErrNotFound
	}
	sess.Status = StatusConnected
	sess.OperatorID = operatorID
	sess.StartedAt = s.now()
	return *sess, nil
}

// Claim moves a waiting session to connected for operatorID. Only one claim
// can win: later attempts see ErrAlreadyClaimed with the current session.
func (s *Store) Claim(userID, operatorID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if sess.Status == StatusConnected {
		return *sess, ErrAlreadyClaimed
	}
	for _, other := range s.sessions {
		if other.Status == StatusConnected && other.OperatorID == operatorID {
			return *other, ErrOperatorBusy
		}
	}
	sess.Status = StatusConnected
	sess.OperatorID = operatorID
	sess.StartedAt = s.now()
	return *sess, nil
}

// Revert undoes a claim, restoring the waiting phase that preceded it.
func (s *Store) Revert(userID string, previous Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if sess.Status != StatusConnected {
		return *sess, ErrNotConnected
	}
	sess.Status = StatusWaiting
	sess.OperatorID = ""
	if !previous.StartedAt.IsZero() {
		sess.StartedAt = previous.StartedAt
	}
	return *sess, nil
}

func (s *Store) Remove(userID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, userID)
	return *sess, true
}

// ListByStatus returns sessions with the given status in insertion order.
func (s *Store) ListByStatus(status Status) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.Status == status {
			out = append(out, *sess)
		}
	}
	sortBySeq(out)
	return out
}

// All returns every session in insertion order.
func (s *Store) All() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	sortBySeq(out)
	return out
}

// BoundTo returns the connected session owned by operatorID.
func (s *Store) BoundTo(operatorID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.Status == StatusConnected && sess.OperatorID == operatorID {
			return *sess, true
		}
	}
	return Session{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Count returns the number of sessions with the given status.
func (s *Store) Count(status Status) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.Status == status {
			n++
		}
	}
	return n
}

// Clear removes every session and returns what was removed.
func (s *Store) Clear() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	s.sessions = make(map[string]*Session)
	sortBySeq(out)
	return out
}

func sortBySeq(items []Session) {
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
}
