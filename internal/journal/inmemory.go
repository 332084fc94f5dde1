package journal

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultInMemoryLimit = 256
	// defaultInMemoryUsers bounds how many users keep history. The user
	// recorded least recently is dropped first.
	defaultInMemoryUsers = 4096
)

// InMemoryStore keeps the most recent entries per user in process.
type InMemoryStore struct {
	mu       sync.RWMutex
	perUser  int
	maxUsers int
	entries  map[string][]Entry
	// lru holds user ids, most recently recorded at the front.
	lru   *list.List
	index map[string]*list.Element
}

func NewInMemoryStore(perUser int) *InMemoryStore {
	return newInMemoryStore(perUser, defaultInMemoryUsers)
}

func newInMemoryStore(perUser, maxUsers int) *InMemoryStore {
	if perUser <= 0 {
		perUser = defaultInMemoryLimit
	}
	if maxUsers <= 0 {
		maxUsers = defaultInMemoryUsers
	}
	return &InMemoryStore{
		perUser:  perUser,
		maxUsers: maxUsers,
		entries:  make(map[string][]Entry),
		lru:      list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (s *InMemoryStore) Record(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	arr := append(s.entries[entry.UserID], entry)
	if len(arr) > s.perUser {
		arr = arr[len(arr)-s.perUser:]
	}
	s.entries[entry.UserID] = arr

	if el, ok := s.index[entry.UserID]; ok {
		s.lru.MoveToFront(el)
		return nil
	}
	s.index[entry.UserID] = s.lru.PushFront(entry.UserID)
	for s.lru.Len() > s.maxUsers {
		oldest := s.lru.Back()
		userID := s.lru.Remove(oldest).(string)
		delete(s.index, userID)
		delete(s.entries, userID)
	}
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, userID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.entries[userID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Entry, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

// Users reports how many users currently have history.
func (s *InMemoryStore) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *InMemoryStore) Close() error { return nil }
