package session

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store for tests and single-instance development.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]domain.Session
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, sessions: make(map[string]domain.Session)}
}

func (s *MemoryStore) Create(_ context.Context, userID string) (*domain.Session, error) {
	sess := newSession(userID, s.now(), s.ttl)
	s.mu.Lock()
	s.sessions[sess.ID] = *sess
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
