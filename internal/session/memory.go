package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in an in-process map. History vanishes when the
// process exits, which matches the single-instance development setup.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return ErrExists
	}

	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	sess.Version = 1

	s.sessions[sess.ID] = sess.clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	return stored.clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.sessions[sess.ID]
	if !exists {
		return ErrNotFound
	}
	if stored.Version != sess.Version {
		return ErrVersionConflict
	}

	sess.Version++
	sess.UpdatedAt = time.Now()

	s.sessions[sess.ID] = sess.clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}

var _ Store = (*MemoryStore)(nil)
