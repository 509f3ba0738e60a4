// Package store persists mediator sessions and verification outcomes.
//
// Error contract, all implementations:
//   - FindByHandle returns sentinel.ErrNotFound when no session exists
//   - CreateSession returns sentinel.ErrDuplicateToken when the upstream
//     token is already bound to a live session
//   - other failures are wrapped infrastructure errors
package store

import (
	"context"
	"sync"
	"time"

	"agegate/internal/age/models"
	"agegate/internal/sentinel"
)

// InMemorySessionStore stores sessions in memory for tests/dev.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	byHandle map[string]*models.Session
	byToken  map[string]string // upstream token -> handle
}

// NewSessionMemory constructs an empty in-memory session store.
func NewSessionMemory() *InMemorySessionStore {
	return &InMemorySessionStore{
		byHandle: make(map[string]*models.Session),
		byToken:  make(map[string]string),
	}
}

// CreateSession allocates a fresh handle and persists the session tuple.
func (s *InMemorySessionStore) CreateSession(_ context.Context, upstreamToken, userID string) (*models.Session, error) {
	handle, err := models.NewHandle()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[upstreamToken]; exists {
		return nil, sentinel.ErrDuplicateToken
	}

	session := &models.Session{
		Handle:        handle,
		UpstreamToken: upstreamToken,
		UserID:        userID,
		CreatedAt:     time.Now(),
	}
	s.byHandle[handle] = session
	s.byToken[upstreamToken] = handle
	return session, nil
}

// FindByHandle resolves a handle to its session.
func (s *InMemorySessionStore) FindByHandle(_ context.Context, handle string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.byHandle[handle]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

// DeleteByHandle removes a single session. Missing sessions are not an error;
// the result endpoint deletes on success and a concurrent reap may win.
func (s *InMemorySessionStore) DeleteByHandle(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.byHandle[handle]; ok {
		delete(s.byToken, session.UpstreamToken)
		delete(s.byHandle, handle)
	}
	return nil
}

// DeleteOlderThan removes all sessions created before the cutoff and reports
// how many were deleted.
func (s *InMemorySessionStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for handle, session := range s.byHandle {
		if session.CreatedAt.Before(cutoff) {
			delete(s.byToken, session.UpstreamToken)
			delete(s.byHandle, handle)
			deleted++
		}
	}
	return deleted, nil
}
