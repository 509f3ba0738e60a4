package store

import (
	"context"
	"sync"
	"time"

	"agegate/internal/age/models"
)

// InMemoryOutcomeStore stores verification outcomes in memory for tests/dev.
type InMemoryOutcomeStore struct {
	mu       sync.RWMutex
	outcomes map[string]*models.VerificationOutcome
}

// NewOutcomeMemory constructs an empty in-memory outcome store.
func NewOutcomeMemory() *InMemoryOutcomeStore {
	return &InMemoryOutcomeStore{outcomes: make(map[string]*models.VerificationOutcome)}
}

// AssertVerified idempotently records that the user is verified. A second
// call returns the existing outcome with its original creation time.
func (s *InMemoryOutcomeStore) AssertVerified(_ context.Context, userID string) (*models.VerificationOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.outcomes[userID]; ok {
		copied := *existing
		return &copied, nil
	}
	outcome := &models.VerificationOutcome{
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	s.outcomes[userID] = outcome
	copied := *outcome
	return &copied, nil
}

// IsVerified reports whether an outcome exists for the user.
func (s *InMemoryOutcomeStore) IsVerified(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.outcomes[userID]
	return ok, nil
}

// DeleteByUser removes the user's outcome. Mirrors the SQL cascade when a
// user account is deleted.
func (s *InMemoryOutcomeStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outcomes, userID)
	return nil
}
