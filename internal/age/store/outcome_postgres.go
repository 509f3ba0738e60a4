package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agegate/internal/age/models"
)

// PostgresOutcomeStore persists verification outcomes in PostgreSQL.
type PostgresOutcomeStore struct {
	db *sql.DB
}

// NewOutcomePostgres constructs a PostgreSQL-backed outcome store.
func NewOutcomePostgres(db *sql.DB) *PostgresOutcomeStore {
	return &PostgresOutcomeStore{db: db}
}

// AssertVerified idempotently records that the user is verified. The unique
// constraint plus conflict-ignore guarantees exactly one row under concurrent
// calls; the follow-up read returns whichever row won with its original
// creation time.
func (s *PostgresOutcomeStore) AssertVerified(ctx context.Context, userID string) (*models.VerificationOutcome, error) {
	insert := `
		INSERT INTO age_verifications (user_id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, insert, userID, time.Now()); err != nil {
		return nil, fmt.Errorf("assert verified: %w", err)
	}

	var outcome models.VerificationOutcome
	query := `SELECT user_id, created_at FROM age_verifications WHERE user_id = $1`
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&outcome.UserID, &outcome.CreatedAt); err != nil {
		return nil, fmt.Errorf("read outcome: %w", err)
	}
	return &outcome, nil
}

// IsVerified reports whether an outcome exists for the user.
func (s *PostgresOutcomeStore) IsVerified(ctx context.Context, userID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM age_verifications WHERE user_id = $1)`
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check outcome: %w", err)
	}
	return exists, nil
}

// DeleteByUser removes the user's outcome.
func (s *PostgresOutcomeStore) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM age_verifications WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete outcome: %w", err)
	}
	return nil
}
