package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agegate/internal/age/models"
	"agegate/internal/sentinel"
)

// PostgresSessionStore persists sessions in PostgreSQL.
type PostgresSessionStore struct {
	db *sql.DB
}

// NewSessionPostgres constructs a PostgreSQL-backed session store.
func NewSessionPostgres(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

// CreateSession allocates a fresh handle and inserts the session tuple.
// The unique constraint on upstream_token makes the insert atomic: a second
// session for the same token inserts no row.
func (s *PostgresSessionStore) CreateSession(ctx context.Context, upstreamToken, userID string) (*models.Session, error) {
	handle, err := models.NewHandle()
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO age_sessions (handle, upstream_token, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (upstream_token) DO NOTHING
		RETURNING created_at
	`
	session := &models.Session{
		Handle:        handle,
		UpstreamToken: upstreamToken,
		UserID:        userID,
		CreatedAt:     time.Now(),
	}
	err = s.db.QueryRowContext(ctx, query,
		session.Handle,
		session.UpstreamToken,
		nullString(session.UserID),
		session.CreatedAt,
	).Scan(&session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrDuplicateToken
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// FindByHandle resolves a handle to its session.
func (s *PostgresSessionStore) FindByHandle(ctx context.Context, handle string) (*models.Session, error) {
	query := `
		SELECT handle, upstream_token, user_id, created_at
		FROM age_sessions
		WHERE handle = $1
	`
	var (
		session models.Session
		userID  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, handle).Scan(
		&session.Handle,
		&session.UpstreamToken,
		&userID,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	session.UserID = userID.String
	return &session, nil
}

// DeleteByHandle removes a single session.
func (s *PostgresSessionStore) DeleteByHandle(ctx context.Context, handle string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM age_sessions WHERE handle = $1`, handle); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteOlderThan removes all sessions created before the cutoff.
func (s *PostgresSessionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM age_sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap sessions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reap sessions rows: %w", err)
	}
	return int(rows), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
