// Package reaper periodically removes verification sessions past the
// retention horizon. A session that old can no longer complete upstream, so
// deleting it only trades a stale 409 for an honest 404.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionStore exposes deletion of sessions created before a cutoff.
type SessionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Metrics records how many sessions a reap run removed.
type Metrics interface {
	AddSessionsReaped(count int)
}

// Reaper periodically removes sessions older than the retention horizon.
type Reaper struct {
	sessions  SessionStore
	retention time.Duration
	interval  time.Duration
	metrics   Metrics
	logger    *slog.Logger
}

// Option configures the Reaper.
type Option func(*Reaper)

// WithInterval overrides the reap interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(r *Reaper) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithLogger overrides the logger used for reap errors.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(r *Reaper) {
		r.metrics = m
	}
}

// New constructs a Reaper with the given retention horizon and options applied.
func New(sessions SessionStore, retention time.Duration, opts ...Option) (*Reaper, error) {
	if sessions == nil {
		return nil, fmt.Errorf("sessions store is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	r := &Reaper{
		sessions:  sessions,
		retention: retention,
		interval:  24 * time.Hour,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Start runs reap passes periodically until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "session reap failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single reap pass and returns the number of sessions
// removed.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.retention)

	deleted, err := r.sessions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete sessions older than %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if r.metrics != nil {
		r.metrics.AddSessionsReaped(deleted)
	}
	if deleted > 0 {
		r.logger.InfoContext(ctx, "reaped stale verification sessions", "deleted", deleted)
	}
	return deleted, nil
}
