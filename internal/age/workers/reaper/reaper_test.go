package reaper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubStore struct {
	cutoff  time.Time
	deleted int
	err     error
	calls   int
}

func (s *stubStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.calls++
	s.cutoff = cutoff
	return s.deleted, s.err
}

type stubMetrics struct {
	reaped int
}

func (m *stubMetrics) AddSessionsReaped(count int) {
	m.reaped += count
}

func TestReaper_RunOnce(t *testing.T) {
	store := &stubStore{deleted: 3}
	metrics := &stubMetrics{}

	r, err := New(store, 24*time.Hour,
		WithMetrics(metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	before := time.Now().Add(-24 * time.Hour)
	deleted, err := r.RunOnce(context.Background())
	after := time.Now().Add(-24 * time.Hour)

	require.NoError(t, err)
	require.Equal(t, 3, deleted)
	require.Equal(t, 3, metrics.reaped)

	// Cutoff is now minus the retention horizon.
	require.False(t, store.cutoff.Before(before))
	require.False(t, store.cutoff.After(after))
}

func TestReaper_RunOnce_StoreError(t *testing.T) {
	store := &stubStore{err: errors.New("connection reset")}

	r, err := New(store, 24*time.Hour)
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
}

func TestReaper_Start_StopsOnCancel(t *testing.T) {
	store := &stubStore{deleted: 1}

	r, err := New(store, 24*time.Hour, WithInterval(5*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
	require.GreaterOrEqual(t, store.calls, 1)
}

func TestReaper_New_Validation(t *testing.T) {
	_, err := New(nil, 24*time.Hour)
	require.Error(t, err)

	_, err = New(&stubStore{}, 0)
	require.Error(t, err)
}
