package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agegate/internal/sentinel"
)

func TestSessionStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewSessionMemory()
	userID := uuid.New().String()

	session, err := s.CreateSession(ctx, "tkn-abc", userID)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Handle)
	assert.Equal(t, "tkn-abc", session.UpstreamToken)
	assert.Equal(t, userID, session.UserID)
	assert.WithinDuration(t, time.Now(), session.CreatedAt, time.Second)

	found, err := s.FindByHandle(ctx, session.Handle)
	require.NoError(t, err)
	assert.Equal(t, session.Handle, found.Handle)
	assert.Equal(t, session.UpstreamToken, found.UpstreamToken)
}

func TestSessionStore_HandleUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewSessionMemory()

	handles := make(map[string]bool)
	for i := range 100 {
		session, err := s.CreateSession(ctx, fmt.Sprintf("tkn-%03d", i), uuid.New().String())
		require.NoError(t, err)
		assert.False(t, handles[session.Handle], "duplicate handle issued")
		handles[session.Handle] = true
	}
}

func TestSessionStore_DuplicateToken(t *testing.T) {
	ctx := context.Background()
	s := NewSessionMemory()

	_, err := s.CreateSession(ctx, "tkn-abc", uuid.New().String())
	require.NoError(t, err)

	_, err = s.CreateSession(ctx, "tkn-abc", uuid.New().String())
	require.ErrorIs(t, err, sentinel.ErrDuplicateToken)
}

func TestSessionStore_FindUnknownHandle(t *testing.T) {
	s := NewSessionMemory()
	_, err := s.FindByHandle(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSessionStore_DeleteByHandle(t *testing.T) {
	ctx := context.Background()
	s := NewSessionMemory()

	session, err := s.CreateSession(ctx, "tkn-abc", uuid.New().String())
	require.NoError(t, err)

	require.NoError(t, s.DeleteByHandle(ctx, session.Handle))
	_, err = s.FindByHandle(ctx, session.Handle)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	// Token is free again after deletion
	_, err = s.CreateSession(ctx, "tkn-abc", uuid.New().String())
	require.NoError(t, err)

	// Deleting twice is not an error
	require.NoError(t, s.DeleteByHandle(ctx, session.Handle))
}

func TestSessionStore_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewSessionMemory()

	old, err := s.CreateSession(ctx, "tkn-old", uuid.New().String())
	require.NoError(t, err)
	old.CreatedAt = time.Now().Add(-25 * time.Hour)
	s.byHandle[old.Handle] = old

	fresh, err := s.CreateSession(ctx, "tkn-new", uuid.New().String())
	require.NoError(t, err)

	deleted, err := s.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = s.FindByHandle(ctx, old.Handle)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = s.FindByHandle(ctx, fresh.Handle)
	require.NoError(t, err)
}
