package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agegate/internal/age/models"
	"agegate/internal/sentinel"
)

const (
	sessionKeyPrefix = "age:session:"
	tokenKeyPrefix   = "age:token:"
)

// sessionJSON is the JSON-serializable representation of a Session.
type sessionJSON struct {
	Handle        string `json:"handle"`
	UpstreamToken string `json:"upstream_token"`
	UserID        string `json:"user_id,omitempty"`
	CreatedAt     int64  `json:"created_at"` // Unix nano
}

// RedisSessionStore keeps sessions in Redis for multi-process deployments.
// Entries carry the retention horizon as TTL, so Redis performs the reaping
// itself and DeleteOlderThan is a no-op kept for interface parity.
type RedisSessionStore struct {
	client    redis.Cmdable
	retention time.Duration
}

// NewSessionRedis constructs a Redis-backed session store. The retention
// duration is applied as TTL on every entry.
func NewSessionRedis(client redis.Cmdable, retention time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, retention: retention}
}

// CreateSession allocates a fresh handle and persists the session. Token
// uniqueness is enforced with SETNX on a token marker key.
func (s *RedisSessionStore) CreateSession(ctx context.Context, upstreamToken, userID string) (*models.Session, error) {
	handle, err := models.NewHandle()
	if err != nil {
		return nil, err
	}

	created, err := s.client.SetNX(ctx, tokenKeyPrefix+upstreamToken, handle, s.retention).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve upstream token: %w", err)
	}
	if !created {
		return nil, sentinel.ErrDuplicateToken
	}

	session := &models.Session{
		Handle:        handle,
		UpstreamToken: upstreamToken,
		UserID:        userID,
		CreatedAt:     time.Now(),
	}
	payload, err := json.Marshal(sessionJSON{
		Handle:        session.Handle,
		UpstreamToken: session.UpstreamToken,
		UserID:        session.UserID,
		CreatedAt:     session.CreatedAt.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+handle, payload, s.retention).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return session, nil
}

// FindByHandle resolves a handle to its session.
func (s *RedisSessionStore) FindByHandle(ctx context.Context, handle string) (*models.Session, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+handle).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	var j sessionJSON
	if err := json.Unmarshal(payload, &j); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &models.Session{
		Handle:        j.Handle,
		UpstreamToken: j.UpstreamToken,
		UserID:        j.UserID,
		CreatedAt:     time.Unix(0, j.CreatedAt),
	}, nil
}

// DeleteByHandle removes a session and its token marker.
func (s *RedisSessionStore) DeleteByHandle(ctx context.Context, handle string) error {
	session, err := s.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.client.Del(ctx, sessionKeyPrefix+handle, tokenKeyPrefix+session.UpstreamToken).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteOlderThan is a no-op: entry TTLs enforce the retention horizon.
func (s *RedisSessionStore) DeleteOlderThan(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
