package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps session records in Redis so multiple gateway nodes
// can serve the same session. Records are stored as JSON under a prefixed
// key with a TTL acting as the idle cleanup.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisStoreOption configures a RedisSessionStore.
type RedisStoreOption func(*RedisSessionStore)

// WithRedisTTL sets the record TTL. Zero disables expiry.
func WithRedisTTL(d time.Duration) RedisStoreOption {
	return func(s *RedisSessionStore) { s.ttl = d }
}

// WithRedisKeyPrefix overrides the default "bastion:session:" prefix.
func WithRedisKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisSessionStore) { s.prefix = prefix }
}

// NewRedisSessionStore wraps an existing Redis client.
func NewRedisSessionStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisSessionStore {
	s := &RedisSessionStore{
		client: client,
		prefix: "bastion:session:",
		ttl:    1 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSessionStore) key(id string) string { return s.prefix + id }

// Get fetches a record. Returns nil, nil when the key is absent or expired.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session %s: %w", id, err)
	}

	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &rec, nil
}

// Save writes the record, refreshing its TTL.
func (s *RedisSessionStore) Save(ctx context.Context, rec *SessionRecord) error {
	if rec == nil {
		return &ValidationError{Field: "record", Reason: "nil"}
	}
	if rec.ID == "" {
		return &ValidationError{Field: "record", Reason: "empty session id"}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.ID, err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes the record.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

var _ SessionStore = (*RedisSessionStore)(nil)
