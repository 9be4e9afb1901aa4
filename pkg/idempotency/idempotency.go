// Package idempotency implements the idempotency store (C4): a Redis-backed
// message_id -> processed record with a 24h TTL.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// processedSentinel is the literal value written for a committed key.
const processedSentinel = "processed"

// DefaultTTL is the idempotency window: how long a committed message_id
// blocks reprocessing of a redelivered duplicate.
const DefaultTTL = 24 * time.Hour

// Store is the capability the dispatcher (C5) needs: membership check plus
// unconditional commit-with-TTL. The dispatcher depends on this interface
// rather than on RedisStore, so tests can inject a fake without Redis.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, ttl time.Duration) error
}

// RedisStore implements Store against a single Redis node.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store against addr/password/db. It does not
// contact Redis: the client connects on first use, and Ping checks
// connectivity explicitly.
func NewRedisStore(addr, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client}
}

// Ping verifies connectivity to the Redis node.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Exists answers the check-then-set membership query: "EXISTS".
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: EXISTS %s: %w", key, err)
	}
	return n > 0, nil
}

// Set performs the unconditional "SET … EX ttl" commit.
func (s *RedisStore) Set(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, processedSentinel, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: SET %s: %w", key, err)
	}
	return nil
}

// Claim is an optional atomic "set if not exists" alternative to
// Exists-then-Set: it returns true only if this call created the record.
// Unlike Set, it is safe to call standalone, closing the
// concurrent-double-delivery window the sequential Exists-then-Set path
// leaves open when two consumers race on the same message_id. The
// dispatcher's normal path does not use it; it exists for a caller that
// wants that stronger guarantee without changing behaviour for the ordinary
// single-consumer-redelivery case.
func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, processedSentinel, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: SETNX %s: %w", key, err)
	}
	return ok, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
