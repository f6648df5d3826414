package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPending = "pending"

// IdempotencyStore remembers which booking a client key produced.
// Begin returns the booking id of a completed key, ErrIdempotencyInFlight while
// another request holds the key, or "" once the caller owns the key.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (string, error)
	Complete(ctx context.Context, key, bookingID string) error
	Release(ctx context.Context, key string) error
}

// RedisIdempotencyStore keeps keys in Redis with a TTL
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis backed key store
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func redisIdempotencyKey(key string) string {
	return "idempotency:booking:" + key
}

// Begin implements IdempotencyStore
func (s *RedisIdempotencyStore) Begin(ctx context.Context, key string) (string, error) {
	k := redisIdempotencyKey(key)
	ok, err := s.client.SetNX(ctx, k, idempotencyPending, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("idempotency begin: %w", err)
	}
	if ok {
		return "", nil
	}

	value, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Begin(ctx, key)
	}
	if err != nil {
		return "", fmt.Errorf("idempotency lookup: %w", err)
	}
	if value == idempotencyPending {
		return "", ErrIdempotencyInFlight
	}
	return value, nil
}

// Complete implements IdempotencyStore
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key, bookingID string) error {
	if err := s.client.Set(ctx, redisIdempotencyKey(key), bookingID, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

// Release implements IdempotencyStore
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisIdempotencyKey(key)).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryIdempotencyStore is the single-instance fallback when Redis is not configured
type MemoryIdempotencyStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

// NewMemoryIdempotencyStore creates an in-process key store
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

// Begin implements IdempotencyStore
func (s *MemoryIdempotencyStore) Begin(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if entry, ok := s.entries[key]; ok && now.Before(entry.expiresAt) {
		if entry.value == idempotencyPending {
			return "", ErrIdempotencyInFlight
		}
		return entry.value, nil
	}
	s.entries[key] = memoryEntry{value: idempotencyPending, expiresAt: now.Add(s.ttl)}
	return "", nil
}

// sweep drops expired keys at most once per TTL. Callers hold s.mu.
func (s *MemoryIdempotencyStore) sweep(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.nextSweep = now.Add(s.ttl)
}

// Complete implements IdempotencyStore
func (s *MemoryIdempotencyStore) Complete(_ context.Context, key, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: bookingID, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Release implements IdempotencyStore
func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
