// Package cache keeps webhook delivery keys in Redis so redeliveries are
// recognised across instances.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "payments:webhook:"

// IdempotencyStore implements ports.IdempotencyStore.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient connects to Redis. A failed ping is returned so the caller can
// fall back to the in-memory store.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pong, err := client.Ping(pingCtx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	log.Printf("Successfully connected to redis: %s", pong)
	return client, nil
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Seen reports whether key was remembered and has not expired.
func (s *IdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Remember stores key for the configured TTL. Remembering twice is harmless.
func (s *IdempotencyStore) Remember(ctx context.Context, key string) error {
	err := s.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), s.ttl).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return nil
}
