package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const keyPrefix = "storefront:"

// Backend implements storage.Backend on Redis. Every write refreshes the key's
// TTL so idle sessions expire on their own.
type Backend struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBackend creates a Redis-backed storage backend. A zero ttl keeps keys forever.
func NewBackend(client *redis.Client, ttl time.Duration) *Backend {
	return &Backend{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the raw value stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("key", key)
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores value under key with the configured TTL.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, keyPrefix+key, value, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
