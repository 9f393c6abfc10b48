// Package memory is an in-process storage backend for development and tests.
package memory

import (
	"context"
	"sync"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Backend keeps values in a map guarded by a RWMutex.
type Backend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty memory backend.
func New() *Backend {
	return &Backend{data: make(map[string][]byte)}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.data[key]
	if !ok {
		return nil, apperrors.NotFound("key", key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (b *Backend) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	b.mu.Lock()
	b.data[key] = v
	b.mu.Unlock()
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.data, key)
	b.mu.Unlock()
	return nil
}

func (b *Backend) Ping(context.Context) error { return nil }

// Len returns the number of stored keys.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}
