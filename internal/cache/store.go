// Package cache provides the read-through entry cache side-channel.
// The store is never the source of truth; every miss falls back to the
// repository.
package cache

import (
	"context"
	"time"
)

// Store is a TTL key-value cache.
type Store interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// SetWithTTL stores value under key for ttl.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
