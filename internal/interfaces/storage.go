package interfaces

import (
	"context"
	"time"
)

// CacheStore is a TTL-aware key-value backing store. Each Set replaces the
// whole value atomically. Get returns found=false for missing or expired keys.
type CacheStore interface {
	// Get retrieves the raw value for key
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key, expiring after ttl (0 = no expiry)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Close releases the store
	Close() error
}
