// Package cache defines the result cache port.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. The review service
// uses it to serve finished results without touching the job store;
// entries are immutable once written, so a stale read is impossible and
// a miss just falls back to the store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
