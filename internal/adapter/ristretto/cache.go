// Package ristretto implements the cache port with dgraph-io/ristretto
// as the in-process tier for finished review results.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// avgResultSize is the working assumption for one serialized review
// result. It only drives admission counter sizing, not any limit.
const avgResultSize = 4 << 10

// Cache holds serialized results in process memory. Cost accounting
// uses the byte length of each value directly.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New builds a cache bounded to maxCostBytes of stored values.
func New(maxCostBytes int64) (*Cache, error) {
	counters := maxCostBytes / avgResultSize * 10
	if counters < 10_000 {
		counters = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get reports a miss for keys ristretto evicted or never admitted.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value at its byte-length cost. Admission is best effort;
// a rejected entry reads as a miss.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete drops the key if present.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close stops the cache's internal goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
