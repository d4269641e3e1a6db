// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/redlinehq/redline/internal/port/cache"
)

// Cache combines an in-process L1 with a remote L2. Result reads check
// L1 first, then L2, backfilling L1 on an L2 hit so repeated fetches of
// the same review stay local. Set and Delete operate on both levels.
type Cache struct {
	l1          cache.Cache
	l2          cache.Cache
	backfillTTL time.Duration
}

// New creates a tiered cache with the given L1 and L2 backends.
// backfillTTL controls how long L2 backfill entries live in L1.
func New(l1, l2 cache.Cache, backfillTTL time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, backfillTTL: backfillTTL}
}

// Get checks L1, then L2, backfilling L1 on an L2 hit.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := c.l1.Get(ctx, key); err != nil || ok {
		return val, ok, err
	}

	val, ok, err := c.l2.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	_ = c.l1.Set(ctx, key, val, c.backfillTTL)
	return val, true, nil
}

// Set writes through both levels. An L1 failure does not stop the L2
// write; the remote tier is the one other replicas read.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Join(
		c.l1.Set(ctx, key, value, ttl),
		c.l2.Set(ctx, key, value, ttl),
	)
}

// Delete drops the key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(
		c.l1.Delete(ctx, key),
		c.l2.Delete(ctx, key),
	)
}
