// Package cache provides a get-or-load cache with TTL expiry and explicit
// invalidation. Concurrent misses for the same key share a single load.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// LoadFunc loads the value for a missing key.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// Cache is a size-bounded TTL cache keyed by string.
type Cache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group

	// gens counts invalidations per key and epoch counts purges; a load
	// only stores its result if neither moved while it ran.
	mu    sync.Mutex
	gens  map[string]uint64
	epoch uint64
}

// New creates a cache holding at most size entries for ttl each.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = 1024
	}
	return &Cache[V]{
		lru:  expirable.NewLRU[string, V](size, nil, ttl),
		gens: make(map[string]uint64),
	}
}

// GetOrLoad returns the cached value for key or calls load and caches its
// result. Load errors are returned and not cached. A result whose key was
// invalidated during the load is returned but not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		gen, epoch := c.version(key)
		v, err := load(ctx)
		if err != nil {
			return v, err
		}

		c.mu.Lock()
		if c.gens[key] == gen && c.epoch == epoch {
			c.lru.Add(key, v)
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, fmt.Errorf("load %q: %w", key, err)
	}
	return res.(V), nil
}

func (c *Cache[V]) version(key string) (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key], c.epoch
}

// Get returns a cached value without loading.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Invalidate drops key. A load already in flight for key does not store
// its result.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	c.lru.Remove(key)
	c.group.Forget(key)
}

// Purge drops every entry and discards loads in flight.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.lru.Purge()
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
