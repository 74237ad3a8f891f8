// Package fxrate recomputes currency exchange rates on a fixed cadence and
// publishes the resulting batch. Rates are derived from relative price levels
// (PPP) against a designated base faction whose currency is pinned at 1.0.
package fxrate

import (
	"sync"
	"time"

	"factionsim/internal/broadcast"
)

// Cache key layout.
const (
	MatrixKey = "fx:matrix"
	RateKey   = "fx:" // + currency code
)

// Cache is the short-TTL lookup the job writes after every run. Writes may
// fail; callers log and continue, a stale cache is never worth blocking the
// broadcast for.
type Cache interface {
	Set(key string, value any, ttl time.Duration) error
	Get(key string) (any, bool)
}

// MemoryCache is an in-process TTL cache. Expired entries are dropped lazily
// on read.
type MemoryCache struct {
	mu      sync.Mutex
	clock   broadcast.Clock
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// NewMemoryCache creates an empty cache. A nil clock selects the system clock.
func NewMemoryCache(clock broadcast.Clock) *MemoryCache {
	if clock == nil {
		clock = broadcast.SystemClock{}
	}
	return &MemoryCache{
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

// Set stores a value until now+ttl.
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expires: c.clock.Now().Add(ttl)}
	return nil
}

// Get returns the value if present and not expired.
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Len reports live entries, expiring stale ones as a side effect.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	return len(c.entries)
}
