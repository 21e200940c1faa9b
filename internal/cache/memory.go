package cache

import (
	"context"
	"maps"
	"sync"

	"github.com/eugenenazirov/stamp-dispenser/internal/dispenser"
)

const defaultMaxEntries = 10_000

// MemoryCache keeps results in a map guarded by a RWMutex. When it reaches
// maxEntries the map is cleared before the next insert.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]dispenser.Result
	maxEntries int
}

// NewMemoryCache creates an in-process cache holding at most maxEntries results.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryCache{
		entries:    make(map[string]dispenser.Result),
		maxEntries: maxEntries,
	}
}

// Get returns a copy of the cached result for key.
func (c *MemoryCache) Get(_ context.Context, key string) (dispenser.Result, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.entries[key]
	if !ok {
		return dispenser.Result{}, false, nil
	}
	result.Units = maps.Clone(result.Units)
	return result, true, nil
}

// Set stores a copy of result under key.
func (c *MemoryCache) Set(_ context.Context, key string, result dispenser.Result) error {
	result.Units = maps.Clone(result.Units)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		clear(c.entries)
	}
	c.entries[key] = result
	return nil
}

// Len reports the number of cached results.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close is a no-op for the in-memory cache.
func (c *MemoryCache) Close() error {
	return nil
}
