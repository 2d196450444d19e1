package storage

import (
	"context"
	"sync"
	"time"
)

// timedDimensions is implemented by backends that can report when an
// entry was written.
type timedDimensions interface {
	getDimensionsAt(ctx context.Context, key string, maxAge time.Duration) ([]byte, time.Time, bool, error)
}

// CachedStore answers dimension reads from memory first and falls back to
// the wrapped backend. Writes go to both.
type CachedStore struct {
	Store
	mu    sync.RWMutex
	cache map[string]memoryEntry
	now   func() time.Time
}

// NewCachedStore wraps backend with a read-through memory cache
func NewCachedStore(backend Store) *CachedStore {
	return &CachedStore{
		Store: backend,
		cache: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// StoreDimensions writes through to the backend
func (c *CachedStore) StoreDimensions(ctx context.Context, key string, payload []byte) error {
	if err := c.Store.StoreDimensions(ctx, key, payload); err != nil {
		return err
	}
	c.put(key, payload, c.now())
	return nil
}

func (c *CachedStore) put(key string, payload []byte, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cache) >= DefaultMaxCacheEntries {
		c.cache = make(map[string]memoryEntry)
	}
	c.cache[key] = memoryEntry{payload: append([]byte(nil), payload...), storedAt: at}
}

// GetDimensions checks memory first, then the backend
func (c *CachedStore) GetDimensions(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.storedAt) < maxAge {
		return append([]byte(nil), e.payload...), true, nil
	}

	timed, ok := c.Store.(timedDimensions)
	if !ok {
		// no stored time to age from, so the hit is not kept in memory
		return c.Store.GetDimensions(ctx, key, maxAge)
	}
	payload, storedAt, found, err := timed.getDimensionsAt(ctx, key, maxAge)
	if err != nil || !found {
		return payload, found, err
	}
	c.put(key, payload, storedAt)
	return payload, true, nil
}

// CleanupOldDimensions cleans both layers
func (c *CachedStore) CleanupOldDimensions(ctx context.Context, olderThan time.Duration) (int64, error) {
	c.mu.Lock()
	cutoff := c.now().Add(-olderThan)
	for k, e := range c.cache {
		if e.storedAt.Before(cutoff) {
			delete(c.cache, k)
		}
	}
	c.mu.Unlock()
	return c.Store.CleanupOldDimensions(ctx, olderThan)
}

// ClearDimensions clears both layers
func (c *CachedStore) ClearDimensions(ctx context.Context) error {
	c.mu.Lock()
	c.cache = make(map[string]memoryEntry)
	c.mu.Unlock()
	return c.Store.ClearDimensions(ctx)
}
