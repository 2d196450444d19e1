package storage

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload  []byte
	storedAt time.Time
}

// MemoryStore implements Store in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	events  []Event
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// StoreDimensions stores or replaces the payload for key
func (m *MemoryStore) StoreDimensions(ctx context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= DefaultMaxCacheEntries {
		m.evictOldestLocked()
	}
	m.entries[key] = memoryEntry{payload: append([]byte(nil), payload...), storedAt: m.now()}
	return nil
}

func (m *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range m.entries {
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
		}
	}
	delete(m.entries, oldestKey)
}

// GetDimensions returns the payload if it was stored less than maxAge ago
func (m *MemoryStore) GetDimensions(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	payload, _, found, err := m.getDimensionsAt(ctx, key, maxAge)
	return payload, found, err
}

func (m *MemoryStore) getDimensionsAt(ctx context.Context, key string, maxAge time.Duration) ([]byte, time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || m.now().Sub(e.storedAt) >= maxAge {
		return nil, time.Time{}, false, nil
	}
	return append([]byte(nil), e.payload...), e.storedAt, true, nil
}

// CleanupOldDimensions removes entries older than specified duration
func (m *MemoryStore) CleanupOldDimensions(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-olderThan)
	var removed int64
	for k, e := range m.entries {
		if e.storedAt.Before(cutoff) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// ClearDimensions removes all cached entries
func (m *MemoryStore) ClearDimensions(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

// GetDimensionsCount returns the number of cached entries
func (m *MemoryStore) GetDimensionsCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// InsertEvent appends an event, dropping the oldest past DefaultMaxEvents
func (m *MemoryStore) InsertEvent(ctx context.Context, kind, status, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.events = append(m.events, Event{
		ID:        m.nextID,
		Timestamp: m.now().UTC(),
		Kind:      kind,
		Status:    status,
		Detail:    truncateDetail(detail),
	})
	if len(m.events) > DefaultMaxEvents {
		m.events = append([]Event(nil), m.events[len(m.events)-DefaultMaxEvents:]...)
	}
	return nil
}

// GetEvents returns events newest first
func (m *MemoryStore) GetEvents(ctx context.Context, limit int, offset int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Event{}
	for i := len(m.events) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

// GetEventsCount returns the total number of events
func (m *MemoryStore) GetEventsCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events), nil
}

// ClearEvents removes all events
func (m *MemoryStore) ClearEvents(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	return nil
}

// Close is a no-op for the memory store
func (m *MemoryStore) Close() error {
	return nil
}
