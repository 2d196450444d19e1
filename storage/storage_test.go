package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// clock is a settable time source shared by a store under test.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newSQLite(t *testing.T, c *clock) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), Config{Path: filepath.Join(t.TempDir(), "test.db")}, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.now = c.now
	t.Cleanup(func() { s.Close() })
	return s
}

func newMemory(t *testing.T, c *clock) *MemoryStore {
	s := NewMemoryStore()
	s.now = c.now
	return s
}

func backends(t *testing.T) map[string]func(*clock) Store {
	return map[string]func(*clock) Store{
		"memory": func(c *clock) Store { return newMemory(t, c) },
		"sqlite": func(c *clock) Store { return newSQLite(t, c) },
		"cached": func(c *clock) Store {
			cs := NewCachedStore(newSQLite(t, c))
			cs.now = c.now
			return cs
		},
	}
}

func TestDimensionCache(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{t: time.Unix(1_700_000_000, 0)}
			s := open(c)

			_, found, err := s.GetDimensions(ctx, "missing", time.Hour)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.StoreDimensions(ctx, "q|switch pro", []byte(`{"L":152}`)))
			got, found, err := s.GetDimensions(ctx, "q|switch pro", time.Hour)
			require.NoError(t, err)
			require.True(t, found)
			assert.JSONEq(t, `{"L":152}`, string(got))

			require.NoError(t, s.StoreDimensions(ctx, "q|switch pro", []byte(`{"L":153}`)))
			got, _, _ = s.GetDimensions(ctx, "q|switch pro", time.Hour)
			assert.JSONEq(t, `{"L":153}`, string(got))

			c.t = c.t.Add(2 * time.Hour)
			_, found, err = s.GetDimensions(ctx, "q|switch pro", time.Hour)
			require.NoError(t, err)
			assert.False(t, found, "entry older than maxAge must miss")

			count, err := s.GetDimensionsCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			removed, err := s.CleanupOldDimensions(ctx, time.Hour)
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			require.NoError(t, s.StoreDimensions(ctx, "a", []byte("1")))
			require.NoError(t, s.ClearDimensions(ctx))
			count, err = s.GetDimensionsCount(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestActivityLog(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{t: time.Unix(1_700_000_000, 0)}
			s := open(c)

			for _, kind := range []string{"identify", "dimensions", "stl"} {
				require.NoError(t, s.InsertEvent(ctx, kind, "ok", "detail "+kind))
				c.t = c.t.Add(time.Second)
			}

			count, err := s.GetEventsCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, count)

			events, err := s.GetEvents(ctx, 2, 0)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, "stl", events[0].Kind)
			assert.Equal(t, "dimensions", events[1].Kind)
			assert.Equal(t, time.Unix(1_700_000_002, 0).UTC(), events[0].Timestamp)

			events, err = s.GetEvents(ctx, 10, 2)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, "identify", events[0].Kind)
			assert.Equal(t, "detail identify", events[0].Detail)

			events, err = s.GetEvents(ctx, 10, 50)
			require.NoError(t, err)
			assert.Empty(t, events)

			require.NoError(t, s.ClearEvents(ctx))
			count, err = s.GetEventsCount(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestEventDetailTruncated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.InsertEvent(ctx, "stl", "ok", strings.Repeat("x", MaxEventDetailSize+10)))
	events, err := s.GetEvents(ctx, 1, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(events[0].Detail, "... [truncated]"))
}

func TestCachedStoreServesFromMemory(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	backend := newMemory(t, c)
	cs := NewCachedStore(backend)
	cs.now = c.now

	require.NoError(t, cs.StoreDimensions(ctx, "k", []byte("v")))
	require.NoError(t, backend.ClearDimensions(ctx))

	got, found, err := cs.GetDimensions(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", string(got))
}

func TestCachedStoreKeepsBackendAge(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1_700_000_000, 0)
	tests := map[string]func(*clock) Store{
		"memory": func(c *clock) Store { return newMemory(t, c) },
		"sqlite": func(c *clock) Store { return newSQLite(t, c) },
	}
	for name, newBackend := range tests {
		t.Run(name, func(t *testing.T) {
			c := &clock{t: start}
			backend := newBackend(c)
			require.NoError(t, backend.StoreDimensions(ctx, "k", []byte("v")))

			cs := NewCachedStore(backend)
			cs.now = c.now

			// first read is a backend hit 50 minutes in
			c.t = start.Add(50 * time.Minute)
			_, found, err := cs.GetDimensions(ctx, "k", time.Hour)
			require.NoError(t, err)
			require.True(t, found)

			// the memory copy expires with the backend entry, not an hour later
			c.t = start.Add(61 * time.Minute)
			_, found, err = cs.GetDimensions(ctx, "k", time.Hour)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

// untimedStore hides the backend's stored-at lookup.
type untimedStore struct{ Store }

func TestCachedStoreSkipsUntimedBackendHits(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	mem := newMemory(t, c)
	require.NoError(t, mem.StoreDimensions(ctx, "k", []byte("v")))

	cs := NewCachedStore(untimedStore{mem})
	cs.now = c.now
	got, found, err := cs.GetDimensions(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", string(got))

	require.NoError(t, mem.ClearDimensions(ctx))
	_, found, err = cs.GetDimensions(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	s, err := Open(ctx, Config{Driver: DriverMemory}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "x", "db.sqlite"), UseCache: true}, logger)
	require.NoError(t, err)
	assert.IsType(t, &CachedStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Driver: "mongo"}, logger)
	assert.Error(t, err)
}
