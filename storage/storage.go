// Package storage persists dimension lookups and the activity log.
package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Retention limits
const (
	// DefaultMaxEvents is the maximum number of activity events kept in memory
	DefaultMaxEvents = 5000
	// MaxEventDetailSize is the maximum size of an event detail in bytes
	MaxEventDetailSize = 8 * 1024
	// DefaultMaxCacheEntries is the maximum number of cached lookups kept in memory
	DefaultMaxCacheEntries = 10000
)

// Driver names
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds database configuration
type Config struct {
	Driver string

	// SQLite
	Path string

	// Postgres
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration

	// UseCache puts an in-memory read-through layer in front of the backend
	UseCache bool
}

// DimensionCache stores serialized dimension lookups by query key
type DimensionCache interface {
	// StoreDimensions stores or replaces the payload for key
	StoreDimensions(ctx context.Context, key string, payload []byte) error

	// GetDimensions returns the payload if it was stored less than maxAge ago
	GetDimensions(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error)

	// CleanupOldDimensions removes entries older than specified duration
	CleanupOldDimensions(ctx context.Context, olderThan time.Duration) (int64, error)

	// ClearDimensions removes all cached entries
	ClearDimensions(ctx context.Context) error

	// GetDimensionsCount returns the number of cached entries
	GetDimensionsCount(ctx context.Context) (int, error)
}

// Event is one entry of the activity log
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail"`
}

// ActivityLog records what the service did, newest first
type ActivityLog interface {
	// InsertEvent appends an event
	InsertEvent(ctx context.Context, kind, status, detail string) error

	// GetEvents returns events newest first
	GetEvents(ctx context.Context, limit int, offset int) ([]Event, error)

	// GetEventsCount returns the total number of events
	GetEventsCount(ctx context.Context) (int, error)

	// ClearEvents removes all events
	ClearEvents(ctx context.Context) error
}

// Store is a complete storage backend
type Store interface {
	DimensionCache
	ActivityLog

	// Close closes the database connection
	Close() error
}

func truncateDetail(detail string) string {
	if len(detail) > MaxEventDetailSize {
		return detail[:MaxEventDetailSize] + "... [truncated]"
	}
	return detail
}

// Open creates the backend named by cfg.Driver
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "", DriverMemory:
		store = NewMemoryStore()
	case DriverSQLite:
		store, err = NewSQLiteStore(ctx, cfg, logger)
	case DriverPostgres:
		store, err = NewPostgresStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("storage ready", zap.String("driver", cfg.Driver), zap.Bool("cache", cfg.UseCache))
	if cfg.UseCache && cfg.Driver != "" && cfg.Driver != DriverMemory {
		return NewCachedStore(store), nil
	}
	return store, nil
}
