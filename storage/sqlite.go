package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store for SQLite. Timestamps are unix
// milliseconds taken from the Go clock.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (and creates if needed) the database at cfg.Path
func NewSQLiteStore(ctx context.Context, cfg Config, logger *zap.Logger) (*SQLiteStore, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		dbPath = "gridfinity.db"
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSQLiteTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, logger: logger.Named("sqlite"), now: time.Now}, nil
}

func createSQLiteTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS dimension_cache (
			cache_key TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			hit_count INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dimension_cache_created_at ON dimension_cache(created_at)`,

		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", query, err)
		}
	}
	return nil
}

func (s *SQLiteStore) millis(t time.Time) int64 {
	return t.UnixMilli()
}

// StoreDimensions stores or replaces the payload for key
func (s *SQLiteStore) StoreDimensions(ctx context.Context, key string, payload []byte) error {
	query := `
	INSERT INTO dimension_cache (cache_key, payload, created_at, hit_count)
	VALUES (?, ?, ?, 0)
	ON CONFLICT (cache_key)
	DO UPDATE SET
		payload = excluded.payload,
		created_at = excluded.created_at,
		hit_count = 0
	`
	_, err := s.db.ExecContext(ctx, query, key, payload, s.millis(s.now()))
	if err != nil {
		return fmt.Errorf("failed to store dimensions: %w", err)
	}
	return nil
}

// GetDimensions returns the payload if it was stored less than maxAge ago
func (s *SQLiteStore) GetDimensions(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	payload, _, found, err := s.getDimensionsAt(ctx, key, maxAge)
	return payload, found, err
}

func (s *SQLiteStore) getDimensionsAt(ctx context.Context, key string, maxAge time.Duration) ([]byte, time.Time, bool, error) {
	cutoff := s.millis(s.now().Add(-maxAge))

	var payload []byte
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM dimension_cache WHERE cache_key = ? AND created_at > ?`, key, cutoff).Scan(&payload, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("failed to get dimensions: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE dimension_cache SET hit_count = hit_count + 1 WHERE cache_key = ?`, key); err != nil {
		s.logger.Warn("failed to update hit count", zap.Error(err))
	}
	return payload, time.UnixMilli(createdAt), true, nil
}

// CleanupOldDimensions removes entries older than specified duration
func (s *SQLiteStore) CleanupOldDimensions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.millis(s.now().Add(-olderThan))
	result, err := s.db.ExecContext(ctx, `DELETE FROM dimension_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up dimensions: %w", err)
	}
	return result.RowsAffected()
}

// ClearDimensions removes all cached entries
func (s *SQLiteStore) ClearDimensions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dimension_cache`); err != nil {
		return fmt.Errorf("failed to clear dimensions: %w", err)
	}
	s.logger.Info("dimension cache cleared")
	return nil
}

// GetDimensionsCount returns the number of cached entries
func (s *SQLiteStore) GetDimensionsCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dimension_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get dimensions count: %w", err)
	}
	return count, nil
}

// InsertEvent appends an event
func (s *SQLiteStore) InsertEvent(ctx context.Context, kind, status, detail string) error {
	query := `INSERT INTO events (created_at, kind, status, detail) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, s.millis(s.now()), kind, status, truncateDetail(detail)); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvents returns events newest first
func (s *SQLiteStore) GetEvents(ctx context.Context, limit int, offset int) ([]Event, error) {
	query := `
	SELECT id, created_at, kind, status, detail
	FROM events
	ORDER BY id DESC
	LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e       Event
			created int64
			detail  sql.NullString
		)
		if err := rows.Scan(&e.ID, &created, &e.Kind, &e.Status, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Timestamp = time.UnixMilli(created).UTC()
		e.Detail = detail.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

// GetEventsCount returns the total number of events
func (s *SQLiteStore) GetEventsCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get events count: %w", err)
	}
	return count, nil
}

// ClearEvents removes all events
func (s *SQLiteStore) ClearEvents(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	s.logger.Info("events cleared")
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
