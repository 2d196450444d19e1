package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore implements Store for PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore connects to PostgreSQL and creates the tables
func NewPostgresStore(ctx context.Context, cfg Config, logger *zap.Logger) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createPostgresTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger.Named("postgres")}, nil
}

func createPostgresTables(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS dimension_cache (
		cache_key VARCHAR(1000) PRIMARY KEY,
		payload BYTEA NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		hit_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		kind VARCHAR(50) NOT NULL,
		status VARCHAR(50) NOT NULL,
		detail TEXT
	);

	-- Create indexes for better performance
	CREATE INDEX IF NOT EXISTS idx_dimension_cache_created_at ON dimension_cache(created_at);
	CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// StoreDimensions stores or replaces the payload for key
func (p *PostgresStore) StoreDimensions(ctx context.Context, key string, payload []byte) error {
	query := `
	INSERT INTO dimension_cache (cache_key, payload, created_at, hit_count)
	VALUES ($1, $2, NOW(), 0)
	ON CONFLICT (cache_key)
	DO UPDATE SET
		payload = EXCLUDED.payload,
		created_at = NOW(),
		hit_count = 0
	`
	if _, err := p.db.ExecContext(ctx, query, key, payload); err != nil {
		return fmt.Errorf("failed to store dimensions: %w", err)
	}
	return nil
}

// GetDimensions returns the payload if it was stored less than maxAge ago
func (p *PostgresStore) GetDimensions(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	payload, _, found, err := p.getDimensionsAt(ctx, key, maxAge)
	return payload, found, err
}

func (p *PostgresStore) getDimensionsAt(ctx context.Context, key string, maxAge time.Duration) ([]byte, time.Time, bool, error) {
	query := `
	SELECT payload, created_at FROM dimension_cache
	WHERE cache_key = $1 AND created_at > NOW() - make_interval(secs => $2)
	`
	var payload []byte
	var createdAt time.Time
	err := p.db.QueryRowContext(ctx, query, key, maxAge.Seconds()).Scan(&payload, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("failed to get dimensions: %w", err)
	}

	// Update access statistics
	if _, err := p.db.ExecContext(ctx, `UPDATE dimension_cache SET hit_count = hit_count + 1 WHERE cache_key = $1`, key); err != nil {
		p.logger.Warn("failed to update hit count", zap.Error(err))
	}
	return payload, createdAt, true, nil
}

// CleanupOldDimensions removes entries older than specified duration
func (p *PostgresStore) CleanupOldDimensions(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM dimension_cache WHERE created_at < NOW() - make_interval(secs => $1)`
	result, err := p.db.ExecContext(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up dimensions: %w", err)
	}
	return result.RowsAffected()
}

// ClearDimensions removes all cached entries
func (p *PostgresStore) ClearDimensions(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM dimension_cache`); err != nil {
		return fmt.Errorf("failed to clear dimensions: %w", err)
	}
	p.logger.Info("dimension cache cleared")
	return nil
}

// GetDimensionsCount returns the number of cached entries
func (p *PostgresStore) GetDimensionsCount(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dimension_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get dimensions count: %w", err)
	}
	return count, nil
}

// InsertEvent appends an event
func (p *PostgresStore) InsertEvent(ctx context.Context, kind, status, detail string) error {
	query := `INSERT INTO events (created_at, kind, status, detail) VALUES (NOW(), $1, $2, $3)`
	if _, err := p.db.ExecContext(ctx, query, kind, status, truncateDetail(detail)); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvents returns events newest first
func (p *PostgresStore) GetEvents(ctx context.Context, limit int, offset int) ([]Event, error) {
	query := `
	SELECT id, created_at, kind, status, detail
	FROM events
	ORDER BY id DESC
	LIMIT $1 OFFSET $2
	`
	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e      Event
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Kind, &e.Status, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Detail = detail.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

// GetEventsCount returns the total number of events
func (p *PostgresStore) GetEventsCount(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get events count: %w", err)
	}
	return count, nil
}

// ClearEvents removes all events
func (p *PostgresStore) ClearEvents(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	p.logger.Info("events cleared")
	return nil
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
