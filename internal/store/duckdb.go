package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"ubcc/internal/models"
)

// DuckDBStore persists one candle series in a DuckDB file. The candle
// timestamp is the primary key; page writes go through INSERT OR REPLACE
// inside a transaction, so a page either lands fully or not at all.
type DuckDBStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// compile-time interface check
var _ Store = (*DuckDBStore)(nil)

// NewDuckDBStore opens (creating if needed) the database file at path and
// ensures the candle table exists. The parent directory is created when
// missing.
func NewDuckDBStore(path string, logger *slog.Logger) (*DuckDBStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, NewOpenError(fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, NewOpenError(fmt.Errorf("failed to open database: %w", err))
	}

	s := &DuckDBStore{
		db:     db,
		path:   path,
		logger: logger.With("component", "duckdb_store", "path", path),
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DuckDBStore) createSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS candles (
			timestamp TIMESTAMP PRIMARY KEY,
			open      VARCHAR NOT NULL,
			high      VARCHAR NOT NULL,
			low       VARCHAR NOT NULL,
			close     VARCHAR NOT NULL,
			volume    VARCHAR NOT NULL
		)`
	if _, err := s.db.Exec(schema); err != nil {
		return NewOpenError(fmt.Errorf("failed to create schema: %w", err))
	}
	return nil
}

// Upsert writes candles in one transaction, replacing rows that share a
// timestamp with an incoming candle.
func (s *DuckDBStore) Upsert(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewWriteError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return NewWriteError(fmt.Errorf("failed to prepare statement: %w", err))
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return NewWriteError(fmt.Errorf("failed to write candle at %s: %w",
				c.Timestamp.UTC().Format(time.RFC3339), err))
		}
	}

	if err := tx.Commit(); err != nil {
		return NewWriteError(fmt.Errorf("failed to commit transaction: %w", err))
	}

	s.logger.Debug("upserted candles", "count", len(candles))
	return nil
}

// Query returns candles in [start, end), oldest first.
func (s *DuckDBStore) Query(ctx context.Context, start, end time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`,
		start.UTC(), end.UTC())
	if err != nil {
		return nil, NewQueryError(fmt.Errorf("failed to query candles: %w", err))
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, NewQueryError(fmt.Errorf("failed to scan candle: %w", err))
		}
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, NewQueryError(fmt.Errorf("row iteration failed: %w", err))
	}
	return candles, nil
}

// Count returns the number of stored candles in [start, end).
func (s *DuckDBStore) Count(ctx context.Context, start, end time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM candles
		WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC(), end.UTC()).Scan(&count)
	if err != nil {
		return 0, NewQueryError(fmt.Errorf("failed to count candles: %w", err))
	}
	return count, nil
}

// Bounds returns the oldest and newest stored timestamps.
func (s *DuckDBStore) Bounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	var oldest, newest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(timestamp), MAX(timestamp) FROM candles`).Scan(&oldest, &newest)
	if err != nil {
		return time.Time{}, time.Time{}, false, NewQueryError(fmt.Errorf("failed to query bounds: %w", err))
	}
	if !oldest.Valid || !newest.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return oldest.Time.UTC(), newest.Time.UTC(), true, nil
}

// Close closes the database file.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}
