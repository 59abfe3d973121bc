// Package store persists candle series. Each series (coin, fiat, timeframe)
// maps to its own database file keyed by candle timestamp, so writes are
// idempotent and re-collection of an already-stored range is a no-op.
package store

import (
	"context"
	"fmt"
	"time"

	"ubcc/internal/models"
)

// Store is the persistence contract for a single candle series. All queries
// operate on UTC timestamps; ranges are half-open [start, end).
type Store interface {
	// Upsert writes a page of candles in one transaction. Rows whose
	// timestamp already exists are replaced, so replaying a page cannot
	// create duplicates. An empty slice is a no-op.
	Upsert(ctx context.Context, candles []models.Candle) error

	// Query returns stored candles with start <= timestamp < end, in
	// ascending timestamp order.
	Query(ctx context.Context, start, end time.Time) ([]models.Candle, error)

	// Count returns the number of stored candles in [start, end).
	Count(ctx context.Context, start, end time.Time) (int, error)

	// Bounds returns the oldest and newest stored timestamps. ok is false
	// when the series is empty.
	Bounds(ctx context.Context) (oldest, newest time.Time, ok bool, err error)

	// Close releases the underlying resources.
	Close() error
}

// StoreError wraps a storage failure with the operation that produced it.
// Write failures are fatal to a collection call; the error carries enough
// context to report which page could not be persisted.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewWriteError wraps a failed insert or replace.
func NewWriteError(err error) *StoreError {
	return &StoreError{Op: "write", Err: err}
}

// NewQueryError wraps a failed read.
func NewQueryError(err error) *StoreError {
	return &StoreError{Op: "query", Err: err}
}

// NewOpenError wraps a failure to open or initialize the database.
func NewOpenError(err error) *StoreError {
	return &StoreError{Op: "open", Err: err}
}
