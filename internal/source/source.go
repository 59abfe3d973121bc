// Package source fetches candle pages from the remote price API. It owns the
// pagination request shape, the rate-limit and retry behavior, and the error
// taxonomy the collector reacts to.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ubcc/internal/models"
	"ubcc/internal/timegrid"
)

// ErrSourceUnavailable is returned once the retry ceiling is exceeded or the
// source misbehaves in a way that cannot be retried through (e.g. a stalled
// pagination anchor). It is fatal to the current collection call; completed
// pages are already durably stored.
var ErrSourceUnavailable = errors.New("source unavailable")

// Client retrieves one page of candles older than a given anchor timestamp,
// in the remote API's native newest-first order. Implementations enforce the
// remote rate limit by delaying, never by dropping requests, and retry
// transient failures internally up to their policy's ceiling.
type Client interface {
	FetchPage(ctx context.Context, req PageRequest) ([]models.Candle, error)
}

// PageRequest identifies one page of a series' history.
type PageRequest struct {
	// Market is the exchange market code, e.g. "KRW-BTC".
	Market string

	// Timeframe selects the candle interval.
	Timeframe timegrid.Timeframe

	// Before is the exclusive upper bound: only candles strictly older than
	// this instant are returned.
	Before time.Time

	// Count is the requested page size. The remote may return fewer rows,
	// which signals history exhaustion.
	Count int
}

// Validate checks the request parameters.
func (r *PageRequest) Validate() error {
	if r.Market == "" {
		return fmt.Errorf("market cannot be empty")
	}
	if !r.Timeframe.Valid() {
		return fmt.Errorf("unsupported timeframe: %s", r.Timeframe)
	}
	if r.Before.IsZero() {
		return fmt.Errorf("before timestamp cannot be zero")
	}
	if r.Count <= 0 {
		return fmt.Errorf("count must be positive")
	}
	return nil
}

// RetryPolicy describes the bounded exponential backoff applied to transient
// failures (network errors, rate-limit rejections, 5xx responses). It is an
// explicit value passed into the client rather than ambient global state, so
// tests and callers can shrink or disable it.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff between retries.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64
}

// DefaultRetryPolicy matches the exchange's documented tolerance: five tries
// with 500ms initial delay doubling up to 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Validate checks that the policy values are usable.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive")
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max delay must not be below initial delay")
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1")
	}
	return nil
}

// TransientError wraps a retryable remote failure so callers can distinguish
// it from permanent request errors. The client retries these internally; they
// only surface, wrapped in ErrSourceUnavailable, once the ceiling is hit.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient source error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient source error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
