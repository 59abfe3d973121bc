// Package models provides the data structures shared by the candle
// collection pipeline: OHLCV candles, gap reports, and collection results.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents one OHLCV record at a fixed timeframe boundary of a
// single market series. Prices and volume are carried as decimal strings to
// avoid float drift between the API, storage, and export layers.
type Candle struct {
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Open      string    `json:"open" db:"open"`
	High      string    `json:"high" db:"high"`
	Low       string    `json:"low" db:"low"`
	Close     string    `json:"close" db:"close"`
	Volume    string    `json:"volume" db:"volume"`
}

// ValidationError reports a candle field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate checks that the candle carries a timestamp and parseable decimal
// fields with a non-negative volume. OHLC relationships are not checked:
// exchange data is trusted as-is, this only guards against malformed payloads
// reaching storage.
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "timestamp cannot be zero"}
	}

	for _, f := range []struct {
		name  string
		value string
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
	} {
		if _, err := decimal.NewFromString(f.value); err != nil {
			return &ValidationError{Field: f.name, Message: fmt.Sprintf("invalid decimal: %v", err)}
		}
	}

	volume, err := decimal.NewFromString(c.Volume)
	if err != nil {
		return &ValidationError{Field: "volume", Message: fmt.Sprintf("invalid decimal: %v", err)}
	}
	if volume.IsNegative() {
		return &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}

	return nil
}

// OpenDecimal returns the open price as a decimal.Decimal.
func (c *Candle) OpenDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Open)
}

// CloseDecimal returns the close price as a decimal.Decimal.
func (c *Candle) CloseDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Close)
}

// VolumeDecimal returns the traded volume as a decimal.Decimal.
func (c *Candle) VolumeDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Volume)
}

// String implements fmt.Stringer for log output.
func (c *Candle) String() string {
	return fmt.Sprintf("Candle{Timestamp: %s, O: %s, H: %s, L: %s, C: %s, V: %s}",
		c.Timestamp.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
}
