// Package export writes stored candle series to CSV files for downstream
// analysis tools.
package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ubcc/internal/models"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// CSVWriter writes candle slices to timestamped CSV files under a base
// directory.
type CSVWriter struct {
	dir    string
	logger *slog.Logger
}

// NewCSVWriter creates a writer rooted at dir. The directory is created on
// first write.
func NewCSVWriter(dir string, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{
		dir:    dir,
		logger: logger.With("component", "csv_export"),
	}
}

// Write dumps candles for the series into a new file named after the series
// and the current time, and returns the file's path. Candles are written in
// the order given, one row per candle with RFC 3339 timestamps.
func (w *CSVWriter) Write(series models.Series, candles []models.Candle) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.csv",
		series.Market(),
		series.Timeframe,
		time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for _, c := range candles {
		row := []string{
			c.Timestamp.UTC().Format(time.RFC3339),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		}
		if err := cw.Write(row); err != nil {
			return "", fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("failed to flush export file: %w", err)
	}

	w.logger.Info("exported candles", "path", path, "rows", len(candles))
	return path, nil
}
