// Package gaps finds missing candles in a stored series by comparing the
// expected timestamp grid against what is actually present. Analysis is a
// pure set difference over timestamps; it never inspects prices.
package gaps

import (
	"context"
	"log/slog"
	"time"

	"ubcc/internal/models"
	"ubcc/internal/store"
	"ubcc/internal/timegrid"
)

// Analyzer detects gaps in a candle series within a requested window.
type Analyzer struct {
	store  store.Store
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer over the given store.
func NewAnalyzer(st store.Store, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		store:  st,
		logger: logger.With("component", "gap_analyzer"),
	}
}

// Analyze returns the gaps in [start, end) for the given timeframe. Adjacent
// missing timestamps coalesce into a single gap whose Start and End are both
// inclusive. Leading and trailing absences count the same as interior ones.
func (a *Analyzer) Analyze(ctx context.Context, tf timegrid.Timeframe, start, end time.Time) ([]models.Gap, error) {
	expected := timegrid.ExpectedTimestamps(tf, start, end)
	if len(expected) == 0 {
		return nil, nil
	}

	stored, err := a.store.Query(ctx, start, end)
	if err != nil {
		return nil, err
	}

	present := make(map[int64]struct{}, len(stored))
	for _, c := range stored {
		present[c.Timestamp.UTC().Unix()] = struct{}{}
	}

	gaps := FindMissing(expected, present)

	a.logger.Debug("gap analysis complete",
		"timeframe", string(tf),
		"expected", len(expected),
		"present", len(stored),
		"gaps", len(gaps))

	return gaps, nil
}

// FindMissing walks the expected grid in ascending order and coalesces runs
// of absent timestamps into inclusive gaps. Consecutive positions in the
// expected grid are treated as adjacent regardless of calendar step length.
func FindMissing(expected []time.Time, present map[int64]struct{}) []models.Gap {
	var gaps []models.Gap
	var current *models.Gap

	for _, ts := range expected {
		if _, ok := present[ts.Unix()]; ok {
			if current != nil {
				gaps = append(gaps, *current)
				current = nil
			}
			continue
		}
		if current == nil {
			current = &models.Gap{Start: ts, End: ts, MissingCandles: 1}
		} else {
			current.End = ts
			current.MissingCandles++
		}
	}
	if current != nil {
		gaps = append(gaps, *current)
	}
	return gaps
}
