// Package collector drives incremental candle collection: it pages backward
// through a series' remote history, persists every page idempotently, and
// reconciles the stored window against the expected timestamp grid.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ubcc/internal/gaps"
	"ubcc/internal/models"
	"ubcc/internal/source"
	"ubcc/internal/store"
	"ubcc/internal/timegrid"
)

// Collector collects and reconciles one candle series. A single Collector
// runs at most one collection at a time; callers wanting concurrency run one
// Collector per series.
type Collector struct {
	client   source.Client
	store    store.Store
	analyzer *gaps.Analyzer
	series   models.Series
	pageSize int
	logger   *slog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithPageSize overrides the page size requested from the source.
func WithPageSize(n int) Option {
	return func(c *Collector) { c.pageSize = n }
}

// New creates a collector for one series backed by the given client and
// store.
func New(client source.Client, st store.Store, series models.Series, logger *slog.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		client:   client,
		store:    st,
		analyzer: gaps.NewAnalyzer(st, logger),
		series:   series,
		pageSize: source.MaxPageSize,
		logger: logger.With(
			"component", "collector",
			"series", series.String()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectRequest describes one collection run over a half-open time window.
type CollectRequest struct {
	// Start is the inclusive lower bound of the window.
	Start time.Time

	// End is the exclusive upper bound of the window.
	End time.Time

	// Resume narrows the window to begin after the newest stored candle,
	// skipping ranges that previous runs already covered. The final
	// reconciliation still spans the full requested window.
	Resume bool
}

// Collect fills the requested window from the source and reports what the
// store now holds for it. The walk is newest to oldest: each page is written
// before the next is fetched, so an aborted run keeps everything collected so
// far. Deadline expiry is not an error; the result is marked partial instead.
//
// When the source stays unavailable past the retry ceiling, Collect returns
// the partial result alongside source.ErrSourceUnavailable.
func (c *Collector) Collect(ctx context.Context, req CollectRequest) (models.CollectionResult, error) {
	runID := uuid.New().String()
	logger := c.logger.With("run_id", runID)

	start := timegrid.Align(c.series.Timeframe, req.Start)
	end := timegrid.Align(c.series.Timeframe, req.End)

	result := models.CollectionResult{}
	if !end.After(start) {
		return result, nil
	}

	fetchStart := start
	if req.Resume {
		oldest, newest, ok, err := c.store.Bounds(ctx)
		if err != nil {
			return result, err
		}
		// Resume only when the stored range covers the head of the
		// window; a store that begins mid-window still needs the older
		// part backfilled.
		if ok && !oldest.After(start) {
			resumed := timegrid.Next(c.series.Timeframe, newest)
			if resumed.After(fetchStart) {
				fetchStart = resumed
				logger.Info("resuming from stored data", "newest_stored", newest)
			}
		}
	}

	logger.Info("collection started",
		"window_start", start,
		"window_end", end,
		"fetch_start", fetchStart)

	partial, mismatches, fetchErr := c.fetchWindow(ctx, logger, fetchStart, end)

	result.TimestampOrderMismatches = mismatches
	result.Partial = partial

	expected := timegrid.ExpectedCount(c.series.Timeframe, start, end)
	result.ExpectedCandles = expected

	total, err := c.store.Count(ctx, start, end)
	if err != nil {
		return result, err
	}
	result.TotalCount = total

	foundGaps, err := c.analyzer.Analyze(ctx, c.series.Timeframe, start, end)
	if err != nil {
		return result, err
	}
	result.Gaps = foundGaps

	logger.Info("collection finished",
		"total", result.TotalCount,
		"expected", result.ExpectedCandles,
		"order_mismatches", result.TimestampOrderMismatches,
		"gaps", len(result.Gaps),
		"partial", result.Partial)

	return result, fetchErr
}

// fetchWindow pages backward from end toward start, persisting each page. It
// returns whether the walk was cut short by the context, the number of
// ordering anomalies observed, and a fatal source error if one occurred.
func (c *Collector) fetchWindow(ctx context.Context, logger *slog.Logger, start, end time.Time) (partial bool, mismatches int, err error) {
	if !end.After(start) {
		return false, 0, nil
	}

	anchor := end
	var prevOldest time.Time
	havePrev := false

	for {
		select {
		case <-ctx.Done():
			logger.Warn("deadline reached, stopping with partial window", "anchor", anchor)
			return true, mismatches, nil
		default:
		}

		page, fetchErr := c.client.FetchPage(ctx, source.PageRequest{
			Market:    c.series.Market(),
			Timeframe: c.series.Timeframe,
			Before:    anchor,
			Count:     c.pageSize,
		})
		if fetchErr != nil {
			if errors.Is(fetchErr, source.ErrSourceUnavailable) {
				logger.Error("source unavailable, aborting run", "error", fetchErr)
				return true, mismatches, fetchErr
			}
			if errors.Is(fetchErr, context.DeadlineExceeded) || errors.Is(fetchErr, context.Canceled) {
				logger.Warn("deadline reached mid-fetch, stopping with partial window")
				return true, mismatches, nil
			}
			return true, mismatches, fmt.Errorf("page fetch failed: %w", fetchErr)
		}

		if len(page) == 0 {
			logger.Debug("source history exhausted", "anchor", anchor)
			return false, mismatches, nil
		}

		pageMismatches := countOrderMismatches(page, prevOldest, havePrev)
		if pageMismatches > 0 {
			logger.Warn("timestamp order anomalies in page",
				"count", pageMismatches, "anchor", anchor)
			mismatches += pageMismatches
		}

		inWindow := filterWindow(page, start, end)
		if err := c.store.Upsert(ctx, inWindow); err != nil {
			return true, mismatches, err
		}

		oldest := page[len(page)-1].Timestamp.UTC()
		if !oldest.Before(anchor) {
			// The anchor must move strictly backward each page or the
			// walk would repeat the same request forever.
			logger.Error("pagination anchor stalled", "anchor", anchor, "oldest", oldest)
			return true, mismatches, fmt.Errorf("%w: pagination anchor stalled at %s",
				source.ErrSourceUnavailable, anchor.Format(time.RFC3339))
		}

		prevOldest, havePrev = oldest, true
		anchor = oldest

		if !oldest.After(start) {
			return false, mismatches, nil
		}
		if len(page) < c.pageSize {
			logger.Debug("short page, treating history as exhausted",
				"got", len(page), "requested", c.pageSize)
			return false, mismatches, nil
		}
	}
}

// countOrderMismatches counts violations of the expected strictly-decreasing
// timestamp order within page, plus the boundary between page and the oldest
// candle of the previous page. Anomalies are recorded, never fatal.
func countOrderMismatches(page []models.Candle, prevOldest time.Time, havePrev bool) int {
	mismatches := 0
	for i, c := range page {
		ts := c.Timestamp.UTC()
		if i == 0 {
			if havePrev && !ts.Before(prevOldest) {
				mismatches++
			}
			continue
		}
		if !ts.Before(page[i-1].Timestamp.UTC()) {
			mismatches++
		}
	}
	return mismatches
}

// filterWindow keeps only candles with start <= timestamp < end.
func filterWindow(page []models.Candle, start, end time.Time) []models.Candle {
	kept := make([]models.Candle, 0, len(page))
	for _, c := range page {
		ts := c.Timestamp.UTC()
		if !ts.Before(start) && ts.Before(end) {
			kept = append(kept, c)
		}
	}
	return kept
}

// Status summarizes what the store holds for the series.
type Status struct {
	Series      models.Series
	TotalCount  int
	Oldest      time.Time
	Newest      time.Time
	HasData     bool
	CoveredGaps []models.Gap
}

// CheckStatus reports the stored bounds and row count, plus any gaps between
// them.
func (c *Collector) CheckStatus(ctx context.Context) (Status, error) {
	status := Status{Series: c.series}

	oldest, newest, ok, err := c.store.Bounds(ctx)
	if err != nil {
		return status, err
	}
	if !ok {
		return status, nil
	}
	status.HasData = true
	status.Oldest = oldest
	status.Newest = newest

	end := timegrid.Next(c.series.Timeframe, newest)
	count, err := c.store.Count(ctx, oldest, end)
	if err != nil {
		return status, err
	}
	status.TotalCount = count

	status.CoveredGaps, err = c.analyzer.Analyze(ctx, c.series.Timeframe, oldest, end)
	if err != nil {
		return status, err
	}
	return status, nil
}

// Query returns stored candles in [start, end) ascending. With filterGaps
// set, a row is dropped when it does not follow the stored row before it by
// exactly one grid step, so the first row after each gap is removed but
// normal spacing afterward is kept.
func (c *Collector) Query(ctx context.Context, start, end time.Time, filterGaps bool) ([]models.Candle, error) {
	candles, err := c.store.Query(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if !filterGaps || len(candles) < 2 {
		return candles, nil
	}

	kept := make([]models.Candle, 0, len(candles))
	kept = append(kept, candles[0])
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Timestamp
		if candles[i].Timestamp.UTC().Equal(timegrid.Next(c.series.Timeframe, prev)) {
			kept = append(kept, candles[i])
		}
	}
	return kept, nil
}

// AnalyzeGaps reports the gaps in [start, end) without collecting anything.
func (c *Collector) AnalyzeGaps(ctx context.Context, start, end time.Time) ([]models.Gap, error) {
	start = timegrid.Align(c.series.Timeframe, start)
	end = timegrid.Align(c.series.Timeframe, end)
	return c.analyzer.Analyze(ctx, c.series.Timeframe, start, end)
}
