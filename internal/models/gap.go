package models

import (
	"fmt"
	"time"
)

// Gap represents a maximal contiguous run of expected-but-absent timestamps
// in a stored series, at timeframe granularity. Start and End are both
// inclusive grid timestamps. Gaps are computed reports, not persisted state:
// a gap is a normal finding for a sparse or freshly collected range, never an
// error condition.
type Gap struct {
	// Start is the first missing grid timestamp.
	Start time.Time `json:"start"`

	// End is the last missing grid timestamp.
	End time.Time `json:"end"`

	// MissingCandles is the number of grid timestamps covered by the gap.
	MissingCandles int `json:"missing_candles"`
}

// Duration returns the time span covered by the gap, one grid step per
// missing candle.
func (g Gap) Duration(step time.Duration) time.Duration {
	return time.Duration(g.MissingCandles) * step
}

// String implements fmt.Stringer for log and report output.
func (g Gap) String() string {
	return fmt.Sprintf("Gap{%s ~ %s, missing: %d}",
		g.Start.Format("2006-01-02 15:04"), g.End.Format("2006-01-02 15:04"), g.MissingCandles)
}

// CollectionResult summarizes one collection run over a bounded window. It is
// produced per call and never persisted.
type CollectionResult struct {
	// TotalCount is the number of candles present in the window after the
	// run, whether newly fetched or already stored.
	TotalCount int `json:"total_count"`

	// ExpectedCandles is the size of the time grid expectation for the
	// window.
	ExpectedCandles int `json:"expected_candles"`

	// TimestampOrderMismatches counts out-of-order arrivals observed during
	// the fetch loop. Recorded, never fatal.
	TimestampOrderMismatches int `json:"timestamp_order_mismatches"`

	// Gaps lists the missing runs in the window, ascending by start.
	Gaps []Gap `json:"gaps"`

	// Partial is set when a caller deadline stopped the fetch loop before
	// the window was covered.
	Partial bool `json:"partial,omitempty"`
}

// MissingCandles returns the total number of missing grid timestamps across
// all gaps.
func (r *CollectionResult) MissingCandles() int {
	total := 0
	for _, g := range r.Gaps {
		total += g.MissingCandles
	}
	return total
}

// Complete reports whether the window is fully covered. A partial run is
// never complete even when every fetched timestamp landed.
func (r *CollectionResult) Complete() bool {
	return !r.Partial && len(r.Gaps) == 0 && r.TotalCount >= r.ExpectedCandles
}
