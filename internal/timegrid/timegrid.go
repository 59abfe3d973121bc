// Package timegrid maps timeframe identifiers to durations and to the
// canonical sequence of expected candle timestamps between two instants.
// Everything here is pure and deterministic: no I/O, no clock reads.
//
// Grid boundaries are fixed multiples of the timeframe duration in UTC.
// Daily candles land on 00:00 UTC, which is the 09:00 KST day boundary Upbit
// uses; weekly candles land on Monday 00:00 UTC; monthly candles on the
// first of the month 00:00 UTC.
package timegrid

import (
	"fmt"
	"time"
)

// Timeframe identifies the fixed interval between consecutive candles,
// using the Upbit naming scheme.
type Timeframe string

const (
	Minute1   Timeframe = "minute1"
	Minute3   Timeframe = "minute3"
	Minute5   Timeframe = "minute5"
	Minute10  Timeframe = "minute10"
	Minute15  Timeframe = "minute15"
	Minute30  Timeframe = "minute30"
	Minute60  Timeframe = "minute60"
	Minute240 Timeframe = "minute240"
	Day       Timeframe = "day"
	Week      Timeframe = "week"
	Month     Timeframe = "month"
)

// durations holds the nominal step per timeframe. Month is calendar-stepped
// (see Next) and the 30-day figure is used only for reporting.
var durations = map[Timeframe]time.Duration{
	Minute1:   time.Minute,
	Minute3:   3 * time.Minute,
	Minute5:   5 * time.Minute,
	Minute10:  10 * time.Minute,
	Minute15:  15 * time.Minute,
	Minute30:  30 * time.Minute,
	Minute60:  60 * time.Minute,
	Minute240: 240 * time.Minute,
	Day:       24 * time.Hour,
	Week:      7 * 24 * time.Hour,
	Month:     30 * 24 * time.Hour,
}

// All lists every supported timeframe, shortest first.
func All() []Timeframe {
	return []Timeframe{
		Minute1, Minute3, Minute5, Minute10, Minute15, Minute30,
		Minute60, Minute240, Day, Week, Month,
	}
}

// Valid reports whether tf is a supported timeframe identifier.
func (tf Timeframe) Valid() bool {
	_, ok := durations[tf]
	return ok
}

// Duration returns the nominal step between consecutive candles of tf.
// It panics on an unknown timeframe; validate inputs with Valid first.
func (tf Timeframe) Duration() time.Duration {
	d, ok := durations[tf]
	if !ok {
		panic(fmt.Sprintf("timegrid: unknown timeframe %q", tf))
	}
	return d
}

// MinuteUnit returns the minute count for intraday timeframes and false for
// day, week, and month.
func (tf Timeframe) MinuteUnit() (int, bool) {
	switch tf {
	case Minute1:
		return 1, true
	case Minute3:
		return 3, true
	case Minute5:
		return 5, true
	case Minute10:
		return 10, true
	case Minute15:
		return 15, true
	case Minute30:
		return 30, true
	case Minute60:
		return 60, true
	case Minute240:
		return 240, true
	}
	return 0, false
}

// Align snaps t up to the nearest grid boundary at or after it.
//
// Weekly boundaries fall on Monday 00:00 UTC: Truncate rounds relative to the
// zero time, which is a Monday, so truncating by seven days lands there
// directly.
func Align(tf Timeframe, t time.Time) time.Time {
	t = t.UTC()
	switch tf {
	case Month:
		first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		if first.Equal(t) {
			return first
		}
		return first.AddDate(0, 1, 0)
	default:
		d := tf.Duration()
		aligned := t.Truncate(d)
		if aligned.Before(t) {
			aligned = aligned.Add(d)
		}
		return aligned
	}
}

// AlignDown snaps t down to the nearest grid boundary at or before it.
func AlignDown(tf Timeframe, t time.Time) time.Time {
	t = t.UTC()
	switch tf {
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(tf.Duration())
	}
}

// Next returns the grid boundary immediately after the boundary t.
// Month steps by calendar month, everything else by the fixed duration.
func Next(tf Timeframe, t time.Time) time.Time {
	if tf == Month {
		return t.AddDate(0, 1, 0)
	}
	return t.Add(tf.Duration())
}

// Prev returns the grid boundary immediately before the boundary t.
func Prev(tf Timeframe, t time.Time) time.Time {
	if tf == Month {
		return t.AddDate(0, -1, 0)
	}
	return t.Add(-tf.Duration())
}

// ExpectedTimestamps enumerates the grid boundaries in [start, end), with
// start snapped up to its grid boundary first. end <= start yields an empty
// slice, not an error.
func ExpectedTimestamps(tf Timeframe, start, end time.Time) []time.Time {
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return nil
	}

	var out []time.Time
	for t := Align(tf, start); t.Before(end); t = Next(tf, t) {
		out = append(out, t)
	}
	return out
}

// ExpectedCount returns the number of grid boundaries in [start, end)
// without materializing them.
func ExpectedCount(tf Timeframe, start, end time.Time) int {
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return 0
	}

	aligned := Align(tf, start)
	if !aligned.Before(end) {
		return 0
	}

	if tf == Month {
		n := 0
		for t := aligned; t.Before(end); t = Next(tf, t) {
			n++
		}
		return n
	}

	d := tf.Duration()
	return int((end.Sub(aligned) + d - 1) / d)
}
