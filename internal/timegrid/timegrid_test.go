package timegrid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframeValid(t *testing.T) {
	for _, tf := range All() {
		assert.True(t, tf.Valid(), "timeframe %s should be valid", tf)
	}
	assert.False(t, Timeframe("minute2").Valid())
	assert.False(t, Timeframe("").Valid())
}

func TestMinuteUnit(t *testing.T) {
	unit, ok := Minute15.MinuteUnit()
	require.True(t, ok)
	assert.Equal(t, 15, unit)

	_, ok = Day.MinuteUnit()
	assert.False(t, ok)
	_, ok = Month.MinuteUnit()
	assert.False(t, ok)
}

func TestAlign(t *testing.T) {
	tests := []struct {
		name string
		tf   Timeframe
		in   time.Time
		want time.Time
	}{
		{
			name: "day snaps up to midnight",
			tf:   Day,
			in:   time.Date(2024, 3, 15, 7, 22, 11, 0, time.UTC),
			want: time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "day boundary unchanged",
			tf:   Day,
			in:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "minute5 snaps up",
			tf:   Minute5,
			in:   time.Date(2024, 3, 15, 7, 22, 11, 0, time.UTC),
			want: time.Date(2024, 3, 15, 7, 25, 0, 0, time.UTC),
		},
		{
			name: "week snaps up to monday",
			tf:   Week,
			// 2024-03-15 is a Friday.
			in:   time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "week boundary unchanged",
			tf:   Week,
			// 2024-03-18 is a Monday.
			in:   time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "month snaps up to first",
			tf:   Month,
			in:   time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "month boundary unchanged",
			tf:   Month,
			in:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Align(tt.tf, tt.in)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestAlignDown(t *testing.T) {
	in := time.Date(2024, 3, 15, 7, 22, 11, 0, time.UTC)
	assert.True(t, AlignDown(Day, in).Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, AlignDown(Week, in).Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)))
	assert.True(t, AlignDown(Month, in).Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNextPrevMonth(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, Next(Month, jan).Equal(feb))
	assert.True(t, Prev(Month, feb).Equal(jan))
}

func TestExpectedTimestamps(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	got := ExpectedTimestamps(Day, start, end)
	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(start))
	assert.True(t, got[2].Equal(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)))

	// End is exclusive.
	for _, ts := range got {
		assert.True(t, ts.Before(end))
	}
}

func TestExpectedTimestampsUnalignedStart(t *testing.T) {
	start := time.Date(2024, 3, 1, 5, 30, 0, 0, time.UTC)
	end := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	got := ExpectedTimestamps(Day, start, end)
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestExpectedTimestampsEmptyWindow(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, ExpectedTimestamps(Day, ts, ts))
	assert.Empty(t, ExpectedTimestamps(Day, ts, ts.Add(-time.Hour)))
}

func TestExpectedCountMatchesEnumeration(t *testing.T) {
	windows := []struct {
		start, end time.Time
	}{
		{
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		},
		{
			time.Date(2024, 1, 1, 13, 37, 0, 0, time.UTC),
			time.Date(2024, 2, 29, 5, 0, 0, 0, time.UTC),
		},
		{
			time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
			time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
		},
	}

	for _, tf := range All() {
		for _, w := range windows {
			want := len(ExpectedTimestamps(tf, w.start, w.end))
			got := ExpectedCount(tf, w.start, w.end)
			assert.Equal(t, want, got, "timeframe %s window %s..%s", tf, w.start, w.end)
		}
	}
}

func TestExpectedCountMonthAcrossYears(t *testing.T) {
	start := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, ExpectedCount(Month, start, end))
}
