package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ubcc/internal/models"
	"ubcc/internal/timegrid"
)

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	series, err := models.NewSeries("BTC", "KRW", timegrid.Day)
	require.NoError(t, err)

	candles := []models.Candle{
		{
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      "100", High: "110", Low: "90", Close: "105", Volume: "7.5",
		},
		{
			Timestamp: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			Open:      "105", High: "120", Low: "100", Close: "115", Volume: "3",
		},
	}

	path, err := NewCSVWriter(dir, nil).Write(series, candles)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Contains(t, filepath.Base(path), "KRW-BTC_day_")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "open", "high", "low", "close", "volume"}, rows[0])
	assert.Equal(t, "2024-03-01T00:00:00Z", rows[1][0])
	assert.Equal(t, "105", rows[1][4])
	assert.Equal(t, "3", rows[2][5])
}

func TestWriteCSVEmptySeries(t *testing.T) {
	dir := t.TempDir()
	series, err := models.NewSeries("ETH", "KRW", timegrid.Minute60)
	require.NoError(t, err)

	path, err := NewCSVWriter(dir, nil).Write(series, nil)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestWriteCSVCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "csv")
	series, err := models.NewSeries("BTC", "KRW", timegrid.Day)
	require.NoError(t, err)

	_, err = NewCSVWriter(dir, nil).Write(series, nil)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
