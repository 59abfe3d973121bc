package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/time/rate"

	"ubcc/internal/timegrid"
)

func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestClient(t *testing.T, handler http.Handler) *UpbitClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewUpbitClient(nil,
		WithBaseURL(srv.URL),
		WithRetryPolicy(fastRetryPolicy()),
		WithRateLimit(rate.Inf, 1))
}

func dayRequest(count int) PageRequest {
	return PageRequest{
		Market:    "KRW-BTC",
		Timeframe: timegrid.Day,
		Before:    time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Count:     count,
	}
}

const sampleBody = `[
	{
		"market": "KRW-BTC",
		"candle_date_time_utc": "2024-03-09T00:00:00",
		"opening_price": 95000000.5,
		"high_price": 96000000,
		"low_price": 94000000,
		"trade_price": 95500000,
		"candle_acc_trade_volume": 1234.5678
	},
	{
		"market": "KRW-BTC",
		"candle_date_time_utc": "2024-03-08T00:00:00",
		"opening_price": 94000000,
		"high_price": 95200000,
		"low_price": 93800000,
		"trade_price": 95000000.5,
		"candle_acc_trade_volume": 987.654
	}
]`

func TestFetchPageParsesResponse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/candles/days", r.URL.Path)
		assert.Equal(t, "KRW-BTC", r.URL.Query().Get("market"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		assert.Equal(t, "2024-03-10T00:00:00", r.URL.Query().Get("to"))
		fmt.Fprint(w, sampleBody)
	}))

	candles, err := client.FetchPage(context.Background(), dayRequest(2))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// Newest first, exactly as delivered.
	assert.True(t, candles[0].Timestamp.Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "95000000.5", candles[0].Open)
	assert.Equal(t, "95500000", candles[0].Close)
	assert.Equal(t, "1234.5678", candles[0].Volume)
	assert.Equal(t, "95000000.5", candles[1].Close)
}

func TestFetchPageMinuteEndpoint(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/candles/minutes/15", r.URL.Path)
		fmt.Fprint(w, "[]")
	}))

	req := dayRequest(10)
	req.Timeframe = timegrid.Minute15
	candles, err := client.FetchPage(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestFetchPageClampsCount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "200", r.URL.Query().Get("count"))
		fmt.Fprint(w, "[]")
	}))

	_, err := client.FetchPage(context.Background(), dayRequest(5000))
	require.NoError(t, err)
}

func TestFetchPageRetriesRateLimitResponse(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, sampleBody)
	}))

	candles, err := client.FetchPage(context.Background(), dayRequest(2))
	require.NoError(t, err)
	assert.Len(t, candles, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPageRetryCeilingYieldsUnavailable(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.FetchPage(context.Background(), dayRequest(2))
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPageClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.FetchPage(context.Background(), dayRequest(2))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPageRejectsBadRequest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be reached")
	}))

	req := dayRequest(2)
	req.Market = ""
	_, err := client.FetchPage(context.Background(), req)
	assert.Error(t, err)

	req = dayRequest(0)
	_, err = client.FetchPage(context.Background(), req)
	assert.Error(t, err)
}

func TestRetryPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultRetryPolicy().Validate())

	p := DefaultRetryPolicy()
	p.MaxAttempts = 0
	assert.Error(t, p.Validate())

	p = DefaultRetryPolicy()
	p.MaxDelay = p.InitialDelay - 1
	assert.Error(t, p.Validate())

	p = DefaultRetryPolicy()
	p.Multiplier = 0.5
	assert.Error(t, p.Validate())
}
