package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"ubcc/internal/models"
	"ubcc/internal/timegrid"
)

const (
	upbitBaseURL = "https://api.upbit.com/v1"

	// MaxPageSize is the largest page the candle endpoints accept.
	MaxPageSize = 200

	// upbitRateLimit is the sustained request rate the public candle
	// endpoints tolerate without returning 429s.
	upbitRateLimit = rate.Limit(8)

	upbitTimeLayout = "2006-01-02T15:04:05"
)

// UpbitClient fetches candle pages from the Upbit public REST API. Requests
// are throttled through a token-bucket limiter so bursts wait instead of
// failing, and transient failures are retried with exponential backoff.
type UpbitClient struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	retry       RetryPolicy
	logger      *slog.Logger
}

// compile-time interface check
var _ Client = (*UpbitClient)(nil)

// UpbitOption configures an UpbitClient.
type UpbitOption func(*UpbitClient)

// WithBaseURL overrides the API endpoint, primarily for tests.
func WithBaseURL(u string) UpbitOption {
	return func(c *UpbitClient) { c.baseURL = u }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) UpbitOption {
	return func(c *UpbitClient) { c.httpClient = hc }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) UpbitOption {
	return func(c *UpbitClient) { c.retry = p }
}

// WithRateLimit overrides the request rate ceiling.
func WithRateLimit(limit rate.Limit, burst int) UpbitOption {
	return func(c *UpbitClient) { c.rateLimiter = rate.NewLimiter(limit, burst) }
}

// NewUpbitClient creates a client with production defaults.
func NewUpbitClient(logger *slog.Logger, opts ...UpbitOption) *UpbitClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &UpbitClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:     upbitBaseURL,
		rateLimiter: rate.NewLimiter(upbitRateLimit, 1),
		retry:       DefaultRetryPolicy(),
		logger:      logger.With("component", "upbit_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// upbitCandle is the wire shape of one row from the candle endpoints.
type upbitCandle struct {
	Market        string  `json:"market"`
	DateTimeUTC   string  `json:"candle_date_time_utc"`
	OpeningPrice  float64 `json:"opening_price"`
	HighPrice     float64 `json:"high_price"`
	LowPrice      float64 `json:"low_price"`
	TradePrice    float64 `json:"trade_price"`
	AccTradeVol   float64 `json:"candle_acc_trade_volume"`
	AccTradePrice float64 `json:"candle_acc_trade_price"`
}

// FetchPage returns up to req.Count candles strictly older than req.Before,
// newest first, exactly as the API delivers them. Ordering anomalies in the
// response are preserved for the caller to account for.
func (c *UpbitClient) FetchPage(ctx context.Context, req PageRequest) ([]models.Candle, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid page request: %w", err)
	}
	if req.Count > MaxPageSize {
		req.Count = MaxPageSize
	}

	endpoint, err := c.candleEndpoint(req.Timeframe)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("market", req.Market)
	params.Set("count", strconv.Itoa(req.Count))
	params.Set("to", req.Before.UTC().Format(upbitTimeLayout))

	requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, params.Encode())

	body, err := c.requestWithRetry(ctx, requestURL)
	if err != nil {
		return nil, err
	}

	var raw []upbitCandle
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode candle response: %w", err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for i, rc := range raw {
		candle, err := convertUpbitCandle(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert candle %d: %w", i, err)
		}
		candles = append(candles, candle)
	}

	c.logger.Debug("fetched candle page",
		"market", req.Market,
		"timeframe", string(req.Timeframe),
		"before", req.Before,
		"count", len(candles))

	return candles, nil
}

// candleEndpoint maps a timeframe to its REST path.
func (c *UpbitClient) candleEndpoint(tf timegrid.Timeframe) (string, error) {
	switch tf {
	case timegrid.Day:
		return "/candles/days", nil
	case timegrid.Week:
		return "/candles/weeks", nil
	case timegrid.Month:
		return "/candles/months", nil
	}
	if unit, ok := tf.MinuteUnit(); ok {
		return fmt.Sprintf("/candles/minutes/%d", unit), nil
	}
	return "", fmt.Errorf("unsupported timeframe: %s", tf)
}

// requestWithRetry performs a GET with rate limiting and bounded exponential
// backoff. Client errors other than 429 abort immediately; everything else is
// retried until the policy's ceiling, then reported as ErrSourceUnavailable.
func (c *UpbitClient) requestWithRetry(ctx context.Context, requestURL string) ([]byte, error) {
	var body []byte

	operation := func() error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait failed: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return &TransientError{Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return &TransientError{Err: fmt.Errorf("failed to read response body: %w", err)}
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn("retryable response from source", "status", resp.StatusCode)
			return &TransientError{
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("server returned status %d", resp.StatusCode),
			}
		default:
			return backoff.Permanent(fmt.Errorf("request failed with status %d", resp.StatusCode))
		}
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retry.InitialDelay
	expBackoff.MaxInterval = c.retry.MaxDelay
	expBackoff.Multiplier = c.retry.Multiplier
	expBackoff.MaxElapsedTime = 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(expBackoff, uint64(c.retry.MaxAttempts-1)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		var transient *TransientError
		if errors.As(err, &transient) {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		return nil, err
	}

	return body, nil
}

// convertUpbitCandle maps a wire row into the internal candle model. Prices
// arrive as JSON numbers; they are normalized through decimal to keep exact
// string representations in storage.
func convertUpbitCandle(rc upbitCandle) (models.Candle, error) {
	ts, err := time.ParseInLocation(upbitTimeLayout, rc.DateTimeUTC, time.UTC)
	if err != nil {
		return models.Candle{}, fmt.Errorf("invalid candle timestamp %q: %w", rc.DateTimeUTC, err)
	}

	candle := models.Candle{
		Timestamp: ts,
		Open:      decimal.NewFromFloat(rc.OpeningPrice).String(),
		High:      decimal.NewFromFloat(rc.HighPrice).String(),
		Low:       decimal.NewFromFloat(rc.LowPrice).String(),
		Close:     decimal.NewFromFloat(rc.TradePrice).String(),
		Volume:    decimal.NewFromFloat(rc.AccTradeVol).String(),
	}
	if err := candle.Validate(); err != nil {
		return models.Candle{}, err
	}
	return candle, nil
}
