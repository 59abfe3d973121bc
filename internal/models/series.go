package models

import (
	"fmt"
	"strings"

	"ubcc/internal/timegrid"
)

// Series identifies one logical candle stream: a (coin, fiat, timeframe)
// triple. Each series owns exactly one backing store.
type Series struct {
	Coin      string
	Fiat      string
	Timeframe timegrid.Timeframe
}

// NewSeries builds a Series from a coin symbol, fiat symbol, and timeframe.
// Symbols are upper-cased; an unsupported timeframe is rejected.
func NewSeries(coin, fiat string, tf timegrid.Timeframe) (Series, error) {
	if coin == "" {
		return Series{}, fmt.Errorf("coin symbol cannot be empty")
	}
	if fiat == "" {
		return Series{}, fmt.Errorf("fiat symbol cannot be empty")
	}
	if !tf.Valid() {
		return Series{}, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return Series{
		Coin:      strings.ToUpper(coin),
		Fiat:      strings.ToUpper(fiat),
		Timeframe: tf,
	}, nil
}

// ParseMarket builds a Series from either a bare coin symbol ("BTC", fiat
// defaults to KRW) or a full market code ("USDT-BTC").
func ParseMarket(market string, tf timegrid.Timeframe) (Series, error) {
	if fiat, coin, ok := strings.Cut(market, "-"); ok {
		return NewSeries(coin, fiat, tf)
	}
	return NewSeries(market, "KRW", tf)
}

// Market returns the Upbit market code, e.g. "KRW-BTC".
func (s Series) Market() string {
	return s.Fiat + "-" + s.Coin
}

// String implements fmt.Stringer.
func (s Series) String() string {
	return fmt.Sprintf("%s@%s", s.Market(), s.Timeframe)
}
