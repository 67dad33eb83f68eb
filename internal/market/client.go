// Package market provides OHLC candles and derived technical indicators
// with failover across public exchange endpoints.
package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnavailable marks indicator data that could not be fetched from
	// any provider. The strategy must never mint on top of it.
	ErrUnavailable = errors.New("market data unavailable")

	errGeoBlocked = errors.New("provider geo-blocked")
)

const (
	defaultHTTPTimeout = 5 * time.Second
	// IndicatorPeriod is the shared RSI/ATR lookback.
	IndicatorPeriod = 14
	// candleFetchLimit leaves enough closed candles for Wilder smoothing
	// to converge past the seed window.
	candleFetchLimit = 100
)

// Client fetches candles for one market across a provider chain.
type Client struct {
	http      *http.Client
	providers []provider
	interval  string
	logger    *zap.Logger
}

// NewClient builds the default Coinbase -> Kraken -> Binance chain for
// the ETH/USD market at a fixed candle interval.
func NewClient(interval string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:     &http.Client{Timeout: defaultHTTPTimeout},
		interval: interval,
		logger:   logger,
		providers: []provider{
			coinbaseProvider{product: "ETH-USD"},
			krakenProvider{pair: "ETHUSD"},
			binanceProvider{symbol: "ETHUSDC"},
		},
	}
}

// Interval returns the configured candle granularity. Both the rebalance
// pipeline and the hysteresis-buffer refresh use this one value.
func (c *Client) Interval() string { return c.interval }

// Candles fetches closed OHLC candles, falling over to the next provider
// on any error. A geo-blocked provider (HTTP 451) is skipped silently.
func (c *Client) Candles(ctx context.Context, limit int) (Candles, error) {
	var lastErr error
	for _, p := range c.providers {
		candles, err := p.Fetch(ctx, c.http, c.interval, limit)
		if err != nil {
			if errors.Is(err, errGeoBlocked) {
				c.logger.Debug("provider geo-blocked", zap.String("provider", p.Name()))
			} else {
				c.logger.Warn("candle fetch failed",
					zap.String("provider", p.Name()),
					zap.Error(err),
				)
			}
			lastErr = err
			continue
		}
		if candles.Len() == 0 {
			lastErr = fmt.Errorf("%s returned no candles", p.Name())
			continue
		}
		return candles, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no providers configured")
	}
	return Candles{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// LatestRSI returns the current RSI over closed candles.
func (c *Client) LatestRSI(ctx context.Context) (float64, error) {
	candles, err := c.Candles(ctx, candleFetchLimit)
	if err != nil {
		return 0, err
	}
	value, err := RSI(candles.Close, IndicatorPeriod)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}

// LatestATR returns the current ATR over closed candles, in USD.
func (c *Client) LatestATR(ctx context.Context) (float64, error) {
	candles, err := c.Candles(ctx, candleFetchLimit)
	if err != nil {
		return 0, err
	}
	value, err := ATR(candles.High, candles.Low, candles.Close, IndicatorPeriod)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}
