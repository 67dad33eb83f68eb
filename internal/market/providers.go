package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
)

// Candles holds aligned OHLC series, oldest first, closed candles only.
type Candles struct {
	High  []float64
	Low   []float64
	Close []float64
}

func (c Candles) Len() int { return len(c.Close) }

type provider interface {
	Name() string
	Fetch(ctx context.Context, client *http.Client, interval string, limit int) (Candles, error)
}

func fetchJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnavailableForLegalReasons {
		return nil, errGeoBlocked
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// coinbaseProvider reads the Coinbase Exchange candle endpoint.
type coinbaseProvider struct {
	product string
}

var coinbaseGranularity = map[string]int{
	"1m": 60, "5m": 300, "15m": 900, "1h": 3600, "6h": 21600, "1d": 86400,
}

func (p coinbaseProvider) Name() string { return "coinbase" }

func (p coinbaseProvider) Fetch(ctx context.Context, client *http.Client, interval string, limit int) (Candles, error) {
	granularity, ok := coinbaseGranularity[interval]
	if !ok {
		return Candles{}, fmt.Errorf("coinbase: unsupported interval %q", interval)
	}

	url := fmt.Sprintf("https://api.exchange.coinbase.com/products/%s/candles?granularity=%d", p.product, granularity)
	body, err := fetchJSON(ctx, client, url)
	if err != nil {
		return Candles{}, err
	}

	// Rows are [time, low, high, open, close, volume], newest first.
	var rows [][]float64
	if err := json.Unmarshal(body, &rows); err != nil {
		return Candles{}, fmt.Errorf("coinbase: parse candles: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })

	out := Candles{}
	for _, row := range rows {
		if len(row) < 6 {
			return Candles{}, fmt.Errorf("coinbase: short candle row")
		}
		out.Low = append(out.Low, row[1])
		out.High = append(out.High, row[2])
		out.Close = append(out.Close, row[4])
	}

	// The newest bucket is still forming.
	out = dropLast(out)
	return trimCandles(out, limit), nil
}

// krakenProvider reads the Kraken public OHLC endpoint.
type krakenProvider struct {
	pair string
}

var krakenInterval = map[string]int{
	"1m": 1, "5m": 5, "15m": 15, "1h": 60, "4h": 240, "1d": 1440,
}

func (p krakenProvider) Name() string { return "kraken" }

func (p krakenProvider) Fetch(ctx context.Context, client *http.Client, interval string, limit int) (Candles, error) {
	minutes, ok := krakenInterval[interval]
	if !ok {
		return Candles{}, fmt.Errorf("kraken: unsupported interval %q", interval)
	}

	url := fmt.Sprintf("https://api.kraken.com/0/public/OHLC?pair=%s&interval=%d", p.pair, minutes)
	body, err := fetchJSON(ctx, client, url)
	if err != nil {
		return Candles{}, err
	}

	var parsed struct {
		Error  []string                   `json:"error"`
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Candles{}, fmt.Errorf("kraken: parse response: %w", err)
	}
	if len(parsed.Error) > 0 {
		return Candles{}, fmt.Errorf("kraken: %s", parsed.Error[0])
	}

	out := Candles{}
	for key, raw := range parsed.Result {
		if key == "last" {
			continue
		}
		// Rows are [time, open, high, low, close, vwap, volume, count].
		var rows [][]interface{}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return Candles{}, fmt.Errorf("kraken: parse ohlc: %w", err)
		}
		for _, row := range rows {
			if len(row) < 5 {
				return Candles{}, fmt.Errorf("kraken: short ohlc row")
			}
			high, err := toFloat(row[2])
			if err != nil {
				return Candles{}, fmt.Errorf("kraken: high: %w", err)
			}
			low, err := toFloat(row[3])
			if err != nil {
				return Candles{}, fmt.Errorf("kraken: low: %w", err)
			}
			closePx, err := toFloat(row[4])
			if err != nil {
				return Candles{}, fmt.Errorf("kraken: close: %w", err)
			}
			out.High = append(out.High, high)
			out.Low = append(out.Low, low)
			out.Close = append(out.Close, closePx)
		}
		break
	}

	// Kraken's final row is the still-forming candle.
	out = dropLast(out)
	return trimCandles(out, limit), nil
}

// binanceProvider reads the Binance klines endpoint.
type binanceProvider struct {
	symbol string
}

func (p binanceProvider) Name() string { return "binance" }

func (p binanceProvider) Fetch(ctx context.Context, client *http.Client, interval string, limit int) (Candles, error) {
	url := fmt.Sprintf("https://api.binance.com/api/v3/klines?symbol=%s&interval=%s&limit=%d", p.symbol, interval, limit+1)
	body, err := fetchJSON(ctx, client, url)
	if err != nil {
		return Candles{}, err
	}

	// Rows are [openTime, open, high, low, close, volume, ...], oldest first.
	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return Candles{}, fmt.Errorf("binance: parse klines: %w", err)
	}

	out := Candles{}
	for _, row := range rows {
		if len(row) < 5 {
			return Candles{}, fmt.Errorf("binance: short kline row")
		}
		high, err := toFloat(row[2])
		if err != nil {
			return Candles{}, fmt.Errorf("binance: high: %w", err)
		}
		low, err := toFloat(row[3])
		if err != nil {
			return Candles{}, fmt.Errorf("binance: low: %w", err)
		}
		closePx, err := toFloat(row[4])
		if err != nil {
			return Candles{}, fmt.Errorf("binance: close: %w", err)
		}
		out.High = append(out.High, high)
		out.Low = append(out.Low, low)
		out.Close = append(out.Close, closePx)
	}

	// The last kline is the still-forming candle.
	out = dropLast(out)
	return trimCandles(out, limit), nil
}

func toFloat(v interface{}) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case string:
		return strconv.ParseFloat(value, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func dropLast(c Candles) Candles {
	if c.Len() == 0 {
		return c
	}
	n := c.Len() - 1
	return Candles{High: c.High[:n], Low: c.Low[:n], Close: c.Close[:n]}
}

func trimCandles(c Candles, limit int) Candles {
	if limit <= 0 || c.Len() <= limit {
		return c
	}
	n := c.Len()
	return Candles{High: c.High[n-limit:], Low: c.Low[n-limit:], Close: c.Close[n-limit:]}
}
