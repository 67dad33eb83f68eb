package market

import (
	"fmt"
	"math"
)

// RSI computes the Wilder-smoothed relative strength index over the
// closes and returns the last value in the sequence.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi period must be positive")
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("rsi needs %d closes, have %d", period+1, len(closes))
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// ATR computes the Wilder-smoothed average true range and returns the
// last value in the sequence, in quote-currency units.
func ATR(high, low, close []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("atr period must be positive")
	}
	n := len(close)
	if len(high) != n || len(low) != n {
		return 0, fmt.Errorf("atr input lengths differ: %d/%d/%d", len(high), len(low), n)
	}
	if n < period+1 {
		return 0, fmt.Errorf("atr needs %d candles, have %d", period+1, n)
	}

	trueRanges := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		tr := math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))
		trueRanges = append(trueRanges, tr)
	}

	var atr float64
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr, nil
}
