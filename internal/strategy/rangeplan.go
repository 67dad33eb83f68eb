package strategy

import (
	"math"

	"rangekeeper/internal/univ3"
)

// RangePlan is the tick range derived for a rebalance.
type RangePlan struct {
	TickLower  int32
	TickUpper  int32
	Skew       float64
	WidthTicks int32
}

// PlanParams feed the deterministic range computation.
type PlanParams struct {
	CurrentTick  int32
	TickSpacing  int32
	ATR          float64
	Price        float64
	RSI          float64
	SafetyFactor float64
	MinWidth     int32
	MaxWidth     int32
}

// SkewFromRSI biases the range against the expected traversal: an
// overbought market gets more room below spot, an oversold one more
// room above.
func SkewFromRSI(rsi float64) float64 {
	switch {
	case rsi > 75:
		return 0.3
	case rsi < 25:
		return 0.7
	default:
		return 0.5
	}
}

// ComputeRangePlan derives the new range from volatility and momentum.
// The width floor prevents over-trading in calm markets; the ceiling
// prevents absurdly idle ranges in turbulent ones.
func ComputeRangePlan(p PlanParams) RangePlan {
	volPercent := 0.0
	if p.Price > 0 {
		volPercent = p.ATR / p.Price * 100
	}

	dynamicWidth := int32(math.Floor(volPercent * 100 * p.SafetyFactor))
	widthTicks := clampInt32(dynamicWidth, p.MinWidth, p.MaxWidth)

	skew := SkewFromRSI(p.RSI)

	totalSpan := float64(widthTicks) * 2
	upperDiff := int32(math.Floor(totalSpan * skew))
	lowerDiff := int32(math.Floor(totalSpan * (1 - skew)))

	tickLower := univ3.FloorToSpacing(p.CurrentTick-lowerDiff, p.TickSpacing)
	tickUpper := univ3.FloorToSpacing(p.CurrentTick+upperDiff, p.TickSpacing)

	// Clamp to the outermost spacing-aligned ticks so the bounds stay
	// mintable.
	maxUsable := univ3.FloorToSpacing(univ3.MaxTick, p.TickSpacing)
	minUsable := -maxUsable
	tickLower = clampInt32(tickLower, minUsable, maxUsable)
	tickUpper = clampInt32(tickUpper, minUsable, maxUsable)

	// A collapsed range widens instead of failing.
	if tickLower >= tickUpper {
		tickUpper = tickLower + p.TickSpacing
		if tickUpper > maxUsable {
			tickUpper = maxUsable
			tickLower = tickUpper - p.TickSpacing
		}
	}

	return RangePlan{
		TickLower:  tickLower,
		TickUpper:  tickUpper,
		Skew:       skew,
		WidthTicks: widthTicks,
	}
}

// BufferFactor derives the hysteresis buffer from volatility, clamped to
// [0.1, 0.8] of the position width.
func BufferFactor(base, volPercent, scaling float64) float64 {
	factor := base + volPercent*scaling
	if factor < 0.1 {
		return 0.1
	}
	if factor > 0.8 {
		return 0.8
	}
	return factor
}

func clampInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
