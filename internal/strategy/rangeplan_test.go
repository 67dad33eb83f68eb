package strategy

import (
	"math"
	"testing"

	"rangekeeper/internal/univ3"
)

func defaultParams() PlanParams {
	return PlanParams{
		CurrentTick:  -200311,
		TickSpacing:  10,
		ATR:          25,
		Price:        2500,
		RSI:          50,
		SafetyFactor: 4.0,
		MinWidth:     200,
		MaxWidth:     4000,
	}
}

func TestSkewFromRSI(t *testing.T) {
	cases := []struct {
		rsi  float64
		want float64
	}{
		{10, 0.7},
		{24.9, 0.7},
		{25, 0.5},
		{50, 0.5},
		{75, 0.5},
		{75.1, 0.3},
		{90, 0.3},
	}
	for _, tc := range cases {
		if got := SkewFromRSI(tc.rsi); got != tc.want {
			t.Fatalf("SkewFromRSI(%.1f) = %.1f, want %.1f", tc.rsi, got, tc.want)
		}
	}
}

func TestComputeRangePlanColdStartScenario(t *testing.T) {
	// ATR 25 on price 2500 is 1%% volatility; with safety factor 4 the
	// width lands at 400 ticks, split symmetrically at RSI 50.
	p := defaultParams()
	p.CurrentTick = 0
	plan := ComputeRangePlan(p)

	if plan.WidthTicks != 400 {
		t.Fatalf("width = %d, want 400", plan.WidthTicks)
	}
	if plan.Skew != 0.5 {
		t.Fatalf("skew = %.1f, want 0.5", plan.Skew)
	}
	if plan.TickLower != -400 || plan.TickUpper != 400 {
		t.Fatalf("range [%d, %d], want [-400, 400]", plan.TickLower, plan.TickUpper)
	}
}

func TestComputeRangePlanWidthClamps(t *testing.T) {
	p := defaultParams()

	p.ATR = 0.5 // nearly flat market
	plan := ComputeRangePlan(p)
	if plan.WidthTicks != p.MinWidth {
		t.Fatalf("calm width = %d, want floor %d", plan.WidthTicks, p.MinWidth)
	}

	p.ATR = 500 // violent market
	plan = ComputeRangePlan(p)
	if plan.WidthTicks != p.MaxWidth {
		t.Fatalf("violent width = %d, want ceiling %d", plan.WidthTicks, p.MaxWidth)
	}
}

func TestComputeRangePlanAlignmentAndOrdering(t *testing.T) {
	for _, rsi := range []float64{10, 50, 90} {
		for _, tick := range []int32{-200311, -7, 0, 13, 200311} {
			p := defaultParams()
			p.RSI = rsi
			p.CurrentTick = tick
			plan := ComputeRangePlan(p)

			if plan.TickLower >= plan.TickUpper {
				t.Fatalf("rsi %.0f tick %d: collapsed range [%d, %d]", rsi, tick, plan.TickLower, plan.TickUpper)
			}
			if plan.TickLower%p.TickSpacing != 0 || plan.TickUpper%p.TickSpacing != 0 {
				t.Fatalf("rsi %.0f tick %d: unaligned range [%d, %d]", rsi, tick, plan.TickLower, plan.TickUpper)
			}
			if plan.TickLower < univ3.MinTick || plan.TickUpper > univ3.MaxTick {
				t.Fatalf("rsi %.0f tick %d: range out of bounds [%d, %d]", rsi, tick, plan.TickLower, plan.TickUpper)
			}
		}
	}
}

func TestComputeRangePlanSkewShiftsRange(t *testing.T) {
	p := defaultParams()
	p.CurrentTick = 0

	p.RSI = 90 // overbought: more room below spot
	overbought := ComputeRangePlan(p)
	p.RSI = 10 // oversold: more room above spot
	oversold := ComputeRangePlan(p)

	downRoomOverbought := -overbought.TickLower
	upRoomOverbought := overbought.TickUpper
	if downRoomOverbought <= upRoomOverbought {
		t.Fatalf("overbought range [%d, %d] should favor the downside", overbought.TickLower, overbought.TickUpper)
	}

	downRoomOversold := -oversold.TickLower
	upRoomOversold := oversold.TickUpper
	if upRoomOversold <= downRoomOversold {
		t.Fatalf("oversold range [%d, %d] should favor the upside", oversold.TickLower, oversold.TickUpper)
	}
}

func TestComputeRangePlanEdgeOfTickSpace(t *testing.T) {
	p := defaultParams()
	p.CurrentTick = univ3.MaxTick - 5
	plan := ComputeRangePlan(p)
	if plan.TickUpper > univ3.MaxTick {
		t.Fatalf("upper %d beyond max tick", plan.TickUpper)
	}
	if plan.TickLower >= plan.TickUpper {
		t.Fatalf("collapsed range at max tick: [%d, %d]", plan.TickLower, plan.TickUpper)
	}
	if plan.TickLower%p.TickSpacing != 0 || plan.TickUpper%p.TickSpacing != 0 {
		t.Fatalf("edge range unaligned: [%d, %d]", plan.TickLower, plan.TickUpper)
	}

	p.CurrentTick = univ3.MinTick + 5
	plan = ComputeRangePlan(p)
	if plan.TickLower < univ3.MinTick {
		t.Fatalf("lower %d beyond min tick", plan.TickLower)
	}
	if plan.TickLower >= plan.TickUpper {
		t.Fatalf("collapsed range at min tick: [%d, %d]", plan.TickLower, plan.TickUpper)
	}
}

func TestBufferFactorClamps(t *testing.T) {
	// 0.2 + 0.2*0.05 carries float64 rounding, so compare within 1e-12.
	if got := BufferFactor(0.2, 0.2, 0.05); math.Abs(got-0.21) > 1e-12 {
		t.Fatalf("BufferFactor = %v, want 0.21", got)
	}
	if got := BufferFactor(0.05, 0, 0.05); got != 0.1 {
		t.Fatalf("low clamp = %f, want 0.1", got)
	}
	if got := BufferFactor(0.2, 100, 0.05); got != 0.8 {
		t.Fatalf("high clamp = %f, want 0.8", got)
	}
}
