package univ3

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSqrtRatioAtTickZero(t *testing.T) {
	got := SqrtRatioAtTick(0)
	if got.Cmp(Q96) != 0 {
		t.Fatalf("SqrtRatioAtTick(0) = %s, want %s", got, Q96)
	}
}

func TestSqrtRatioAtTickMonotonic(t *testing.T) {
	prev := SqrtRatioAtTick(-1000)
	for _, tick := range []int32{-100, -1, 0, 1, 100, 1000, 10000} {
		cur := SqrtRatioAtTick(tick)
		if cur.Cmp(prev) <= 0 {
			t.Fatalf("sqrt ratio not increasing at tick %d", tick)
		}
		prev = cur
	}
}

func TestSqrtRatioInverseSymmetry(t *testing.T) {
	// ratio(t) * ratio(-t) should be ~Q96^2 (price and its inverse).
	for _, tick := range []int32{60, 887, 10000} {
		up := SqrtRatioAtTick(tick)
		down := SqrtRatioAtTick(-tick)
		product := new(big.Int).Mul(up, down)
		want := new(big.Int).Mul(Q96, Q96)

		diff := new(big.Int).Sub(product, want)
		diff.Abs(diff)
		// Tolerate a relative error of ~1e-18.
		tolerance := new(big.Int).Quo(want, big.NewInt(1_000_000_000_000_000_000))
		if diff.Cmp(tolerance) > 0 {
			t.Fatalf("tick %d: product deviates by %s", tick, diff)
		}
	}
}

func TestAmountsForLiquidityRegions(t *testing.T) {
	sqrtA := SqrtRatioAtTick(-600)
	sqrtB := SqrtRatioAtTick(600)
	liquidity := new(big.Int).Lsh(big.NewInt(1), 80)

	// Price below the range holds only token0.
	a0, a1 := AmountsForLiquidity(SqrtRatioAtTick(-1200), sqrtA, sqrtB, liquidity)
	if a0.Sign() <= 0 || a1.Sign() != 0 {
		t.Fatalf("below range: amounts (%s, %s)", a0, a1)
	}

	// Price above the range holds only token1.
	a0, a1 = AmountsForLiquidity(SqrtRatioAtTick(1200), sqrtA, sqrtB, liquidity)
	if a0.Sign() != 0 || a1.Sign() <= 0 {
		t.Fatalf("above range: amounts (%s, %s)", a0, a1)
	}

	// Price inside the range holds both.
	a0, a1 = AmountsForLiquidity(SqrtRatioAtTick(0), sqrtA, sqrtB, liquidity)
	if a0.Sign() <= 0 || a1.Sign() <= 0 {
		t.Fatalf("in range: amounts (%s, %s)", a0, a1)
	}
}

func TestLiquidityAmountsRoundTrip(t *testing.T) {
	sqrtP := SqrtRatioAtTick(0)
	sqrtA := SqrtRatioAtTick(-600)
	sqrtB := SqrtRatioAtTick(600)

	amount0 := big.NewInt(1_000_000_000_000_000_000)
	amount1 := big.NewInt(2_500_000_000)

	liquidity := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1)
	if liquidity.Sign() <= 0 {
		t.Fatalf("liquidity not positive: %s", liquidity)
	}

	back0, back1 := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity)
	if back0.Cmp(amount0) > 0 || back1.Cmp(amount1) > 0 {
		t.Fatalf("round trip exceeds inputs: (%s, %s) > (%s, %s)", back0, back1, amount0, amount1)
	}

	// The binding side should be consumed almost entirely.
	min0 := new(big.Int).Sub(amount0, new(big.Int).Quo(amount0, big.NewInt(100)))
	min1 := new(big.Int).Sub(amount1, new(big.Int).Quo(amount1, big.NewInt(100)))
	if back0.Cmp(min0) < 0 && back1.Cmp(min1) < 0 {
		t.Fatalf("neither side binding: (%s, %s)", back0, back1)
	}
}

func TestPlanMintAppliesTolerance(t *testing.T) {
	sqrtP := SqrtRatioAtTick(0)
	plan := PlanMint(sqrtP, -600, 600,
		big.NewInt(1_000_000_000_000_000_000), big.NewInt(2_500_000_000),
		decimal.NewFromFloat(0.005))

	if plan.Liquidity.Sign() <= 0 {
		t.Fatalf("liquidity not positive")
	}
	for _, pair := range [][2]*big.Int{
		{plan.Amount0Min, plan.Amount0Desired},
		{plan.Amount1Min, plan.Amount1Desired},
	} {
		if pair[0].Cmp(pair[1]) > 0 {
			t.Fatalf("min %s exceeds desired %s", pair[0], pair[1])
		}
		// min should be desired * 0.995, within rounding.
		want := new(big.Int).Mul(pair[1], big.NewInt(995))
		want.Quo(want, big.NewInt(1000))
		diff := new(big.Int).Sub(pair[0], want)
		diff.Abs(diff)
		if diff.Cmp(big.NewInt(2)) > 0 {
			t.Fatalf("min %s not 0.5%% under desired %s", pair[0], pair[1])
		}
	}
}

func TestFloorToSpacing(t *testing.T) {
	cases := []struct {
		tick    int32
		spacing int32
		want    int32
	}{
		{125, 10, 120},
		{120, 10, 120},
		{-125, 10, -130},
		{-120, 10, -120},
		{7, 60, 0},
		{-7, 60, -60},
	}
	for _, tc := range cases {
		if got := FloorToSpacing(tc.tick, tc.spacing); got != tc.want {
			t.Fatalf("FloorToSpacing(%d, %d) = %d, want %d", tc.tick, tc.spacing, got, tc.want)
		}
	}
}

func TestClampTick(t *testing.T) {
	if got := ClampTick(-900000); got != MinTick {
		t.Fatalf("ClampTick(-900000) = %d", got)
	}
	if got := ClampTick(900000); got != MaxTick {
		t.Fatalf("ClampTick(900000) = %d", got)
	}
	if got := ClampTick(42); got != 42 {
		t.Fatalf("ClampTick(42) = %d", got)
	}
}
