package actions

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTargetToken0Symmetric(t *testing.T) {
	// A centered range at price 2500 with ideal ratio = price splits the
	// portfolio in half by value: target0 * price0 == total / 2.
	total := dec("2000")  // USDC value
	price0 := dec("2500") // USDC per WETH
	ideal0 := dec("1")
	ideal1 := dec("2500")

	target0 := TargetToken0(total, price0, ideal0, ideal1)
	value0 := target0.Mul(price0)

	if diff := value0.Sub(dec("1000")).Abs(); diff.GreaterThan(dec("0.01")) {
		t.Fatalf("symmetric split value0 = %s, want 1000", value0)
	}
}

func TestTargetToken0SingleSidedBelowSpot(t *testing.T) {
	// Range fully below spot needs no token0.
	target0 := TargetToken0(dec("2000"), dec("2500"), decimal.Zero, dec("1"))
	if !target0.IsZero() {
		t.Fatalf("target0 = %s, want 0", target0)
	}
}

func TestTargetToken0SingleSidedAboveSpot(t *testing.T) {
	// Range fully above spot wants everything in token0.
	target0 := TargetToken0(dec("2000"), dec("2500"), dec("1"), decimal.Zero)
	want := dec("0.8") // 2000 / 2500
	if diff := target0.Sub(want).Abs(); diff.GreaterThan(dec("0.000001")) {
		t.Fatalf("target0 = %s, want %s", target0, want)
	}
}

func TestTargetToken0DegenerateInputs(t *testing.T) {
	if !TargetToken0(decimal.Zero, dec("2500"), dec("1"), dec("1")).IsZero() {
		t.Fatalf("zero portfolio must target zero")
	}
	if !TargetToken0(dec("2000"), decimal.Zero, dec("1"), dec("1")).IsZero() {
		t.Fatalf("zero price must target zero")
	}
}

func TestApplySlippageBounds(t *testing.T) {
	quote := big.NewInt(1_000_000)
	tolerance := dec("0.005")

	floor := applySlippageFloor(quote, tolerance)
	if floor.Cmp(big.NewInt(995_000)) != 0 {
		t.Fatalf("floor = %s, want 995000", floor)
	}

	ceiling := applySlippageCeiling(quote, tolerance)
	if ceiling.Cmp(big.NewInt(1_005_000)) != 0 {
		t.Fatalf("ceiling = %s, want 1005000", ceiling)
	}
}

func TestScaleBalance(t *testing.T) {
	got := scaleBalance(big.NewInt(1000))
	if got.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("scaleBalance(1000) = %s, want 990", got)
	}
	if scaleBalance(big.NewInt(0)).Sign() != 0 {
		t.Fatalf("scaleBalance(0) must be 0")
	}
}
