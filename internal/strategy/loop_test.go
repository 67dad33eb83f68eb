package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOutsideBufferedRange(t *testing.T) {
	// Position [-100, +100] with buffer 60: rebalance only past the
	// buffered bounds.
	cases := []struct {
		tick int32
		want bool
	}{
		{0, false},
		{90, false},
		{100, false},
		{159, false},
		{160, false},
		{161, true},
		{500, true},
		{-161, true},
	}
	for _, tc := range cases {
		if got := outsideBufferedRange(tc.tick, -100, 100, 60); got != tc.want {
			t.Fatalf("outsideBufferedRange(%d) = %v, want %v", tc.tick, got, tc.want)
		}
	}
}

func TestCircuitBreakerThreshold(t *testing.T) {
	// Width 200, factor 3 gives a 600-tick trip distance from center 0.
	if circuitBreakerTripped(599, -100, 100, 3.0) {
		t.Fatalf("599 ticks from center must not trip")
	}
	if circuitBreakerTripped(600, -100, 100, 3.0) {
		t.Fatalf("600 ticks is exactly the threshold, must not trip")
	}
	if !circuitBreakerTripped(700, -100, 100, 3.0) {
		t.Fatalf("700 ticks from center must trip")
	}
	if !circuitBreakerTripped(-700, -100, 100, 3.0) {
		t.Fatalf("downside divergence must trip too")
	}
}

func TestTotalValue(t *testing.T) {
	eq := Equity{
		Wallet0:   decimal.NewFromFloat(0.5),
		Wallet1:   decimal.NewFromFloat(100),
		Position0: decimal.NewFromFloat(0.25),
		Position1: decimal.NewFromFloat(500),
		Fees0:     decimal.NewFromFloat(0.01),
		Fees1:     decimal.NewFromFloat(10),
		Price0:    decimal.NewFromFloat(2000),
	}
	// (0.5 + 0.25 + 0.01) * 2000 + 100 + 500 + 10 = 1520 + 610 = 2130
	want := decimal.NewFromFloat(2130)
	if got := totalValue(eq); !got.Equal(want) {
		t.Fatalf("totalValue = %s, want %s", got, want)
	}
}

func TestTotalValueWalletOnly(t *testing.T) {
	eq := Equity{
		Wallet0: decimal.NewFromFloat(0.1),
		Wallet1: decimal.NewFromFloat(50),
		Price0:  decimal.NewFromFloat(2500),
	}
	want := decimal.NewFromFloat(300)
	if got := totalValue(eq); !got.Equal(want) {
		t.Fatalf("totalValue = %s, want %s", got, want)
	}
}
