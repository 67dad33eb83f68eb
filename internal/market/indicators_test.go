package market

import (
	"math"
	"testing"
)

func TestRSIAllGains(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	got, err := RSI(closes, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 100 {
		t.Fatalf("RSI of monotonic gains = %f, want 100", got)
	}
}

func TestRSIBalanced(t *testing.T) {
	// Alternating equal gains and losses settle near 50.
	closes := []float64{100}
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			closes = append(closes, closes[len(closes)-1]+1)
		} else {
			closes = append(closes, closes[len(closes)-1]-1)
		}
	}
	got, err := RSI(closes, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got < 40 || got > 60 {
		t.Fatalf("balanced RSI = %f, want near 50", got)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	if _, err := RSI([]float64{1, 2, 3}, 14); err == nil {
		t.Fatalf("expected error for short series")
	}
}

func TestATRConstantRange(t *testing.T) {
	// Every candle spans exactly 10 with no gaps; ATR must converge to 10.
	n := 50
	high := make([]float64, n)
	low := make([]float64, n)
	closePx := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 2505
		low[i] = 2495
		closePx[i] = 2500
	}

	got, err := ATR(high, low, closePx, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-10) > 1e-9 {
		t.Fatalf("ATR = %f, want 10", got)
	}
}

func TestATRGapsCountTowardTrueRange(t *testing.T) {
	// A gap above the prior close widens the true range beyond high-low.
	high := []float64{10, 30, 30, 30, 30}
	low := []float64{9, 29, 29, 29, 29}
	closePx := []float64{10, 30, 30, 30, 30}

	got, err := ATR(high, low, closePx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// First TR is 30-10=20 from the gap; later TRs are 1.
	if got <= 1 {
		t.Fatalf("ATR = %f, gap not reflected", got)
	}
}

func TestATRLengthMismatch(t *testing.T) {
	if _, err := ATR([]float64{1, 2}, []float64{1}, []float64{1, 2}, 1); err == nil {
		t.Fatalf("expected error for mismatched lengths")
	}
}

func TestDropLastAndTrim(t *testing.T) {
	c := Candles{
		High:  []float64{1, 2, 3, 4},
		Low:   []float64{1, 2, 3, 4},
		Close: []float64{1, 2, 3, 4},
	}
	dropped := dropLast(c)
	if dropped.Len() != 3 || dropped.Close[2] != 3 {
		t.Fatalf("dropLast kept the forming candle: %+v", dropped)
	}

	trimmed := trimCandles(dropped, 2)
	if trimmed.Len() != 2 || trimmed.Close[0] != 2 {
		t.Fatalf("trimCandles wrong window: %+v", trimmed)
	}
}
