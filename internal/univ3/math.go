// Package univ3 wraps the concentrated-liquidity position math: sqrt
// price ratios, liquidity/amount conversions, and mint parameter sizing.
package univ3

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// MinTick and MaxTick bound every usable tick.
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// Q96 is the fixed-point scale of sqrtPriceX96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	// referenceLiquidity is an arbitrary liquidity used to derive the
	// ideal token ratio of a range at the current price.
	referenceLiquidity = new(big.Int).Lsh(big.NewInt(1), 96)
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96. Precision is ample
// for sizing and slippage bounds; this is not the on-chain bit-exact
// TickMath.
func SqrtRatioAtTick(tick int32) *big.Int {
	const prec = 512

	base := new(big.Float).SetPrec(prec).SetFloat64(1.0001)
	pow := powFloat(base, tick, prec)
	sqrt := new(big.Float).SetPrec(prec).Sqrt(pow)

	scaled := new(big.Float).SetPrec(prec).Mul(sqrt, new(big.Float).SetPrec(prec).SetInt(Q96))
	out, _ := scaled.Int(nil)
	return out
}

func powFloat(base *big.Float, exp int32, prec uint) *big.Float {
	result := new(big.Float).SetPrec(prec).SetInt64(1)
	if exp == 0 {
		return result
	}

	n := exp
	if n < 0 {
		n = -n
	}

	acc := new(big.Float).SetPrec(prec).Set(base)
	for n > 0 {
		if n&1 == 1 {
			result.Mul(result, acc)
		}
		acc.Mul(acc, acc)
		n >>= 1
	}

	if exp < 0 {
		one := new(big.Float).SetPrec(prec).SetInt64(1)
		result.Quo(one, result)
	}
	return result
}

// AmountsForLiquidity returns the token amounts a position of the given
// liquidity holds between sqrtA and sqrtB at the current sqrtP.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (*big.Int, *big.Int) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	amount0 := big.NewInt(0)
	amount1 := big.NewInt(0)

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		amount0 = amount0ForLiquidity(sqrtA, sqrtB, liquidity)
	case sqrtP.Cmp(sqrtB) >= 0:
		amount1 = amount1ForLiquidity(sqrtA, sqrtB, liquidity)
	default:
		amount0 = amount0ForLiquidity(sqrtP, sqrtB, liquidity)
		amount1 = amount1ForLiquidity(sqrtA, sqrtP, liquidity)
	}
	return amount0, amount1
}

// amount0 = L * Q96 * (sqrtB - sqrtA) / (sqrtB * sqrtA)
func amount0ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	num := new(big.Int).Mul(liquidity, Q96)
	num.Mul(num, new(big.Int).Sub(sqrtB, sqrtA))
	den := new(big.Int).Mul(sqrtB, sqrtA)
	return num.Quo(num, den)
}

// amount1 = L * (sqrtB - sqrtA) / Q96
func amount1ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	num := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtB, sqrtA))
	return num.Quo(num, Q96)
}

// LiquidityForAmounts returns the maximum liquidity the amounts can fund
// between sqrtA and sqrtB at the current sqrtP.
func LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return liquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtP.Cmp(sqrtB) >= 0:
		return liquidityForAmount1(sqrtA, sqrtB, amount1)
	default:
		l0 := liquidityForAmount0(sqrtP, sqrtB, amount0)
		l1 := liquidityForAmount1(sqrtA, sqrtP, amount1)
		if l0.Cmp(l1) < 0 {
			return l0
		}
		return l1
	}
}

// L = amount0 * (sqrtA * sqrtB / Q96) / (sqrtB - sqrtA)
func liquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	intermediate := new(big.Int).Mul(sqrtA, sqrtB)
	intermediate.Quo(intermediate, Q96)
	num := new(big.Int).Mul(amount0, intermediate)
	den := new(big.Int).Sub(sqrtB, sqrtA)
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	return num.Quo(num, den)
}

// L = amount1 * Q96 / (sqrtB - sqrtA)
func liquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	den := new(big.Int).Sub(sqrtB, sqrtA)
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(amount1, Q96)
	return num.Quo(num, den)
}

// IdealAmounts returns the token split a fresh position over the range
// would hold at the current price, for an arbitrary reference liquidity.
// Only the ratio between the two values is meaningful.
func IdealAmounts(sqrtP *big.Int, tickLower, tickUpper int32) (*big.Int, *big.Int) {
	sqrtA := SqrtRatioAtTick(tickLower)
	sqrtB := SqrtRatioAtTick(tickUpper)
	return AmountsForLiquidity(sqrtP, sqrtA, sqrtB, referenceLiquidity)
}

// MintPlan carries the sized mint parameters for a range.
type MintPlan struct {
	Liquidity      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
}

// PlanMint sizes a mint from available balances with a slippage
// tolerance applied to the expected amounts.
func PlanMint(sqrtP *big.Int, tickLower, tickUpper int32, balance0, balance1 *big.Int, tolerance decimal.Decimal) MintPlan {
	sqrtA := SqrtRatioAtTick(tickLower)
	sqrtB := SqrtRatioAtTick(tickUpper)

	liquidity := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, balance0, balance1)
	desired0, desired1 := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity)

	return MintPlan{
		Liquidity:      liquidity,
		Amount0Desired: desired0,
		Amount1Desired: desired1,
		Amount0Min:     applyTolerance(desired0, tolerance),
		Amount1Min:     applyTolerance(desired1, tolerance),
	}
}

func applyTolerance(amount *big.Int, tolerance decimal.Decimal) *big.Int {
	factor := decimal.New(1, 0).Sub(tolerance)
	scaled := decimal.NewFromBigInt(amount, 0).Mul(factor)
	return scaled.BigInt()
}

// FloorToSpacing aligns a tick downward to a multiple of the spacing,
// flooring for negative ticks as well.
func FloorToSpacing(tick, spacing int32) int32 {
	if spacing <= 0 {
		return tick
	}
	q := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		q--
	}
	return q * spacing
}

// ClampTick bounds a tick into the usable range.
func ClampTick(tick int32) int32 {
	if tick < MinTick {
		return MinTick
	}
	if tick > MaxTick {
		return MaxTick
	}
	return tick
}
