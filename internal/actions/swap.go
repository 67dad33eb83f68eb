package actions

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rangekeeper/internal/dex"
	"rangekeeper/internal/univ3"
)

// SwapResult reports an executed (or skipped) swap.
type SwapResult struct {
	Skipped   bool
	TokenIn   dex.TokenRef
	TokenOut  dex.TokenRef
	AmountIn  *big.Int
	AmountOut *big.Int
}

// TargetToken0 computes the human-scaled token0 holding that funds a
// range at the ideal mint ratio. total is the portfolio value in token1
// units, price0 the token1 price of token0, and ideal0/ideal1 the
// human-scaled ideal amounts for the range. A zero ideal0 (range fully
// below spot) targets no token0; a zero ideal1 (range fully above spot)
// targets everything in token0.
func TargetToken0(total, price0, ideal0, ideal1 decimal.Decimal) decimal.Decimal {
	if price0.Sign() <= 0 || total.Sign() <= 0 {
		return decimal.Zero
	}
	if ideal0.Sign() == 0 {
		return decimal.Zero
	}
	if ideal1.Sign() == 0 {
		return total.DivRound(price0, 18)
	}
	ratio := ideal1.DivRound(ideal0, 18)
	return total.DivRound(price0.Add(ratio), 18)
}

// SmartSwap rebalances the wallet toward the token split the new range
// needs at the current price. Swaps below the per-token dust threshold
// are skipped.
func (l *Library) SmartSwap(ctx context.Context, snap dex.PoolSnapshot, tickLower, tickUpper int32) (SwapResult, error) {
	token0, token1 := snap.Token0, snap.Token1

	rawIdeal0, rawIdeal1 := univ3.IdealAmounts(snap.SqrtPriceX96, tickLower, tickUpper)
	ideal0 := toHuman(rawIdeal0, token0.Decimals)
	ideal1 := toHuman(rawIdeal1, token1.Decimals)

	bal0, err := dex.NewERC20(token0.Address, l.src).BalanceOf(ctx, l.wallet.Address())
	if err != nil {
		return SwapResult{}, fmt.Errorf("balance %s: %w", token0.Symbol, err)
	}
	bal1, err := dex.NewERC20(token1.Address, l.src).BalanceOf(ctx, l.wallet.Address())
	if err != nil {
		return SwapResult{}, fmt.Errorf("balance %s: %w", token1.Symbol, err)
	}

	h0 := toHuman(bal0, token0.Decimals)
	h1 := toHuman(bal1, token1.Decimals)
	price0 := snap.Token0Price()

	total := h1.Add(h0.Mul(price0))
	target0 := TargetToken0(total, price0, ideal0, ideal1)
	delta0 := h0.Sub(target0)

	l.logger.Info("swap sizing",
		zap.String("portfolio_value", total.StringFixed(2)),
		zap.String("target0", target0.String()),
		zap.String("held0", h0.String()),
		zap.String("delta0", delta0.String()),
	)

	if delta0.Sign() > 0 {
		// Excess token0: sell it for token1.
		if delta0.LessThan(l.dustFor(token0)) {
			l.logger.Info("swap skipped below dust threshold",
				zap.String("token", token0.Symbol),
				zap.String("amount", delta0.String()),
			)
			return SwapResult{Skipped: true, TokenIn: token0, TokenOut: token1}, nil
		}
		amountIn := toWei(delta0, token0.Decimals)
		if amountIn.Cmp(bal0) > 0 {
			amountIn = bal0
		}
		return l.swapExactInput(ctx, token0, token1, snap, amountIn)
	}

	// Shortfall of token0: sell token1 worth the shortfall.
	amount1 := delta0.Neg().Mul(price0)
	if amount1.LessThan(l.dustFor(token1)) {
		l.logger.Info("swap skipped below dust threshold",
			zap.String("token", token1.Symbol),
			zap.String("amount", amount1.String()),
		)
		return SwapResult{Skipped: true, TokenIn: token1, TokenOut: token0}, nil
	}
	amountIn := toWei(amount1, token1.Decimals)
	if amountIn.Cmp(bal1) > 0 {
		amountIn = bal1
	}
	return l.swapExactInput(ctx, token1, token0, snap, amountIn)
}

// SweepToStable converts the whole volatile-token balance into the
// stable token, skipped below the dust threshold.
func (l *Library) SweepToStable(ctx context.Context, snap dex.PoolSnapshot, volatile, stable dex.TokenRef) (SwapResult, error) {
	balance, err := dex.NewERC20(volatile.Address, l.src).BalanceOf(ctx, l.wallet.Address())
	if err != nil {
		return SwapResult{}, fmt.Errorf("balance %s: %w", volatile.Symbol, err)
	}

	human := toHuman(balance, volatile.Decimals)
	if human.LessThan(l.dustFor(volatile)) {
		l.logger.Info("sweep skipped below dust threshold",
			zap.String("token", volatile.Symbol),
			zap.String("amount", human.String()),
		)
		return SwapResult{Skipped: true, TokenIn: volatile, TokenOut: stable}, nil
	}

	return l.swapExactInput(ctx, volatile, stable, snap, balance)
}

func (l *Library) swapExactInput(ctx context.Context, tokenIn, tokenOut dex.TokenRef, snap dex.PoolSnapshot, amountIn *big.Int) (SwapResult, error) {
	if amountIn.Sign() <= 0 {
		return SwapResult{Skipped: true, TokenIn: tokenIn, TokenOut: tokenOut}, nil
	}

	quote, err := l.quoter.QuoteExactInputSingle(ctx, tokenIn.Address, tokenOut.Address, snap.Fee, amountIn)
	if err != nil {
		return SwapResult{}, fmt.Errorf("quote %s->%s: %w", tokenIn.Symbol, tokenOut.Symbol, err)
	}

	minOut := applySlippageFloor(quote, l.slippage)

	if err := l.ensureAllowance(ctx, tokenIn, l.router.Address, amountIn); err != nil {
		return SwapResult{}, err
	}

	data, err := l.router.ExactInputSingleData(dex.ExactInputSingleParams{
		TokenIn:           tokenIn.Address,
		TokenOut:          tokenOut.Address,
		Fee:               new(big.Int).SetUint64(uint64(snap.Fee)),
		Recipient:         l.wallet.Address(),
		Deadline:          deadline(),
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return SwapResult{}, err
	}

	if _, err := l.submit(ctx, l.router.Address, data, fmt.Sprintf("swap %s->%s", tokenIn.Symbol, tokenOut.Symbol)); err != nil {
		return SwapResult{}, err
	}

	l.logger.Info("swap executed",
		zap.String("token_in", tokenIn.Symbol),
		zap.String("token_out", tokenOut.Symbol),
		zap.String("amount_in", amountIn.String()),
		zap.String("min_out", minOut.String()),
	)

	return SwapResult{
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amountIn,
		AmountOut: quote,
	}, nil
}

// SwapExactOutput buys an exact amount of tokenOut, bounding the input
// by the quoted amount plus the slippage tolerance.
func (l *Library) SwapExactOutput(ctx context.Context, tokenIn, tokenOut dex.TokenRef, snap dex.PoolSnapshot, amountOut *big.Int) (SwapResult, error) {
	if amountOut.Sign() <= 0 {
		return SwapResult{Skipped: true, TokenIn: tokenIn, TokenOut: tokenOut}, nil
	}

	quote, err := l.quoter.QuoteExactOutputSingle(ctx, tokenIn.Address, tokenOut.Address, snap.Fee, amountOut)
	if err != nil {
		return SwapResult{}, fmt.Errorf("quote %s->%s: %w", tokenIn.Symbol, tokenOut.Symbol, err)
	}
	maxIn := applySlippageCeiling(quote, l.slippage)

	if err := l.ensureAllowance(ctx, tokenIn, l.router.Address, maxIn); err != nil {
		return SwapResult{}, err
	}

	data, err := l.router.ExactOutputSingleData(dex.ExactOutputSingleParams{
		TokenIn:           tokenIn.Address,
		TokenOut:          tokenOut.Address,
		Fee:               new(big.Int).SetUint64(uint64(snap.Fee)),
		Recipient:         l.wallet.Address(),
		Deadline:          deadline(),
		AmountOut:         amountOut,
		AmountInMaximum:   maxIn,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return SwapResult{}, err
	}

	if _, err := l.submit(ctx, l.router.Address, data, fmt.Sprintf("swap exact out %s->%s", tokenIn.Symbol, tokenOut.Symbol)); err != nil {
		return SwapResult{}, err
	}

	return SwapResult{
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  maxIn,
		AmountOut: amountOut,
	}, nil
}

// applySlippageFloor returns quote * (1 - tolerance).
func applySlippageFloor(quote *big.Int, tolerance decimal.Decimal) *big.Int {
	factor := decimal.New(1, 0).Sub(tolerance)
	return decimal.NewFromBigInt(quote, 0).Mul(factor).BigInt()
}

// applySlippageCeiling returns quote * (1 + tolerance), the input bound
// for exact-output swaps.
func applySlippageCeiling(quote *big.Int, tolerance decimal.Decimal) *big.Int {
	factor := decimal.New(1, 0).Add(tolerance)
	return decimal.NewFromBigInt(quote, 0).Mul(factor).BigInt()
}
