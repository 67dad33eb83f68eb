package actions

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"
)

// ExitResult reports what an atomic exit collected.
type ExitResult struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// AtomicExit closes a position in a single multicall: decreaseLiquidity
// for the full amount (only when liquidity is positive), collect with
// max amounts, then burn. The collected amounts are parsed from the
// Collect event in the receipt.
func (l *Library) AtomicExit(ctx context.Context, tokenID *big.Int) (ExitResult, error) {
	position, err := l.npm.Positions(ctx, tokenID)
	if err != nil {
		return ExitResult{}, fmt.Errorf("read position %s: %w", tokenID, err)
	}

	var calls [][]byte

	if position.Liquidity.Sign() > 0 {
		decreaseData, err := l.npm.DecreaseLiquidityData(tokenID, position.Liquidity, deadline())
		if err != nil {
			return ExitResult{}, err
		}
		calls = append(calls, decreaseData)
	}

	collectData, err := l.npm.CollectData(tokenID, l.wallet.Address())
	if err != nil {
		return ExitResult{}, err
	}
	calls = append(calls, collectData)

	burnData, err := l.npm.BurnData(tokenID)
	if err != nil {
		return ExitResult{}, err
	}
	calls = append(calls, burnData)

	multicallData, err := l.npm.MulticallData(calls)
	if err != nil {
		return ExitResult{}, err
	}

	receipt, err := l.submit(ctx, l.npm.Address, multicallData, "atomic exit")
	if err != nil {
		return ExitResult{}, err
	}

	amount0, amount1, err := l.npm.ParseCollect(receipt)
	if err != nil {
		// A zero-liquidity zero-fee position emits no Collect amounts
		// worth reporting.
		l.logger.Warn("exit receipt missing Collect event", zap.Error(err))
		amount0, amount1 = big.NewInt(0), big.NewInt(0)
	}

	l.logger.Info("position closed",
		zap.String("token_id", tokenID.String()),
		zap.String("collected0", amount0.String()),
		zap.String("collected1", amount1.String()),
	)

	return ExitResult{Amount0: amount0, Amount1: amount1}, nil
}
