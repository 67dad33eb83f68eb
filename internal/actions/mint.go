package actions

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"rangekeeper/internal/dex"
	"rangekeeper/internal/state"
	"rangekeeper/internal/univ3"
)

// balanceSafetyNumerator scales mint balances by 0.99, absorbing
// precision loss and balance-read lag on rotating endpoints.
const balanceSafetyNumerator = 99

// MintResult reports a successful mint.
type MintResult struct {
	TokenID   string
	TickLower int32
	TickUpper int32
	Amount0   *big.Int
	Amount1   *big.Int
}

// MintMaxLiquidity mints the most liquidity the wallet's balances (scaled
// by 0.99) can fund over the given range. When both sized amounts are
// zero it returns token id "0" without submitting.
func (l *Library) MintMaxLiquidity(ctx context.Context, snap dex.PoolSnapshot, tickLower, tickUpper int32) (MintResult, error) {
	token0, token1 := snap.Token0, snap.Token1

	bal0, err := dex.NewERC20(token0.Address, l.src).BalanceOf(ctx, l.wallet.Address())
	if err != nil {
		return MintResult{}, fmt.Errorf("balance %s: %w", token0.Symbol, err)
	}
	bal1, err := dex.NewERC20(token1.Address, l.src).BalanceOf(ctx, l.wallet.Address())
	if err != nil {
		return MintResult{}, fmt.Errorf("balance %s: %w", token1.Symbol, err)
	}

	scaled0 := scaleBalance(bal0)
	scaled1 := scaleBalance(bal1)

	plan := univ3.PlanMint(snap.SqrtPriceX96, tickLower, tickUpper, scaled0, scaled1, l.slippage)
	if plan.Amount0Desired.Sign() == 0 && plan.Amount1Desired.Sign() == 0 {
		l.logger.Warn("nothing to mint, both sized amounts are zero",
			zap.Int32("tick_lower", tickLower),
			zap.Int32("tick_upper", tickUpper),
		)
		return MintResult{TokenID: state.NoPosition}, nil
	}

	if plan.Amount0Desired.Sign() > 0 {
		if err := l.ensureAllowance(ctx, token0, l.npm.Address, plan.Amount0Desired); err != nil {
			return MintResult{}, err
		}
	}
	if plan.Amount1Desired.Sign() > 0 {
		if err := l.ensureAllowance(ctx, token1, l.npm.Address, plan.Amount1Desired); err != nil {
			return MintResult{}, err
		}
	}

	data, err := l.npm.MintData(dex.MintParams{
		Token0:         token0.Address,
		Token1:         token1.Address,
		Fee:            new(big.Int).SetUint64(uint64(snap.Fee)),
		TickLower:      big.NewInt(int64(tickLower)),
		TickUpper:      big.NewInt(int64(tickUpper)),
		Amount0Desired: plan.Amount0Desired,
		Amount1Desired: plan.Amount1Desired,
		Amount0Min:     plan.Amount0Min,
		Amount1Min:     plan.Amount1Min,
		Recipient:      l.wallet.Address(),
		Deadline:       deadline(),
	})
	if err != nil {
		return MintResult{}, err
	}

	receipt, err := l.submit(ctx, l.npm.Address, data, "mint")
	if err != nil {
		return MintResult{}, err
	}

	tokenID, err := l.npm.ParseMintedTokenID(receipt, l.wallet.Address())
	if err != nil {
		return MintResult{}, fmt.Errorf("parse minted token id: %w", err)
	}

	l.logger.Info("position minted",
		zap.String("token_id", tokenID.String()),
		zap.Int32("tick_lower", tickLower),
		zap.Int32("tick_upper", tickUpper),
	)

	return MintResult{
		TokenID:   tokenID.String(),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount0:   plan.Amount0Desired,
		Amount1:   plan.Amount1Desired,
	}, nil
}

func scaleBalance(balance *big.Int) *big.Int {
	scaled := new(big.Int).Mul(balance, big.NewInt(balanceSafetyNumerator))
	return scaled.Quo(scaled, big.NewInt(100))
}
