// Package actions executes the on-chain mutations of the strategy:
// atomic exit, target-ratio swap, mint, and sweep-to-stable. Every call
// produces a typed result: exit amounts and the minted token id are
// parsed from the transaction receipt, swap results are built from the
// quote and the submitted parameters.
package actions

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rangekeeper/internal/chain"
	"rangekeeper/internal/dex"
)

const txDeadline = 120 * time.Second

// Library bundles the contract surface the actions drive.
type Library struct {
	logger *zap.Logger
	wallet *chain.Wallet
	src    dex.ClientSource

	npm    *dex.PositionManager
	router *dex.Router
	quoter *dex.Quoter

	slippage       decimal.Decimal
	dustThresholds map[common.Address]decimal.Decimal
	confirmTimeout time.Duration
}

// Params configures a Library.
type Params struct {
	Logger   *zap.Logger
	Wallet   *chain.Wallet
	Source   dex.ClientSource
	NPM      *dex.PositionManager
	Router   *dex.Router
	Quoter   *dex.Quoter
	Slippage decimal.Decimal
	// DustThresholds maps token address to the minimum human-scaled
	// amount worth swapping.
	DustThresholds map[common.Address]decimal.Decimal
	ConfirmTimeout time.Duration
}

func NewLibrary(p Params) *Library {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	confirm := p.ConfirmTimeout
	if confirm <= 0 {
		confirm = chain.DefaultConfirmTimeout
	}
	dust := p.DustThresholds
	if dust == nil {
		dust = map[common.Address]decimal.Decimal{}
	}
	return &Library{
		logger:         logger,
		wallet:         p.Wallet,
		src:            p.Source,
		npm:            p.NPM,
		router:         p.Router,
		quoter:         p.Quoter,
		slippage:       p.Slippage,
		dustThresholds: dust,
		confirmTimeout: confirm,
	}
}

func deadline() *big.Int {
	return big.NewInt(time.Now().Add(txDeadline).Unix())
}

func (l *Library) dustFor(token dex.TokenRef) decimal.Decimal {
	return l.dustThresholds[token.Address]
}

// submit signs, sends, and waits for a successful receipt.
func (l *Library) submit(ctx context.Context, to common.Address, data []byte, label string) (*types.Receipt, error) {
	tx, err := l.wallet.SignAndSend(ctx, to, data, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	l.logger.Info("transaction submitted",
		zap.String("action", label),
		zap.String("tx", tx.Hash().Hex()),
	)

	receipt, err := chain.WaitForConfirmation(ctx, l.src.Client(), tx.Hash(), l.confirmTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s: transaction reverted (%s)", label, tx.Hash().Hex())
	}
	return receipt, nil
}

// ensureAllowance approves the spender once when the current allowance
// does not cover the amount.
func (l *Library) ensureAllowance(ctx context.Context, token dex.TokenRef, spender common.Address, amount *big.Int) error {
	erc20 := dex.NewERC20(token.Address, l.src)
	allowance, err := erc20.Allowance(ctx, l.wallet.Address(), spender)
	if err != nil {
		return fmt.Errorf("allowance %s: %w", token.Symbol, err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	data, err := erc20.ApproveData(spender, max)
	if err != nil {
		return err
	}
	if _, err := l.submit(ctx, token.Address, data, "approve "+token.Symbol); err != nil {
		return err
	}
	return nil
}

func toHuman(amount *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

func toWei(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}
