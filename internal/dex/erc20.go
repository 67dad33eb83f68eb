package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ERC20 calls a token contract.
type ERC20 struct {
	Address common.Address
	src     ClientSource
}

func NewERC20(address common.Address, src ClientSource) *ERC20 {
	return &ERC20{Address: address, src: src}
}

func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := contractCall(ctx, t.src, t.Address, parsed, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return 0, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := contractCall(ctx, t.src, t.Address, parsed, "decimals")
	if err != nil {
		return 0, err
	}
	return asUint8(values[0])
}

func (t *ERC20) Symbol(ctx context.Context) (string, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return "", fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := contractCall(ctx, t.src, t.Address, parsed, "symbol")
	if err != nil {
		return "", err
	}
	symbol, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unsupported symbol type %T", values[0])
	}
	return symbol, nil
}

func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := contractCall(ctx, t.src, t.Address, parsed, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// ApproveData builds approve calldata for submission through the wallet.
func (t *ERC20) ApproveData(spender common.Address, amount *big.Int) ([]byte, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return data, nil
}
