package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Addresses is the contract address table for one network.
type Addresses struct {
	Pool            common.Address
	PositionManager common.Address
	SwapRouter      common.Address
	Quoter          common.Address
	WETH            common.Address
	USDC            common.Address
}

// Arbitrum One: WETH/USDC 0.05% pool and the canonical Uniswap v3 periphery.
var mainnetAddresses = Addresses{
	Pool:            common.HexToAddress("0xC6962004f452bE9203591991D15f6b388e09E8D0"),
	PositionManager: common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88"),
	SwapRouter:      common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
	Quoter:          common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6"),
	WETH:            common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
	USDC:            common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
}

// Ethereum Sepolia deployments for testing.
var testnetAddresses = Addresses{
	Pool:            common.HexToAddress("0x3289680dD4d6C10bb19b899729cda5eEF58AEfF1"),
	PositionManager: common.HexToAddress("0x1238536071E1c677A632429e3655c799b22cDA52"),
	SwapRouter:      common.HexToAddress("0x3bFA4769FB09eefC5a80d6E87c3B9C650f7Ae48E"),
	Quoter:          common.HexToAddress("0xEd1f6473345F45b75F8179591dd5bA1888cf2FB3"),
	WETH:            common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"),
	USDC:            common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
}

// AddressesForNetwork selects the constant address table.
func AddressesForNetwork(network string) (Addresses, error) {
	switch network {
	case "MAINNET":
		return mainnetAddresses, nil
	case "", "TESTNET":
		return testnetAddresses, nil
	default:
		return Addresses{}, fmt.Errorf("unknown network %q", network)
	}
}
