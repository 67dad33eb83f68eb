package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet signs and submits transactions with locally tracked nonces.
// Transactions must be submitted serially to keep nonces contiguous;
// SignAndSend holds the wallet lock for the whole submit.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int

	mu        sync.Mutex
	client    *Client
	nonce     uint64
	nonceInit bool
}

// NewWallet builds a wallet from a hex private key.
func NewWallet(privateKeyHex string, chainID *big.Int, client *Client) (*Wallet, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		client:  client,
	}, nil
}

// Address returns the wallet address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// WithClient rebinds the wallet to a new client after endpoint rotation
// and drops the cached nonce; pending transactions on the old client are
// best-effort.
func (w *Wallet) WithClient(client *Client) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.client = client
	w.nonceInit = false
}

// SignAndSend packs a contract call into a signed transaction and
// broadcasts it.
func (w *Wallet) SignAndSend(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	client := w.client
	if client == nil {
		return nil, fmt.Errorf("wallet has no client")
	}
	if value == nil {
		value = big.NewInt(0)
	}

	if !w.nonceInit {
		nonce, err := client.PendingNonceAt(ctx, w.address)
		if err != nil {
			return nil, fmt.Errorf("fetch nonce: %w", err)
		}
		w.nonce = nonce
		w.nonceInit = true
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	msg := ethereum.CallMsg{From: w.address, To: &to, Value: value, Data: data}
	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit = gasLimit + gasLimit/5

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    w.nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		// The nonce may or may not be consumed; refetch on next send.
		w.nonceInit = false
		return nil, fmt.Errorf("send tx: %w", err)
	}
	w.nonce++

	return signed, nil
}
