package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrTxTimeout marks a transaction whose receipt did not arrive before
// the confirmation deadline. The transaction may still land on chain.
var ErrTxTimeout = errors.New("transaction confirmation timed out")

const (
	// DefaultMaxRetries bounds idempotent read retries.
	DefaultMaxRetries = 3
	// DefaultConfirmTimeout bounds waiting for a transaction receipt.
	DefaultConfirmTimeout = 60 * time.Second

	retryBaseDelay      = time.Second
	receiptPollInterval = 2 * time.Second
)

// WithRetry executes an idempotent call, sleeping attempt*1s between
// failures. After maxRetries failures the last error surfaces.
func WithRetry(ctx context.Context, maxRetries int, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= maxRetries {
			return lastErr
		}

		timer := time.NewTimer(time.Duration(attempt) * retryBaseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// WaitForConfirmation races the transaction receipt against the deadline.
// On deadline it returns ErrTxTimeout; the caller must NOT assume the
// transaction failed to land.
func WaitForConfirmation(ctx context.Context, client *Client, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			return receipt, nil
		}
		// ethereum.NotFound means still pending; anything else is a
		// transient read failure. Both keep polling until the deadline.

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrTxTimeout
		case <-ticker.C:
		}
	}
}
