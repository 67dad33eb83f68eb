package strategy

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"rangekeeper/internal/actions"
	"rangekeeper/internal/audit"
	"rangekeeper/internal/dex"
	"rangekeeper/internal/state"
)

// ManualExitParams wires the one-shot emergency exit.
type ManualExitParams struct {
	Logger   *zap.Logger
	Store    *state.Store
	Pool     *dex.Pool
	Actions  *actions.Library
	Sink     audit.Sink
	Volatile dex.TokenRef
	Stable   dex.TokenRef
}

// ManualExit closes any recorded position and sweeps to stable,
// tolerating individual step failures, then resets persisted state. It
// is the out-of-band flow used while the automated loop is stopped.
func ManualExit(ctx context.Context, p ManualExitParams) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	st := p.Store.Load()
	snap, err := p.Pool.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("pool snapshot: %w", err)
	}

	if st.TokenID != state.NoPosition {
		tokenID, ok := new(big.Int).SetString(st.TokenID, 10)
		if !ok {
			logger.Warn("malformed persisted token id, skipping exit", zap.String("token_id", st.TokenID))
		} else if _, err := p.Actions.AtomicExit(ctx, tokenID); err != nil {
			logger.Warn("manual exit: close failed, continuing to sweep", zap.Error(err))
		}
	} else {
		logger.Info("manual exit: no recorded position")
	}

	if _, err := p.Actions.SweepToStable(ctx, snap, p.Volatile, p.Stable); err != nil {
		logger.Warn("manual exit: sweep failed", zap.Error(err))
	}

	if err := p.Store.Reset(); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}

	if p.Sink != nil {
		event := audit.Event{
			Time:    time.Now(),
			Type:    audit.TypeInfo,
			Price:   snap.Token0Price().InexactFloat64(),
			Tick:    snap.Tick,
			Details: "manual emergency exit completed; state reset",
		}
		if err := p.Sink.Record(ctx, event); err != nil {
			logger.Warn("audit record failed", zap.Error(err))
		}
	}

	logger.Info("manual exit complete")
	return nil
}
