package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rangekeeper/internal/actions"
	"rangekeeper/internal/audit"
	"rangekeeper/internal/chain"
	"rangekeeper/internal/dex"
	"rangekeeper/internal/market"
	"rangekeeper/internal/state"
)

// rpcSyncSleep lets balance reads on rotating endpoints catch up after
// the swap before mint parameters are sized.
const rpcSyncSleep = 2 * time.Second

// PipelineConfig holds the tunables of the rebalance sequence.
type PipelineConfig struct {
	TwapWindow            time.Duration
	MaxTwapDeviationTicks int32
	SafetyFactor          float64
	MinWidthTicks         int32
	MaxWidthTicks         int32
}

// Pipeline executes a full rebalance: safety, analytics, exit, swap,
// mint. Every step is an abort point; aborts never leave the pipeline
// mid-mutation.
type Pipeline struct {
	cfg     PipelineConfig
	logger  *zap.Logger
	pool    *dex.Pool
	market  *market.Client
	actions *actions.Library
	store   *state.Store
	sink    audit.Sink
	alerts  chain.Alerter
}

// NewPipeline wires the rebalance dependencies.
func NewPipeline(cfg PipelineConfig, logger *zap.Logger, pool *dex.Pool, marketClient *market.Client, lib *actions.Library, store *state.Store, sink audit.Sink, alerts chain.Alerter) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		market:  marketClient,
		actions: lib,
		store:   store,
		sink:    sink,
		alerts:  alerts,
	}
}

// Execute runs the ordered rebalance for the given block. oldTokenID
// "0" means entry (no position to exit). On success the new token id is
// persisted and returned.
func (p *Pipeline) Execute(ctx context.Context, block uint64, oldTokenID string) (string, error) {
	runID := uuid.NewString()[:8]
	log := p.logger.With(zap.String("run_id", runID), zap.Uint64("block", block))

	snap, err := p.pool.Snapshot(ctx)
	if err != nil {
		return oldTokenID, abort(ReasonNetwork, fmt.Errorf("pool snapshot: %w", err))
	}

	// Step 1: TWAP manipulation gate.
	twapTick, err := p.pool.TwapTick(ctx, p.cfg.TwapWindow)
	if err != nil {
		return oldTokenID, abort(ReasonNetwork, fmt.Errorf("twap observe: %w", err))
	}
	deviation := snap.Tick - twapTick
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > p.cfg.MaxTwapDeviationTicks {
		msg := fmt.Sprintf("spot tick %d deviates %d ticks from %s TWAP %d",
			snap.Tick, deviation, p.cfg.TwapWindow, twapTick)
		log.Warn("twap deviation gate tripped", zap.String("detail", msg))
		p.alerts.Send("Rebalance blocked by TWAP deviation", msg)
		p.record(ctx, block, audit.TypeError, snap, runID, "TWAP violation: "+msg)
		return oldTokenID, abort(ReasonTwapViolation, errors.New(msg))
	}

	// Step 2: fetch analytics concurrently; missing indicators abort
	// before any mutation.
	atr, rsi, err := p.fetchIndicators(ctx)
	if err != nil {
		log.Warn("market analytics unavailable", zap.Error(err))
		p.alerts.Send("Rebalance blocked: market data unavailable", err.Error())
		p.record(ctx, block, audit.TypeError, snap, runID, "market data unavailable: "+err.Error())
		return oldTokenID, abort(ReasonMarketData, err)
	}

	// Step 3: exit the old position.
	var exited actions.ExitResult
	hadPosition := oldTokenID != state.NoPosition
	if hadPosition {
		tokenID, ok := new(big.Int).SetString(oldTokenID, 10)
		if !ok {
			return oldTokenID, abort(ReasonExitFailed, fmt.Errorf("malformed token id %q", oldTokenID))
		}
		exited, err = p.actions.AtomicExit(ctx, tokenID)
		if err != nil {
			reason := ReasonExitFailed
			if errors.Is(err, chain.ErrTxTimeout) {
				reason = ReasonTxTimeout
			}
			p.alerts.Send("Rebalance aborted during exit", err.Error())
			p.record(ctx, block, audit.TypeError, snap, runID, "exit failed: "+err.Error())
			return oldTokenID, abort(reason, err)
		}
		// The old position is gone; from here the persisted id must not
		// resurrect it.
		if err := p.store.Reset(); err != nil {
			log.Error("state reset failed after exit", zap.Error(err))
		}
	}

	// Step 4: the exit moved balances and possibly the price.
	snap, err = p.pool.Snapshot(ctx)
	if err != nil {
		return state.NoPosition, abort(ReasonNetwork, fmt.Errorf("pool refresh: %w", err))
	}

	// Step 5: derive the new range.
	price := snap.Token0Price().InexactFloat64()
	plan := ComputeRangePlan(PlanParams{
		CurrentTick:  snap.Tick,
		TickSpacing:  snap.TickSpacing,
		ATR:          atr,
		Price:        price,
		RSI:          rsi,
		SafetyFactor: p.cfg.SafetyFactor,
		MinWidth:     p.cfg.MinWidthTicks,
		MaxWidth:     p.cfg.MaxWidthTicks,
	})
	log.Info("range planned",
		zap.Int32("tick_lower", plan.TickLower),
		zap.Int32("tick_upper", plan.TickUpper),
		zap.Float64("skew", plan.Skew),
		zap.Int32("width_ticks", plan.WidthTicks),
		zap.Float64("atr", atr),
		zap.Float64("rsi", rsi),
	)

	// Step 6: swap toward the target split.
	swapped, err := p.actions.SmartSwap(ctx, snap, plan.TickLower, plan.TickUpper)
	if err != nil {
		reason := ReasonSwapFailed
		if errors.Is(err, chain.ErrTxTimeout) {
			reason = ReasonTxTimeout
		}
		p.alerts.Send("Rebalance aborted during swap", err.Error())
		p.record(ctx, block, audit.TypeError, snap, runID, "swap failed: "+err.Error())
		return state.NoPosition, abort(reason, err)
	}

	// Step 7: RPC sync sleep.
	if !swapped.Skipped {
		select {
		case <-ctx.Done():
			return state.NoPosition, ctx.Err()
		case <-time.After(rpcSyncSleep):
		}
	}

	// Step 8: mandatory refresh; the swap moved the price and mint
	// parameters sized against the pre-swap snapshot revert on their
	// slippage checks.
	snap, err = p.pool.Snapshot(ctx)
	if err != nil {
		return state.NoPosition, abort(ReasonNetwork, fmt.Errorf("post-swap pool refresh: %w", err))
	}

	// Step 9: mint on the re-refreshed snapshot.
	minted, err := p.actions.MintMaxLiquidity(ctx, snap, plan.TickLower, plan.TickUpper)
	if err != nil {
		reason := ReasonMintFailed
		if errors.Is(err, chain.ErrTxTimeout) {
			reason = ReasonTxTimeout
		}
		p.alerts.Send("Rebalance aborted during mint", err.Error())
		p.record(ctx, block, audit.TypeError, snap, runID, "mint failed: "+err.Error())
		return state.NoPosition, abort(reason, err)
	}
	if minted.TokenID == state.NoPosition {
		p.record(ctx, block, audit.TypeError, snap, runID, "mint skipped: no fundable amounts")
		return state.NoPosition, abort(ReasonMintFailed, errors.New("no fundable amounts"))
	}

	if err := p.store.Save(minted.TokenID); err != nil {
		// The mint succeeded; the orphan scan adopts it after restart.
		log.Error("persist minted position failed", zap.Error(err))
	}

	p.report(ctx, block, snap, runID, hadPosition, oldTokenID, exited, plan, minted, atr, rsi)
	return minted.TokenID, nil
}

func (p *Pipeline) fetchIndicators(ctx context.Context) (float64, float64, error) {
	type result struct {
		value float64
		err   error
	}
	atrCh := make(chan result, 1)
	rsiCh := make(chan result, 1)

	go func() {
		value, err := p.market.LatestATR(ctx)
		atrCh <- result{value, err}
	}()
	go func() {
		value, err := p.market.LatestRSI(ctx)
		rsiCh <- result{value, err}
	}()

	atr := <-atrCh
	rsi := <-rsiCh
	if atr.err != nil {
		return 0, 0, atr.err
	}
	if rsi.err != nil {
		return 0, 0, rsi.err
	}
	return atr.value, rsi.value, nil
}

func (p *Pipeline) record(ctx context.Context, block uint64, eventType audit.EventType, snap dex.PoolSnapshot, runID, details string) {
	if p.sink == nil {
		return
	}
	event := audit.Event{
		Time:    time.Now(),
		Block:   block,
		Type:    eventType,
		Price:   snap.Token0Price().InexactFloat64(),
		Tick:    snap.Tick,
		RunID:   runID,
		Details: details,
	}
	if err := p.sink.Record(ctx, event); err != nil {
		p.logger.Warn("audit record failed", zap.Error(err))
	}
}

func (p *Pipeline) report(ctx context.Context, block uint64, snap dex.PoolSnapshot, runID string, hadPosition bool, oldTokenID string, exited actions.ExitResult, plan RangePlan, minted actions.MintResult, atr, rsi float64) {
	eventType := audit.TypeEntry
	verb := "Entered"
	if hadPosition {
		eventType = audit.TypeRebalance
		verb = "Rebalanced into"
	}

	details := fmt.Sprintf("%s position %s range [%d, %d] skew %.1f atr %.2f rsi %.1f",
		verb, minted.TokenID, plan.TickLower, plan.TickUpper, plan.Skew, atr, rsi)
	p.record(ctx, block, eventType, snap, runID, details)

	body := fmt.Sprintf(
		"Block: %d\nPrice: %s\nNew position: %s\nRange: [%d, %d] (skew %.1f, width %d ticks)\n",
		block, snap.Token0Price().StringFixed(2), minted.TokenID,
		plan.TickLower, plan.TickUpper, plan.Skew, plan.WidthTicks)
	if hadPosition {
		body += fmt.Sprintf("Closed position: %s\nCollected: %s %s / %s %s\n",
			oldTokenID,
			exitedAmount(exited.Amount0), snap.Token0.Symbol,
			exitedAmount(exited.Amount1), snap.Token1.Symbol)
	}
	p.alerts.Send(fmt.Sprintf("%s position %s", verb, minted.TokenID), body)
}

func exitedAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
