package strategy

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"rangekeeper/internal/actions"
	"rangekeeper/internal/audit"
	"rangekeeper/internal/chain"
	"rangekeeper/internal/dex"
	"rangekeeper/internal/market"
	"rangekeeper/internal/state"
)

const (
	// minRunInterval drops block events that arrive while the previous
	// run is still fresh.
	minRunInterval = 3 * time.Second
	// atrCacheTTL bounds how often the hysteresis buffer refreshes its
	// volatility input.
	atrCacheTTL = 5 * time.Minute
	// blockPollInterval drives the fallback block feed on http endpoints.
	blockPollInterval = 3 * time.Second
	// safeModeLogEvery throttles the safe-mode heartbeat log.
	safeModeLogEvery = 100
)

// LoopConfig holds the control-loop thresholds.
type LoopConfig struct {
	HardStopLossUSD      float64
	CircuitBreakerFactor float64
	BaseBufferFactor     float64
	ATRBufferScaling     float64
}

// Loop is the block-triggered state machine that owns the position. All
// mutable state lives here and is touched only inside the block handler.
type Loop struct {
	cfg    LoopConfig
	logger *zap.Logger

	supervisor *chain.Supervisor
	wallet     *chain.Wallet
	store      *state.Store
	market     *market.Client
	pool       *dex.Pool
	npm        *dex.PositionManager
	actions    *actions.Library
	pipeline   *Pipeline
	sink       audit.Sink
	alerts     chain.Alerter

	volatile dex.TokenRef
	stable   dex.TokenRef

	safeMode       bool
	safeModeBlocks uint64
	lastRun        time.Time
	cachedATR      float64
	lastATRUpdate  time.Time

	switchCh chan struct{}
}

// LoopParams wires a Loop.
type LoopParams struct {
	Config     LoopConfig
	Logger     *zap.Logger
	Supervisor *chain.Supervisor
	Wallet     *chain.Wallet
	Store      *state.Store
	Market     *market.Client
	Pool       *dex.Pool
	NPM        *dex.PositionManager
	Actions    *actions.Library
	Pipeline   *Pipeline
	Sink       audit.Sink
	Alerts     chain.Alerter
	Volatile   dex.TokenRef
	Stable     dex.TokenRef
}

func NewLoop(p LoopParams) *Loop {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		cfg:        p.Config,
		logger:     logger,
		supervisor: p.Supervisor,
		wallet:     p.Wallet,
		store:      p.Store,
		market:     p.Market,
		pool:       p.Pool,
		npm:        p.NPM,
		actions:    p.Actions,
		pipeline:   p.Pipeline,
		sink:       p.Sink,
		alerts:     p.Alerts,
		volatile:   p.Volatile,
		stable:     p.Stable,
		switchCh:   make(chan struct{}, 1),
	}
}

// Run consumes block events until the context ends. Endpoint rotation
// rebinds the wallet and re-subscribes the block feed.
func (l *Loop) Run(ctx context.Context) error {
	l.supervisor.OnSwitch(func() {
		l.wallet.WithClient(l.supervisor.Client())
		select {
		case l.switchCh <- struct{}{}:
		default:
		}
	})

	l.reconcileStartup(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		client := l.supervisor.Client()
		var err error
		if client.IsWebSocket() {
			err = l.consumeHeads(ctx, client)
		} else {
			err = l.pollBlocks(ctx, client)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.logger.Warn("block feed interrupted", zap.Error(err))
			if client.IsWebSocket() {
				// A failed or closed head subscription means the socket
				// itself is unhealthy.
				l.supervisor.TriggerRotate(ctx, err.Error())
			} else {
				l.supervisor.ReportInstability(ctx, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

// reconcileStartup adopts an orphaned position before the first block.
func (l *Loop) reconcileStartup(ctx context.Context) {
	tokenID, found, err := l.store.ScanOrphans(ctx, positionReader{l.npm}, l.wallet.Address())
	if err != nil {
		l.logger.Warn("startup orphan scan failed", zap.Error(err))
		return
	}
	if found {
		l.logger.Info("adopted orphan position", zap.String("token_id", tokenID))
		l.alerts.Send("Adopted orphan position", fmt.Sprintf("Recovered position %s from chain after restart.", tokenID))
	}
}

func (l *Loop) consumeHeads(ctx context.Context, client *chain.Client) error {
	heads := make(chan *types.Header, 16)
	sub, err := client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return fmt.Errorf("subscribe heads: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.switchCh:
			// The old subscription is dead after rotation.
			return nil
		case err := <-sub.Err():
			if err == nil {
				return nil
			}
			return fmt.Errorf("head subscription: %w", err)
		case head := <-heads:
			if head != nil {
				l.handleBlock(ctx, head.Number.Uint64())
			}
			// Heads that arrived during the run are dropped, not queued.
			for drained := false; !drained; {
				select {
				case <-heads:
				default:
					drained = true
				}
			}
		}
	}
}

func (l *Loop) pollBlocks(ctx context.Context, client *chain.Client) error {
	ticker := time.NewTicker(blockPollInterval)
	defer ticker.Stop()

	var lastSeen uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.switchCh:
			return nil
		case <-ticker.C:
			block, err := client.LatestBlockNumber(ctx)
			if err != nil {
				return fmt.Errorf("poll block number: %w", err)
			}
			if block > lastSeen {
				lastSeen = block
				l.handleBlock(ctx, block)
			}
		}
	}
}

// handleBlock is the single-flight block handler. The feed goroutine is
// the only caller; events arriving during a run are dropped, not queued.
func (l *Loop) handleBlock(ctx context.Context, block uint64) {
	if time.Since(l.lastRun) < minRunInterval {
		return
	}
	l.lastRun = time.Now()

	if l.safeMode {
		l.safeModeBlocks++
		if l.safeModeBlocks%safeModeLogEvery == 0 {
			l.logger.Info("safe mode active, observing only",
				zap.Uint64("block", block),
				zap.Uint64("blocks_since_latch", l.safeModeBlocks),
			)
		}
		return
	}

	st := l.store.Load()

	snap, err := l.pool.Snapshot(ctx)
	if err != nil {
		l.logger.Warn("pool snapshot failed", zap.Uint64("block", block), zap.Error(err))
		l.supervisor.ReportInstability(ctx, err)
		return
	}

	var position *dex.Position
	if st.TokenID != state.NoPosition {
		tokenID, ok := new(big.Int).SetString(st.TokenID, 10)
		if !ok {
			// Corrupt state reads as no position; the orphan scan
			// reconciles.
			st.TokenID = state.NoPosition
		} else {
			pos, err := l.npm.Positions(ctx, tokenID)
			switch {
			case err == nil:
				position = &pos
			case chain.IsUnstable(err):
				l.logger.Warn("position read failed", zap.Error(err))
				l.supervisor.ReportInstability(ctx, err)
				return
			default:
				// The NFT no longer resolves: burned or transferred away.
				l.logger.Warn("recorded position not on chain", zap.String("token_id", st.TokenID), zap.Error(err))
				l.handleExternallyClosed(ctx, block, snap)
				return
			}
		}
	}

	equity, err := ComputeEquity(ctx, l.supervisor, l.npm, l.wallet.Address(), snap, position)
	if err != nil {
		l.logger.Warn("equity snapshot failed", zap.Uint64("block", block), zap.Error(err))
		l.supervisor.ReportInstability(ctx, err)
		return
	}

	l.record(ctx, block, audit.TypeMetrics, snap, fmt.Sprintf(
		"equity %s; wallet %s/%s; position %s/%s; fees %s/%s",
		equity.Total.StringFixed(2),
		equity.Wallet0.String(), equity.Wallet1.String(),
		equity.Position0.String(), equity.Position1.String(),
		equity.Fees0.String(), equity.Fees1.String(),
	))

	// Hard equity stop latches safe mode; only an operator restart
	// after manual remediation resumes trading.
	if equity.Total.InexactFloat64() < l.cfg.HardStopLossUSD {
		l.triggerHardStop(ctx, block, snap, position, equity)
		return
	}

	if position == nil {
		l.runPipeline(ctx, block, state.NoPosition)
		return
	}

	if position.Liquidity.Sign() == 0 {
		l.handleExternallyClosed(ctx, block, snap)
		return
	}

	l.managePosition(ctx, block, snap, position)
}

// circuitBreakerTripped reports whether the price has diverged from the
// position center beyond the deviation factor times the width.
func circuitBreakerTripped(tick, tickLower, tickUpper int32, factor float64) bool {
	width := tickUpper - tickLower
	center := (tickLower + tickUpper) / 2
	distance := tick - center
	if distance < 0 {
		distance = -distance
	}
	return float64(distance) > float64(width)*factor
}

// outsideBufferedRange reports whether the price has left the position
// range by more than the hysteresis buffer.
func outsideBufferedRange(tick, tickLower, tickUpper, bufferTicks int32) bool {
	return tick < tickLower-bufferTicks || tick > tickUpper+bufferTicks
}

func (l *Loop) managePosition(ctx context.Context, block uint64, snap dex.PoolSnapshot, position *dex.Position) {
	width := position.TickUpper - position.TickLower
	center := (position.TickLower + position.TickUpper) / 2
	distance := snap.Tick - center
	if distance < 0 {
		distance = -distance
	}

	// Circuit breaker: a runaway price exits to stable without latching
	// safe mode, so the loop can re-enter once conditions stabilize.
	if circuitBreakerTripped(snap.Tick, position.TickLower, position.TickUpper, l.cfg.CircuitBreakerFactor) {
		msg := fmt.Sprintf("tick %d is %d ticks from center %d (width %d, factor %.1f)",
			snap.Tick, distance, center, width, l.cfg.CircuitBreakerFactor)
		l.logger.Warn("circuit breaker tripped", zap.String("detail", msg))
		l.alerts.Send("Circuit breaker: exiting to stable", msg)

		l.exitAndSweep(ctx, snap, position.TokenID)
		l.record(ctx, block, audit.TypeStopLoss, snap, "circuit breaker: "+msg)
		return
	}

	// Dynamic hysteresis: the exit buffer widens with volatility.
	if time.Since(l.lastATRUpdate) > atrCacheTTL {
		atr, err := l.market.LatestATR(ctx)
		if err != nil {
			l.logger.Warn("atr refresh failed, keeping cached value", zap.Error(err))
		} else {
			l.cachedATR = atr
			l.lastATRUpdate = time.Now()
		}
	}

	price := snap.Token0Price().InexactFloat64()
	volPercent := 0.0
	if price > 0 && l.cachedATR > 0 {
		volPercent = l.cachedATR / price * 100
	}
	bufferFactor := BufferFactor(l.cfg.BaseBufferFactor, volPercent, l.cfg.ATRBufferScaling)
	bufferTicks := int32(float64(width) * bufferFactor)

	if outsideBufferedRange(snap.Tick, position.TickLower, position.TickUpper, bufferTicks) {
		l.logger.Info("price left buffered range, rebalancing",
			zap.Int32("tick", snap.Tick),
			zap.Int32("tick_lower", position.TickLower),
			zap.Int32("tick_upper", position.TickUpper),
			zap.Int32("buffer_ticks", bufferTicks),
		)
		l.runPipeline(ctx, block, position.TokenID.String())
		return
	}

	l.logger.Debug("holding in range",
		zap.Uint64("block", block),
		zap.Int32("tick", snap.Tick),
		zap.Int32("distance", distance),
		zap.Int32("buffer_ticks", bufferTicks),
	)
}

func (l *Loop) runPipeline(ctx context.Context, block uint64, oldTokenID string) {
	if _, err := l.pipeline.Execute(ctx, block, oldTokenID); err != nil {
		// Pipeline aborts are logged and audited inside the pipeline;
		// the loop retries on a later block once conditions clear.
		l.logger.Warn("rebalance aborted", zap.Uint64("block", block), zap.Error(err))
	}
}

// triggerHardStop liquidates everything and latches safe mode.
func (l *Loop) triggerHardStop(ctx context.Context, block uint64, snap dex.PoolSnapshot, position *dex.Position, equity Equity) {
	msg := fmt.Sprintf("total equity %s below hard stop %.2f", equity.Total.StringFixed(2), l.cfg.HardStopLossUSD)
	l.logger.Error("hard equity stop", zap.Uint64("block", block), zap.String("detail", msg))

	if position != nil {
		l.exitAndSweep(ctx, snap, position.TokenID)
	}

	l.safeMode = true
	l.safeModeBlocks = 0
	l.alerts.Send("HARD EQUITY STOP: safe mode latched", msg+"\nManual remediation and restart required.")
	l.record(ctx, block, audit.TypeStopLoss, snap, "hard equity stop: "+msg)
}

// exitAndSweep closes the position and converts everything to stable,
// tolerating individual failures, then resets persisted state.
func (l *Loop) exitAndSweep(ctx context.Context, snap dex.PoolSnapshot, tokenID *big.Int) {
	if tokenID != nil {
		if _, err := l.actions.AtomicExit(ctx, tokenID); err != nil {
			l.logger.Error("emergency exit failed", zap.Error(err))
			l.alerts.Send("Emergency exit failed", err.Error())
		}
	}
	if _, err := l.actions.SweepToStable(ctx, snap, l.volatile, l.stable); err != nil {
		l.logger.Error("sweep to stable failed", zap.Error(err))
		l.alerts.Send("Sweep to stable failed", err.Error())
	}
	if err := l.store.Reset(); err != nil {
		l.logger.Error("state reset failed", zap.Error(err))
	}
}

// handleExternallyClosed reacts to a position that disappeared without
// this process closing it: adopt a replacement if one exists, otherwise
// reset state and let the next block attempt entry.
func (l *Loop) handleExternallyClosed(ctx context.Context, block uint64, snap dex.PoolSnapshot) {
	if err := l.store.Reset(); err != nil {
		l.logger.Error("state reset failed", zap.Error(err))
		return
	}

	tokenID, found, err := l.store.ScanOrphans(ctx, positionReader{l.npm}, l.wallet.Address())
	if err != nil {
		l.logger.Warn("orphan scan failed", zap.Error(err))
		return
	}
	if found {
		l.logger.Info("adopted replacement position", zap.String("token_id", tokenID))
		l.record(ctx, block, audit.TypeInfo, snap, "adopted orphan position "+tokenID)
		return
	}
	l.record(ctx, block, audit.TypeInfo, snap, "recorded position externally closed; state reset")
}

func (l *Loop) record(ctx context.Context, block uint64, eventType audit.EventType, snap dex.PoolSnapshot, details string) {
	if l.sink == nil {
		return
	}
	event := audit.Event{
		Time:    time.Now(),
		Block:   block,
		Type:    eventType,
		Price:   snap.Token0Price().InexactFloat64(),
		Tick:    snap.Tick,
		Details: details,
	}
	if err := l.sink.Record(ctx, event); err != nil {
		l.logger.Warn("audit record failed", zap.Error(err))
	}
}

// SafeMode reports whether the loop has latched its terminal
// observation-only mode.
func (l *Loop) SafeMode() bool { return l.safeMode }

// positionReader adapts the position manager to the orphan-scan surface.
type positionReader struct {
	npm *dex.PositionManager
}

func (r positionReader) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return r.npm.BalanceOf(ctx, owner)
}

func (r positionReader) TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error) {
	return r.npm.TokenOfOwnerByIndex(ctx, owner, index)
}

func (r positionReader) PositionLiquidity(ctx context.Context, tokenID *big.Int) (*big.Int, error) {
	position, err := r.npm.Positions(ctx, tokenID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "invalid token") {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	return position.Liquidity, nil
}
