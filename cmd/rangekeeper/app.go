package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rangekeeper/internal/actions"
	"rangekeeper/internal/alert"
	"rangekeeper/internal/audit"
	"rangekeeper/internal/chain"
	"rangekeeper/internal/config"
	"rangekeeper/internal/dex"
	"rangekeeper/internal/market"
	"rangekeeper/internal/state"
	"rangekeeper/internal/strategy"
)

// app holds the wired components shared by the run and exit commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	supervisor *chain.Supervisor
	wallet     *chain.Wallet
	pool       *dex.Pool
	npm        *dex.PositionManager
	store      *state.Store
	lib        *actions.Library
	sink       audit.Sink
	alerts     alert.Notifier
	loop       *strategy.Loop

	volatile dex.TokenRef
	stable   dex.TokenRef
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	alerts := alert.New(cfg.Email, logger)

	supervisor, err := chain.NewSupervisor(ctx, cfg.RPCURLs, logger, alerts)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	chainID, err := supervisor.Client().ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}

	wallet, err := chain.NewWallet(cfg.PrivateKey, chainID, supervisor.Client())
	if err != nil {
		return nil, err
	}

	pool, err := dex.NewPool(ctx, supervisor, cfg.Addresses.Pool)
	if err != nil {
		return nil, fmt.Errorf("bind pool: %w", err)
	}
	npm := dex.NewPositionManager(cfg.Addresses.PositionManager, supervisor)
	router := dex.NewRouter(cfg.Addresses.SwapRouter, supervisor)
	quoter := dex.NewQuoter(cfg.Addresses.Quoter, supervisor)

	volatile, stable, err := classifyTokens(pool, cfg.Addresses)
	if err != nil {
		return nil, err
	}

	store := state.NewStore(cfg.StatePath)
	marketClient := market.NewClient(cfg.CandleInterval, logger)

	csvSink, err := audit.NewCSVSink(cfg.AuditPath)
	if err != nil {
		return nil, err
	}
	var sink audit.Sink = csvSink
	if cfg.PGDSN != "" {
		pgSink, err := audit.NewPostgresSink(ctx, cfg.PGDSN)
		if err != nil {
			csvSink.Close()
			return nil, fmt.Errorf("audit postgres: %w", err)
		}
		sink = audit.NewMultiSink(csvSink, pgSink)
	}

	lib := actions.NewLibrary(actions.Params{
		Logger:   logger,
		Wallet:   wallet,
		Source:   supervisor,
		NPM:      npm,
		Router:   router,
		Quoter:   quoter,
		Slippage: decimal.NewFromFloat(cfg.SlippageTolerance),
		DustThresholds: map[common.Address]decimal.Decimal{
			stable.Address:   decimal.NewFromFloat(cfg.RebalanceThresholdUSDC),
			volatile.Address: decimal.NewFromFloat(cfg.RebalanceThresholdWETH),
		},
	})

	pipeline := strategy.NewPipeline(strategy.PipelineConfig{
		TwapWindow:            cfg.TwapWindow,
		MaxTwapDeviationTicks: cfg.MaxTwapDeviationTicks,
		SafetyFactor:          cfg.ATRSafetyFactor,
		MinWidthTicks:         cfg.MinWidthTicks,
		MaxWidthTicks:         cfg.MaxWidthTicks,
	}, logger, pool, marketClient, lib, store, sink, alerts)

	loop := strategy.NewLoop(strategy.LoopParams{
		Config: strategy.LoopConfig{
			HardStopLossUSD:      cfg.HardStopLossUSD,
			CircuitBreakerFactor: cfg.CircuitBreakerFactor,
			BaseBufferFactor:     cfg.BaseBufferFactor,
			ATRBufferScaling:     cfg.ATRBufferScaling,
		},
		Logger:     logger,
		Supervisor: supervisor,
		Wallet:     wallet,
		Store:      store,
		Market:     marketClient,
		Pool:       pool,
		NPM:        npm,
		Actions:    lib,
		Pipeline:   pipeline,
		Sink:       sink,
		Alerts:     alerts,
		Volatile:   volatile,
		Stable:     stable,
	})

	return &app{
		cfg:        cfg,
		logger:     logger,
		supervisor: supervisor,
		wallet:     wallet,
		pool:       pool,
		npm:        npm,
		store:      store,
		lib:        lib,
		sink:       sink,
		alerts:     alerts,
		loop:       loop,
		volatile:   volatile,
		stable:     stable,
	}, nil
}

// classifyTokens resolves which pool token is the volatile asset and
// which the stable, from the configured address table.
func classifyTokens(pool *dex.Pool, addresses config.Addresses) (volatile, stable dex.TokenRef, err error) {
	token0, token1 := pool.Token0(), pool.Token1()

	switch {
	case token0.Address == addresses.WETH && token1.Address == addresses.USDC:
		return token0, token1, nil
	case token0.Address == addresses.USDC && token1.Address == addresses.WETH:
		return token1, token0, nil
	default:
		return dex.TokenRef{}, dex.TokenRef{}, fmt.Errorf(
			"pool tokens %s/%s do not match the configured WETH/USDC pair",
			token0.Address.Hex(), token1.Address.Hex())
	}
}

func (a *app) ManualExit(ctx context.Context) error {
	return strategy.ManualExit(ctx, strategy.ManualExitParams{
		Logger:   a.logger,
		Store:    a.store,
		Pool:     a.pool,
		Actions:  a.lib,
		Sink:     a.sink,
		Volatile: a.volatile,
		Stable:   a.stable,
	})
}

func (a *app) Close() {
	if a.sink != nil {
		a.sink.Close()
	}
	if a.supervisor != nil {
		a.supervisor.Client().Close()
	}
}
