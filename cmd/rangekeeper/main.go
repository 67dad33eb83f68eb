package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rangekeeper/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "rangekeeper",
		Short:        "Autonomous concentrated-liquidity range keeper",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the strategy loop",
		RunE:  runStrategy,
	}
	addCommonFlags(runCmd)
	root.AddCommand(runCmd)

	exitCmd := &cobra.Command{
		Use:   "exit",
		Short: "Close any active position, sweep to stable, and reset state",
		RunE:  runManualExit,
	}
	addCommonFlags(exitCmd)
	root.AddCommand(exitCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc-url", "", "comma-separated RPC endpoints, failover order")
	cmd.Flags().String("network", "", "address table (MAINNET or TESTNET)")
	cmd.Flags().String("state-path", "", "persisted position state file")
	cmd.Flags().String("audit-path", "", "CSV audit log path")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for audit history")
	cmd.Flags().String("candle-interval", "", "analytics candle granularity")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func runStrategy(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("strategy loop start",
		zap.String("network", cfg.Network),
		zap.Int("endpoints", len(cfg.RPCURLs)),
		zap.String("pool", cfg.Addresses.Pool.Hex()),
		zap.String("wallet", app.wallet.Address().Hex()),
		zap.String("candle_interval", cfg.CandleInterval),
	)

	return app.loop.Run(ctx)
}

func runManualExit(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("manual exit start", zap.String("wallet", app.wallet.Address().Hex()))
	if err := app.ManualExit(ctx); err != nil {
		return fmt.Errorf("manual exit: %w", err)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
