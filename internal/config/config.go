// Package config merges flags, environment, and an optional config file
// into the agent's runtime settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"rangekeeper/internal/alert"
)

// Config holds every runtime setting of the agent.
type Config struct {
	RPCURLs    []string
	PrivateKey string
	Network    string

	Addresses Addresses

	CandleInterval string

	HardStopLossUSD        float64
	ATRSafetyFactor        float64
	BaseBufferFactor       float64
	ATRBufferScaling       float64
	CircuitBreakerFactor   float64
	RebalanceThresholdUSDC float64
	RebalanceThresholdWETH float64
	SlippageTolerance      float64
	TwapWindow             time.Duration
	MaxTwapDeviationTicks  int32
	MinWidthTicks          int32
	MaxWidthTicks          int32

	StatePath string
	AuditPath string
	PGDSN     string

	Email alert.Config

	LogLevel string
}

// Load merges config file, environment variables, and flags.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RANGEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// The operational env surface keeps its raw names.
	bindRaw := map[string]string{
		"rpc-url":       "RPC_URL",
		"private-key":   "PRIVATE_KEY",
		"network":       "NETWORK",
		"email-service": "EMAIL_SERVICE",
		"email-user":    "EMAIL_USER",
		"email-pass":    "EMAIL_PASS",
		"email-to":      "EMAIL_TO",
		"pg-dsn":        "PG_DSN",
	}
	for key, env := range bindRaw {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	v.SetDefault("network", "MAINNET")
	v.SetDefault("candle-interval", "15m")
	v.SetDefault("hard-stop-loss-usd", 150.0)
	v.SetDefault("atr-safety-factor", 4.0)
	v.SetDefault("base-buffer-factor", 0.2)
	v.SetDefault("atr-buffer-scaling", 0.05)
	v.SetDefault("circuit-breaker-factor", 3.0)
	v.SetDefault("rebalance-threshold-usdc", 10.0)
	v.SetDefault("rebalance-threshold-weth", 0.004)
	v.SetDefault("slippage-tolerance", 0.005)
	v.SetDefault("twap-window", 300*time.Second)
	v.SetDefault("max-twap-deviation-ticks", 200)
	v.SetDefault("min-width-ticks", 200)
	v.SetDefault("max-width-ticks", 4000)
	v.SetDefault("state-path", "./data/position.json")
	v.SetDefault("audit-path", "./data/audit.csv")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	network := strings.ToUpper(v.GetString("network"))
	addresses, err := AddressesForNetwork(network)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURLs:                splitAndClean(v.GetString("rpc-url")),
		PrivateKey:             strings.Trim(strings.TrimSpace(v.GetString("private-key")), `"'`),
		Network:                network,
		Addresses:              addresses,
		CandleInterval:         v.GetString("candle-interval"),
		HardStopLossUSD:        v.GetFloat64("hard-stop-loss-usd"),
		ATRSafetyFactor:        v.GetFloat64("atr-safety-factor"),
		BaseBufferFactor:       v.GetFloat64("base-buffer-factor"),
		ATRBufferScaling:       v.GetFloat64("atr-buffer-scaling"),
		CircuitBreakerFactor:   v.GetFloat64("circuit-breaker-factor"),
		RebalanceThresholdUSDC: v.GetFloat64("rebalance-threshold-usdc"),
		RebalanceThresholdWETH: v.GetFloat64("rebalance-threshold-weth"),
		SlippageTolerance:      v.GetFloat64("slippage-tolerance"),
		TwapWindow:             v.GetDuration("twap-window"),
		MaxTwapDeviationTicks:  int32(v.GetInt("max-twap-deviation-ticks")),
		MinWidthTicks:          int32(v.GetInt("min-width-ticks")),
		MaxWidthTicks:          int32(v.GetInt("max-width-ticks")),
		StatePath:              v.GetString("state-path"),
		AuditPath:              v.GetString("audit-path"),
		PGDSN:                  v.GetString("pg-dsn"),
		Email: alert.Config{
			Service:  v.GetString("email-service"),
			User:     v.GetString("email-user"),
			Password: v.GetString("email-pass"),
			To:       v.GetString("email-to"),
		},
		LogLevel: v.GetString("log-level"),
	}

	if len(cfg.RPCURLs) == 0 {
		return Config{}, fmt.Errorf("RPC_URL is required (comma-separated, failover order)")
	}
	if cfg.PrivateKey == "" {
		return Config{}, fmt.Errorf("PRIVATE_KEY is required")
	}

	return cfg, nil
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
