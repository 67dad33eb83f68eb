package config

import (
	"reflect"
	"testing"
)

func TestSplitAndClean(t *testing.T) {
	got := splitAndClean("wss://a.example , https://b.example,, https://c.example ")
	want := []string{"wss://a.example", "https://b.example", "https://c.example"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitAndClean mismatch: %v != %v", got, want)
	}

	if got := splitAndClean(""); got != nil {
		t.Fatalf("empty input should yield nil, got %v", got)
	}
}

func TestAddressesForNetwork(t *testing.T) {
	mainnet, err := AddressesForNetwork("MAINNET")
	if err != nil {
		t.Fatalf("mainnet: %v", err)
	}
	testnet, err := AddressesForNetwork("TESTNET")
	if err != nil {
		t.Fatalf("testnet: %v", err)
	}
	if mainnet.Pool == testnet.Pool {
		t.Fatalf("mainnet and testnet tables must differ")
	}

	if _, err := AddressesForNetwork("BOGUS"); err == nil {
		t.Fatalf("expected error for unknown network")
	}
}

func TestLoadRequiresRPCAndKey(t *testing.T) {
	t.Setenv("RPC_URL", "")
	t.Setenv("PRIVATE_KEY", "")

	if _, err := Load("", nil); err == nil {
		t.Fatalf("expected error without RPC_URL")
	}

	t.Setenv("RPC_URL", "wss://rpc.example")
	if _, err := Load("", nil); err == nil {
		t.Fatalf("expected error without PRIVATE_KEY")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RPC_URL", "wss://one.example,https://two.example")
	t.Setenv("PRIVATE_KEY", `"0xabc123"`)
	t.Setenv("NETWORK", "testnet")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.RPCURLs) != 2 {
		t.Fatalf("rpc ring size = %d, want 2", len(cfg.RPCURLs))
	}
	if cfg.PrivateKey != "0xabc123" {
		t.Fatalf("private key not unquoted: %q", cfg.PrivateKey)
	}
	if cfg.Network != "TESTNET" {
		t.Fatalf("network = %q, want TESTNET", cfg.Network)
	}
	if cfg.CandleInterval != "15m" {
		t.Fatalf("default candle interval = %q", cfg.CandleInterval)
	}
	if cfg.SlippageTolerance != 0.005 {
		t.Fatalf("default slippage = %f", cfg.SlippageTolerance)
	}
}
