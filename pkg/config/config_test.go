package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 30*time.Second, cfg.Engine.TickInterval)
	assert.Equal(t, 0.01, cfg.Strategy.KellyFraction)
	assert.Equal(t, 0.4, cfg.Treasury.DisbursePct)
	assert.Equal(t, 0.5, cfg.Treasury.MinWireUSD)
	assert.Less(t, cfg.Treasury.ReceiptTimeout, cfg.Engine.SettleTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Treasury.WireDropAfter)
	assert.Equal(t, "paper", cfg.Executor.Type)
	assert.Equal(t, "static", cfg.Peers.Type)
	assert.Equal(t, 90*time.Second, cfg.Peers.Window)
	assert.Equal(t, "noop", cfg.Recorder.Backend)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Len(t, cfg.Chains, len(DefaultChains()))
	assert.Equal(t, ChainlinkETHUSD, cfg.Oracle.Feeds["ETH"])

	base, ok := cfg.ChainByName("base")
	require.True(t, ok)
	assert.Equal(t, int64(8453), base.ChainID)
	_, ok = cfg.ChainByName("solana")
	assert.False(t, ok)
}

func TestParseVenuePoolDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
venues:
  - chain: base
    name: aerodrome
    pools:
      - pair: WETH/USDC
        address: "0xcDAC0d6c6C59727a65F871236188350531885C43"
`))
	require.NoError(t, err)
	require.Len(t, cfg.Venues, 1)
	pool := cfg.Venues[0].Pools[0]
	assert.Equal(t, "uniswap_v2", cfg.Venues[0].Kind)
	assert.Equal(t, 18, pool.BaseDecimals)
	assert.Equal(t, 6, pool.QuoteDecimals)
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad log level", "logger:\n  level: loud\n", "Level"},
		{"kelly above one", "strategy:\n  kelly_fraction: 2\n", "KellyFraction"},
		{"backoff inverted", "endpoints:\n  base_backoff: 10s\n  max_backoff: 1s\n", "max_backoff"},
		{"unknown venue chain", "venues:\n  - chain: solana\n    name: orca\n", "unknown chain"},
		{"http executor without url", "executor:\n  type: http\n", "executor.url"},
		{"websocket peers without url", "peers:\n  type: websocket\n", "peers.url"},
		{"kafka recorder without brokers", "recorder:\n  backend: kafka\n", "kafka.brokers"},
		{"live treasury without addresses", "treasury:\n  live: true\n", "owner_address"},
		{"receipt wait outlasts settle", "treasury:\n  receipt_timeout: 2m\n", "receipt_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLiveTreasuryNeedsKey(t *testing.T) {
	_, err := Parse([]byte(`
treasury:
  live: true
  owner_address: "0x00000000000000000000000000000000000000aa"
  contract_address: "0x00000000000000000000000000000000000000bb"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TREASURY_PRIVATE_KEY")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "environment: staging\n")
	t.Setenv("INITIAL_CAPITAL", "125.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("SWARM_PEERS_URL", "ws://mesh.local/peers")
	t.Setenv("ARBPULL_INSTANCE", "engine-a")
	t.Setenv("RECORDER_BACKEND", "sqlite")

	cfg, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 125.5, cfg.Treasury.InitialCapitalUSD)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "redis", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "websocket", cfg.Peers.Type)
	assert.Equal(t, "ws://mesh.local/peers", cfg.Peers.URL)
	assert.Equal(t, "engine-a", cfg.Instance)
	assert.Equal(t, "sqlite", cfg.Recorder.Backend)
}

func TestLoadWithEnvRejectsBadNumbers(t *testing.T) {
	path := writeConfig(t, "environment: staging\n")
	t.Setenv("INITIAL_CAPITAL", "lots")
	_, err := LoadWithEnv(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INITIAL_CAPITAL")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}
