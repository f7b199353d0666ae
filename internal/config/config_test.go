package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[trading]
paper_trading = false
max_position_usd = 25000.0
poll_timeout = "10s"

[kalshi]
api_key = "k-123"

[server]
port = 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Trading.PaperTrading)
	assert.Equal(t, 25000.0, cfg.Trading.MaxPositionUSD)
	assert.Equal(t, 10*time.Second, cfg.Trading.PollTimeout.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Untouched fields keep their defaults.
	assert.Equal(t, 0.6, cfg.Trading.MinConfidence)
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobHost)
	assert.Equal(t, 500*time.Millisecond, cfg.Trading.PollInterval.Duration)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[redis]
addr = "redis-from-file:6379"

[trading]
max_position_usd = 1000.0
`)

	t.Setenv("ARBDESK_REDIS_ADDR", "redis-from-env:6380")
	t.Setenv("ARBDESK_TRADING_MAX_POSITION_USD", "5000")
	t.Setenv("ARBDESK_TRADING_PAPER_TRADING", "false")
	t.Setenv("ARBDESK_REALTIME_PRICE_THROTTLE", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis-from-env:6380", cfg.Redis.Addr)
	assert.Equal(t, 5000.0, cfg.Trading.MaxPositionUSD)
	assert.False(t, cfg.Trading.PaperTrading)
	assert.Equal(t, 250*time.Millisecond, cfg.Realtime.PriceThrottle.Duration)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults pass", func(c *Config) {}, ""},
		{"negative size cap", func(c *Config) { c.Trading.MaxPositionUSD = -1 }, "max_position_usd"},
		{"confidence above one", func(c *Config) { c.Trading.MinConfidence = 1.5 }, "min_confidence"},
		{"zero poll timeout", func(c *Config) { c.Trading.PollTimeout = duration{} }, "poll"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"live without key", func(c *Config) { c.Trading.PaperTrading = false }, "wallet"},
		{
			"live without kalshi key",
			func(c *Config) {
				c.Trading.PaperTrading = false
				c.Wallet.PrivateKey = "abc123"
			},
			"kalshi.api_key",
		},
		{"s3 without bucket", func(c *Config) { c.S3.Enabled = true }, "s3.bucket"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
