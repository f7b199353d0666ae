// Package config defines the top-level configuration for arbdesk and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBDESK_* environment
// variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Trading    TradingConfig    `toml:"trading"`
	Realtime   RealtimeConfig   `toml:"realtime"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the operator signing key used for the primary venue.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ChainID          int    `toml:"chain_id"`
}

// PolymarketConfig holds the primary venue API endpoint.
type PolymarketConfig struct {
	ClobHost string `toml:"clob_host"`
}

// KalshiConfig holds the secondary venue endpoint and its static API key.
type KalshiConfig struct {
	BaseURL string `toml:"base_url"`
	ApiKey  string `toml:"api_key"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archive
// exporter.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TradingConfig holds the admission gate parameters and execution behavior.
type TradingConfig struct {
	PaperTrading    bool     `toml:"paper_trading"`
	MaxPositionUSD  float64  `toml:"max_position_usd"`
	MinConfidence   float64  `toml:"min_confidence"`
	MinTier         string   `toml:"min_tier"` // tier required for automated trading
	OrdersPerSecond int      `toml:"orders_per_second"`
	PollInterval    duration `toml:"poll_interval"`
	PollTimeout     duration `toml:"poll_timeout"`
}

// RealtimeConfig holds the websocket fan-out parameters.
type RealtimeConfig struct {
	PriceThrottle   duration `toml:"price_throttle"`
	GuestIdleWindow duration `toml:"guest_idle_window"`
	SweepInterval   duration `toml:"sweep_interval"`
}

// ServerConfig holds the HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds operator notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration for TOML decoding of strings like "500ms".
type duration struct {
	time.Duration
}

// UnmarshalText implements toml decoding for duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration baseline.
func Defaults() Config {
	return Config{
		Wallet: WalletConfig{
			ChainID: 137,
		},
		Polymarket: PolymarketConfig{
			ClobHost: "https://clob.polymarket.com",
		},
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Postgres: PostgresConfig{
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Trading: TradingConfig{
			PaperTrading:    true,
			MaxPositionUSD:  100_000,
			MinConfidence:   0.6,
			MinTier:         "pro",
			OrdersPerSecond: 10,
			PollInterval:    duration{500 * time.Millisecond},
			PollTimeout:     duration{30 * time.Second},
		},
		Realtime: RealtimeConfig{
			PriceThrottle:   duration{500 * time.Millisecond},
			GuestIdleWindow: duration{10 * time.Minute},
			SweepInterval:   duration{time.Minute},
		},
		Server: ServerConfig{
			Port: 8080,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for internally inconsistent or missing
// values. It is called after Load.
func (c *Config) Validate() error {
	if c.Trading.MaxPositionUSD <= 0 {
		return fmt.Errorf("config: trading.max_position_usd must be positive")
	}
	if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 1 {
		return fmt.Errorf("config: trading.min_confidence must be in [0,1]")
	}
	if c.Trading.PollInterval.Duration <= 0 || c.Trading.PollTimeout.Duration <= 0 {
		return fmt.Errorf("config: trading poll interval and timeout must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	if !c.Trading.PaperTrading {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			return fmt.Errorf("config: live trading requires wallet.private_key or wallet.encrypted_key_path")
		}
		if c.Kalshi.ApiKey == "" {
			return fmt.Errorf("config: live trading requires kalshi.api_key")
		}
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("config: s3.bucket required when s3.enabled")
	}
	return nil
}
