package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBDESK_* environment variable overrides, and
// returns the final Config. The result has NOT been validated; callers should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBDESK_* environment variables and
// overwrites the corresponding fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "ARBDESK_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "ARBDESK_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ARBDESK_WALLET_KEY_PASSWORD")
	setInt(&cfg.Wallet.ChainID, "ARBDESK_WALLET_CHAIN_ID")

	setStr(&cfg.Polymarket.ClobHost, "ARBDESK_POLYMARKET_CLOB_HOST")

	setStr(&cfg.Kalshi.BaseURL, "ARBDESK_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.ApiKey, "ARBDESK_KALSHI_API_KEY")

	setStr(&cfg.Postgres.DSN, "ARBDESK_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBDESK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBDESK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBDESK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBDESK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBDESK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBDESK_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBDESK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBDESK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBDESK_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "ARBDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBDESK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBDESK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBDESK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBDESK_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "ARBDESK_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBDESK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBDESK_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBDESK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBDESK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBDESK_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "ARBDESK_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Trading.PaperTrading, "ARBDESK_TRADING_PAPER_TRADING")
	setFloat64(&cfg.Trading.MaxPositionUSD, "ARBDESK_TRADING_MAX_POSITION_USD")
	setFloat64(&cfg.Trading.MinConfidence, "ARBDESK_TRADING_MIN_CONFIDENCE")
	setStr(&cfg.Trading.MinTier, "ARBDESK_TRADING_MIN_TIER")
	setInt(&cfg.Trading.OrdersPerSecond, "ARBDESK_TRADING_ORDERS_PER_SECOND")
	setDuration(&cfg.Trading.PollInterval, "ARBDESK_TRADING_POLL_INTERVAL")
	setDuration(&cfg.Trading.PollTimeout, "ARBDESK_TRADING_POLL_TIMEOUT")

	setDuration(&cfg.Realtime.PriceThrottle, "ARBDESK_REALTIME_PRICE_THROTTLE")
	setDuration(&cfg.Realtime.GuestIdleWindow, "ARBDESK_REALTIME_GUEST_IDLE_WINDOW")
	setDuration(&cfg.Realtime.SweepInterval, "ARBDESK_REALTIME_SWEEP_INTERVAL")

	setInt(&cfg.Server.Port, "ARBDESK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBDESK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBDESK_SERVER_API_KEY")

	setStr(&cfg.Notify.TelegramToken, "ARBDESK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBDESK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBDESK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBDESK_NOTIFY_EVENTS")

	setStr(&cfg.LogLevel, "ARBDESK_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
