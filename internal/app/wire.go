package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	s3blob "github.com/quantfold/arbdesk/internal/blob/s3"
	"github.com/quantfold/arbdesk/internal/cache/redis"
	"github.com/quantfold/arbdesk/internal/config"
	"github.com/quantfold/arbdesk/internal/crypto"
	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/notify"
	"github.com/quantfold/arbdesk/internal/store/postgres"
	"github.com/quantfold/arbdesk/internal/transport"
	"github.com/quantfold/arbdesk/internal/venue"
	"github.com/quantfold/arbdesk/internal/venue/kalshi"
	"github.com/quantfold/arbdesk/internal/venue/polymarket"
)

// Dependencies bundles every concrete collaborator the application needs. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	TradeStore domain.TradeStore
	OrderStore domain.OrderStore
	EventStore domain.EmergencyEventStore
	AuditStore domain.AuditStore

	// Redis-backed collaborators
	FlagStore   domain.FlagStore
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus
	Plans       domain.PlanSource
	Regimes     domain.RegimeSource

	// Venue execution
	Executors venue.Set

	// Object storage (nil when disabled)
	Blob *s3blob.Client

	// Notifications
	Notifier *notify.Notifier

	// Raw clients for health checks
	Postgres *postgres.Client
	Redis    *redis.Client
}

// Wire constructs all concrete dependencies from the configuration. The
// returned cleanup releases resources in reverse construction order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Postgres = pgClient
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.EventStore = postgres.NewEmergencyEventStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.FlagStore = redis.NewFlagStore(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Plans = redis.NewPlanSource(redisClient)
	deps.Regimes = redis.NewRegimeSource(redisClient)

	// --- Venue executors ---
	deps.Executors, err = wireExecutors(cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: executors: %w", err)
	}

	// --- S3 object storage ---
	if cfg.S3.Enabled {
		blobClient, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blob = blobClient
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// wireExecutors builds the venue executor set. Paper trading replaces both
// venues with synthetic executors; live trading requires the operator signing
// key for Polymarket and the static API key for Kalshi.
func wireExecutors(cfg *config.Config) (venue.Set, error) {
	if cfg.Trading.PaperTrading {
		return venue.PaperSet(), nil
	}

	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return venue.Set{}, fmt.Errorf("load operator key: %w", err)
	}

	signer, err := crypto.NewSigner(keyHex, cfg.Wallet.ChainID)
	if err != nil {
		return venue.Set{}, fmt.Errorf("build signer: %w", err)
	}

	retry := transport.DefaultPolicy(func(err error) bool {
		return errors.Is(err, domain.ErrRateLimited)
	})

	return venue.Set{
		Polymarket: polymarket.NewClient(cfg.Polymarket.ClobHost, signer, retry),
		Kalshi:     kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKey, retry),
	}, nil
}
