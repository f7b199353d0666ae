// Package app owns the application lifecycle: it wires the stores, caches,
// venue executors, services, realtime fan-out, and HTTP API, runs them under
// one errgroup, and tears everything down in reverse order on shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/quantfold/arbdesk/internal/blob/s3"
	"github.com/quantfold/arbdesk/internal/config"
	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/server"
	"github.com/quantfold/arbdesk/internal/server/handler"
	"github.com/quantfold/arbdesk/internal/server/ws"
	"github.com/quantfold/arbdesk/internal/service"
)

const (
	archiveRetain   = 30 * 24 * time.Hour
	archiveInterval = time.Hour
	shutdownGrace   = 10 * time.Second
)

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and blocks serving until the context is
// cancelled, then drains the HTTP server and releases resources.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.Bool("paper_trading", a.cfg.Trading.PaperTrading),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Services.
	emergency := service.NewEmergencyStopService(
		deps.TradeStore, deps.EventStore, deps.FlagStore, deps.SignalBus, deps.AuditStore, a.logger,
	).WithNotifier(deps.Notifier)

	orders := service.NewOrderManager(
		deps.OrderStore, emergency, deps.Plans, deps.Regimes,
		deps.RateLimiter, deps.AuditStore, deps.Executors,
		service.OrderConfig{
			PaperTrading:    a.cfg.Trading.PaperTrading,
			MaxPositionUSD:  a.cfg.Trading.MaxPositionUSD,
			MinConfidence:   a.cfg.Trading.MinConfidence,
			MinTier:         domain.ParseTier(a.cfg.Trading.MinTier),
			OrdersPerSecond: a.cfg.Trading.OrdersPerSecond,
		},
		a.logger,
	)

	coordinator := service.NewArbCoordinator(
		deps.TradeStore, orders, deps.SignalBus, deps.Notifier,
		service.CoordinatorConfig{
			PollInterval: a.cfg.Trading.PollInterval.Duration,
			PollTimeout:  a.cfg.Trading.PollTimeout.Duration,
		},
		a.logger,
	)

	trades := service.NewTradeService(
		deps.TradeStore, deps.OrderStore, deps.SignalBus, deps.AuditStore, a.logger,
	)

	// Realtime fan-out.
	registry := ws.NewRegistry(ws.RegistryConfig{
		GuestIdleWindow: a.cfg.Realtime.GuestIdleWindow.Duration,
		SweepInterval:   a.cfg.Realtime.SweepInterval.Duration,
	}, a.logger)
	emergency.WithPusher(registry)

	channels := ws.NewChannels(registry, deps.SignalBus, a.cfg.Realtime.PriceThrottle.Duration, a.logger)

	// HTTP API.
	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(deps.Postgres, deps.Redis),
			Arb:       handler.NewArbHandler(coordinator, a.logger),
			Trades:    handler.NewTradeHandler(trades, a.logger),
			Emergency: handler.NewEmergencyHandler(emergency, a.logger),
		},
		registry, deps.Plans, a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return registry.Run(gctx) })
	g.Go(func() error { return channels.Run(gctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if deps.Blob != nil {
		archiver := s3blob.NewArchiver(
			deps.Blob, deps.TradeStore, deps.EventStore,
			archiveRetain, archiveInterval, a.logger,
		)
		g.Go(func() error { return archiver.Run(gctx) })
	}

	err = g.Wait()
	if err != nil && err != context.Canceled {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// Close tears down all resources in reverse registration order. Safe to call
// more than once.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
