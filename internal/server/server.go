package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/server/handler"
	"github.com/quantfold/arbdesk/internal/server/middleware"
	"github.com/quantfold/arbdesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Arb       *handler.ArbHandler
	Trades    *handler.TradeHandler
	Emergency *handler.EmergencyHandler
}

// Server is the HTTP and WebSocket API for the arbitrage desk.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. The API
// routes sit behind API-key auth; /ws is open so clients can connect at the
// guest tier without credentials.
func NewServer(cfg Config, handlers Handlers, registry *ws.Registry, plans domain.PlanSource, logger *slog.Logger) *Server {
	api := http.NewServeMux()

	// Health check (no auth required).
	api.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Arbitrage execution.
	api.HandleFunc("POST /api/arbitrage/execute", handlers.Arb.Execute)

	// Trades.
	api.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	api.HandleFunc("GET /api/trades/{id}", handlers.Trades.GetTrade)
	api.HandleFunc("POST /api/trades/{id}/close", handlers.Trades.CloseTrade)

	// Emergency stop.
	api.HandleFunc("POST /api/emergency-stop", handlers.Emergency.Trigger)
	api.HandleFunc("POST /api/emergency-stop/{id}/resolve", handlers.Emergency.Resolve)
	api.HandleFunc("GET /api/emergency-stop/status", handlers.Emergency.Status)

	root := http.NewServeMux()
	root.Handle("/api/", middleware.Auth(cfg.APIKey)(api))
	if registry != nil {
		root.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
			userID, tier := resolveIdentity(r, plans, logger)
			registry.HandleWS(w, r, userID, tier)
		})
	}

	var h http.Handler = root
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// resolveIdentity maps the request onto a user and tier. Requests without a
// user identity connect at the guest tier.
func resolveIdentity(r *http.Request, plans domain.PlanSource, logger *slog.Logger) (string, domain.PlanTier) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		return "", domain.TierGuest
	}

	tier := domain.TierGuest
	if plans != nil {
		t, err := plans.TierOf(r.Context(), userID)
		if err != nil {
			logger.WarnContext(r.Context(), "tier lookup failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else {
			tier = t
		}
	}
	return userID, tier
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
