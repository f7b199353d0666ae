package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/notify"
)

// ErrAdmissionRejected marks a CoordinateArb failure caused by the admission
// gate rather than venue execution. The wrapped message carries the reason.
var ErrAdmissionRejected = errors.New("admission rejected")

// CoordinatorConfig holds the leg polling bounds.
type CoordinatorConfig struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// ArbCoordinator drives the two-leg arbitrage sequence. The legs are strictly
// sequential: the secondary leg is never attempted until the primary leg has
// confirmed a fill. There is no whole-operation retry and no automatic unwind
// of a one-sided position.
type ArbCoordinator struct {
	trades   domain.TradeStore
	orders   *OrderManager
	bus      domain.SignalBus
	notifier *notify.Notifier
	cfg      CoordinatorConfig
	logger   *slog.Logger
}

func NewArbCoordinator(
	trades domain.TradeStore,
	orders *OrderManager,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	cfg CoordinatorConfig,
	logger *slog.Logger,
) *ArbCoordinator {
	return &ArbCoordinator{
		trades:   trades,
		orders:   orders,
		bus:      bus,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "coordinator")),
	}
}

// CoordinateArb opens a trade for the opportunity and executes both legs in
// sequence. The composite arbitrage is always framed as a buy of the spread:
// the primary leg buys on Polymarket, the secondary sells on Kalshi. Any
// failure transitions the trade to failed and propagates; a secondary leg
// failure after a primary fill additionally surfaces ErrOneSidedPosition, a
// condition that requires manual intervention.
func (c *ArbCoordinator) CoordinateArb(ctx context.Context, userID string, opp domain.Opportunity, sizeUSD float64) (domain.Trade, error) {
	trade := domain.Trade{
		ID:           uuid.NewString(),
		UserID:       userID,
		MarketPair:   opp.MarketPair,
		PrimaryVenue: domain.VenuePolymarket,
		Side:         domain.SideBuy,
		SizeUSD:      sizeUSD,
		EntryPrice:   opp.PrimaryPrice,
		Status:       domain.TradeStatusOpen,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.trades.Create(ctx, trade); err != nil {
		return domain.Trade{}, fmt.Errorf("coordinator: create trade: %w", err)
	}

	// Leg A: primary venue, buy side.
	resA, err := c.orders.PlaceOrder(ctx, domain.OrderRequest{
		UserID:     userID,
		Venue:      trade.PrimaryVenue,
		MarketPair: opp.MarketPair,
		Side:       trade.Side,
		Size:       sizeUSD,
		Price:      opp.PrimaryPrice,
		Confidence: opp.Confidence,
	})
	if err != nil {
		return c.fail(ctx, trade, fmt.Sprintf("primary leg: %v", err)),
			fmt.Errorf("coordinator: primary leg: %w", err)
	}
	if !resA.Accepted {
		return c.fail(ctx, trade, "admission rejected: "+resA.Reason),
			fmt.Errorf("coordinator: primary leg %w: %s", ErrAdmissionRejected, resA.Reason)
	}

	legA, err := c.orders.AwaitTerminal(ctx, resA.Order, c.cfg.PollInterval, c.cfg.PollTimeout)
	if err != nil {
		return c.fail(ctx, trade, fmt.Sprintf("primary leg polling: %v", err)),
			fmt.Errorf("coordinator: primary leg polling: %w", err)
	}
	if legA.Status != domain.OrderStatusFilled {
		reason := fmt.Sprintf("primary leg %s", legA.Status)
		return c.fail(ctx, trade, reason),
			fmt.Errorf("coordinator: primary leg status %s: %w", legA.Status, domain.ErrLegNotFilled)
	}

	if err := c.orders.AttachTrade(ctx, legA.ID, trade.ID); err != nil {
		return c.fail(ctx, trade, fmt.Sprintf("attach primary leg: %v", err)),
			fmt.Errorf("coordinator: %w", err)
	}

	// Leg B: secondary venue, opposite side. From here a failure leaves an
	// open one-sided position on the primary venue.
	resB, err := c.orders.PlaceOrder(ctx, domain.OrderRequest{
		UserID:     userID,
		Venue:      domain.VenueKalshi,
		MarketPair: opp.MarketPair,
		Side:       trade.Side.Opposite(),
		Size:       sizeUSD,
		Price:      opp.SecondaryPrice,
		Confidence: opp.Confidence,
	})
	if err != nil {
		return c.oneSided(ctx, trade, fmt.Sprintf("secondary leg: %v", err))
	}
	if !resB.Accepted {
		return c.oneSided(ctx, trade, "secondary leg admission rejected: "+resB.Reason)
	}

	if err := c.orders.AttachTrade(ctx, resB.Order.ID, trade.ID); err != nil {
		return c.oneSided(ctx, trade, fmt.Sprintf("attach secondary leg: %v", err))
	}

	legB, err := c.orders.AwaitTerminal(ctx, resB.Order, c.cfg.PollInterval, c.cfg.PollTimeout)
	if err != nil {
		return c.oneSided(ctx, trade, fmt.Sprintf("secondary leg polling: %v", err))
	}
	if legB.Status != domain.OrderStatusFilled {
		return c.oneSided(ctx, trade, fmt.Sprintf("secondary leg %s", legB.Status))
	}

	c.publishUpdate(ctx, trade.ID, trade.Status, "both legs filled")
	c.logger.InfoContext(ctx, "arbitrage executed",
		slog.String("trade_id", trade.ID),
		slog.String("market_pair", trade.MarketPair),
		slog.Float64("size_usd", sizeUSD),
		slog.Float64("spread_bps", opp.SpreadBps),
	)
	return trade, nil
}

// fail transitions the trade to failed and returns its updated view. Errors
// during the transition are logged, not propagated; the original failure is
// what the caller needs to see.
func (c *ArbCoordinator) fail(ctx context.Context, trade domain.Trade, reason string) domain.Trade {
	if err := c.trades.Close(ctx, trade.ID, domain.TradeStatusFailed, reason); err != nil {
		c.logger.ErrorContext(ctx, "trade fail transition lost",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()),
		)
	}
	trade.Status = domain.TradeStatusFailed
	trade.CloseReason = reason
	c.publishUpdate(ctx, trade.ID, trade.Status, reason)
	return trade
}

func (c *ArbCoordinator) oneSided(ctx context.Context, trade domain.Trade, reason string) (domain.Trade, error) {
	trade = c.fail(ctx, trade, reason)

	c.logger.WarnContext(ctx, "one-sided position",
		slog.String("trade_id", trade.ID),
		slog.String("market_pair", trade.MarketPair),
		slog.Float64("size_usd", trade.SizeUSD),
		slog.String("reason", reason),
	)
	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, notify.EventOneSided, "One-sided position",
			fmt.Sprintf("trade %s (%s): %s", trade.ID, trade.MarketPair, reason)); err != nil {
			c.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}

	return trade, fmt.Errorf("coordinator: trade %s: %w", trade.ID, domain.ErrOneSidedPosition)
}

func (c *ArbCoordinator) publishUpdate(ctx context.Context, tradeID string, status domain.TradeStatus, message string) {
	payload, err := json.Marshal(domain.TradeUpdate{
		TradeID:   tradeID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := c.bus.Publish(ctx, domain.TopicTradeUpdates, payload); err != nil {
		c.logger.WarnContext(ctx, "trade update publish failed",
			slog.String("trade_id", tradeID),
			slog.String("error", err.Error()),
		)
	}
}
