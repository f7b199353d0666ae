package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/venue"
)

// EmergencyChecker reports whether an emergency stop is active for a user.
// Implemented by EmergencyStopService; abstracted so the order manager can be
// tested without the full kill-switch wiring.
type EmergencyChecker interface {
	IsActive(ctx context.Context, userID string) (bool, error)
}

// OrderConfig holds the admission gate parameters.
type OrderConfig struct {
	PaperTrading    bool
	MaxPositionUSD  float64
	MinConfidence   float64
	MinTier         domain.PlanTier
	OrdersPerSecond int
}

// OrderManager gates, persists, and submits single leg orders. Every order
// passes the admission gate before anything is written; a gate rejection is a
// typed result carrying the reason, never an error, and leaves no trace in
// the order store.
type OrderManager struct {
	orders    domain.OrderStore
	emergency EmergencyChecker
	plans     domain.PlanSource
	regimes   domain.RegimeSource
	limiter   domain.RateLimiter
	audit     domain.AuditStore
	executors venue.Set
	cfg       OrderConfig
	logger    *slog.Logger
}

func NewOrderManager(
	orders domain.OrderStore,
	emergency EmergencyChecker,
	plans domain.PlanSource,
	regimes domain.RegimeSource,
	limiter domain.RateLimiter,
	audit domain.AuditStore,
	executors venue.Set,
	cfg OrderConfig,
	logger *slog.Logger,
) *OrderManager {
	return &OrderManager{
		orders:    orders,
		emergency: emergency,
		plans:     plans,
		regimes:   regimes,
		limiter:   limiter,
		audit:     audit,
		executors: executors,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "order_manager")),
	}
}

// PlaceOrder runs the admission gate in fixed order, first failure wins:
// active emergency, critical risk regime, insufficient plan tier, position
// size cap, confidence floor. On pass it persists the order and submits it to
// the venue. In paper mode the order is marked filled at the requested price
// immediately after submission.
func (m *OrderManager) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacementResult, error) {
	active, err := m.emergency.IsActive(ctx, req.UserID)
	if err != nil {
		return domain.PlacementResult{}, fmt.Errorf("order_manager: emergency check: %w", err)
	}
	if active {
		return m.reject(ctx, req, domain.ErrEmergencyActive.Error()), nil
	}

	regime, err := m.regimes.CurrentRegime(ctx)
	if err != nil {
		return domain.PlacementResult{}, fmt.Errorf("order_manager: regime lookup: %w", err)
	}
	if regime == domain.RegimeCritical {
		return m.reject(ctx, req, "risk regime critical"), nil
	}

	tier, err := m.plans.TierOf(ctx, req.UserID)
	if err != nil {
		return domain.PlacementResult{}, fmt.Errorf("order_manager: plan lookup: %w", err)
	}
	if tier < m.cfg.MinTier {
		return m.reject(ctx, req, fmt.Sprintf("plan tier %s does not permit automated trading", tier)), nil
	}

	if req.Size > m.cfg.MaxPositionUSD {
		return m.reject(ctx, req, fmt.Sprintf("size %.2f exceeds max position %.2f", req.Size, m.cfg.MaxPositionUSD)), nil
	}

	if req.Confidence < m.cfg.MinConfidence {
		return m.reject(ctx, req, fmt.Sprintf("confidence %.2f below minimum %.2f", req.Confidence, m.cfg.MinConfidence)), nil
	}

	allowed, err := m.limiter.Allow(ctx, "orders:"+req.UserID, m.cfg.OrdersPerSecond, time.Second)
	if err != nil {
		return domain.PlacementResult{}, fmt.Errorf("order_manager: rate limiter: %w", err)
	}
	if !allowed {
		return domain.PlacementResult{}, fmt.Errorf("order_manager: user %s: %w", req.UserID, domain.ErrRateLimited)
	}

	order := domain.Order{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Venue:      req.Venue,
		MarketPair: req.MarketPair,
		Side:       req.Side,
		Size:       req.Size,
		Price:      req.Price,
		Status:     domain.OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	if err := m.orders.Create(ctx, order); err != nil {
		return domain.PlacementResult{}, fmt.Errorf("order_manager: create order: %w", err)
	}

	ex, err := m.executors.For(order.Venue)
	if err != nil {
		return domain.PlacementResult{}, fmt.Errorf("order_manager: %w", err)
	}

	externalID, err := ex.SubmitOrder(ctx, order)
	if err != nil {
		order.Status = domain.OrderStatusFailed
		order.ErrorMsg = err.Error()
		if uerr := m.orders.Update(ctx, order.ID, updateFrom(order)); uerr != nil {
			m.logger.WarnContext(ctx, "failed order update lost",
				slog.String("order_id", order.ID),
				slog.String("error", uerr.Error()),
			)
		}
		return domain.PlacementResult{Accepted: true, Order: order},
			fmt.Errorf("order_manager: submit to %s: %w", order.Venue, err)
	}

	order.ExternalID = externalID
	order.Status = domain.OrderStatusSubmitted
	if m.cfg.PaperTrading {
		order.Status = domain.OrderStatusFilled
		order.FilledSize = order.Size
		order.FilledPrice = order.Price
	}
	if err := m.orders.Update(ctx, order.ID, updateFrom(order)); err != nil {
		return domain.PlacementResult{}, fmt.Errorf("order_manager: update order %s: %w", order.ID, err)
	}

	m.auditLog(ctx, "order_placed", map[string]any{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"venue":       string(order.Venue),
		"market_pair": order.MarketPair,
		"side":        string(order.Side),
		"size":        order.Size,
		"price":       order.Price,
		"paper":       m.cfg.PaperTrading,
	})

	m.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("venue", string(order.Venue)),
		slog.String("external_id", externalID),
		slog.String("status", string(order.Status)),
	)

	return domain.PlacementResult{Accepted: true, Order: order}, nil
}

// AwaitTerminal polls the venue for the order's status until it reaches a
// terminal state or the timeout elapses. Timeout marks the order expired. The
// returned order reflects the final persisted state.
func (m *OrderManager) AwaitTerminal(ctx context.Context, o domain.Order, interval, timeout time.Duration) (domain.Order, error) {
	if o.Status.Terminal() {
		return o, nil
	}

	ex, err := m.executors.For(o.Venue)
	if err != nil {
		return o, fmt.Errorf("order_manager: %w", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		status, err := ex.PollOrderStatus(ctx, o.ExternalID)
		if err != nil {
			m.logger.WarnContext(ctx, "poll failed",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
		} else if status.Terminal() {
			o.Status = status
			if status == domain.OrderStatusFilled {
				o.FilledSize = o.Size
				o.FilledPrice = o.Price
			}
			if err := m.orders.Update(ctx, o.ID, updateFrom(o)); err != nil {
				return o, fmt.Errorf("order_manager: update order %s: %w", o.ID, err)
			}
			return o, nil
		}

		select {
		case <-ctx.Done():
			return o, ctx.Err()
		case <-deadline.C:
			o.Status = domain.OrderStatusExpired
			o.ErrorMsg = "status polling timed out"
			if err := m.orders.Update(ctx, o.ID, updateFrom(o)); err != nil {
				return o, fmt.Errorf("order_manager: update order %s: %w", o.ID, err)
			}
			return o, nil
		case <-tick.C:
		}
	}
}

// UpdateOrder replaces the order's mutable fields wholesale.
func (m *OrderManager) UpdateOrder(ctx context.Context, id string, u domain.OrderUpdate) error {
	if err := m.orders.Update(ctx, id, u); err != nil {
		return fmt.Errorf("order_manager: update order %s: %w", id, err)
	}
	return nil
}

// AttachTrade binds the order to its parent trade. The binding is permanent.
func (m *OrderManager) AttachTrade(ctx context.Context, orderID, tradeID string) error {
	if err := m.orders.AttachTrade(ctx, orderID, tradeID); err != nil {
		return fmt.Errorf("order_manager: attach order %s to trade %s: %w", orderID, tradeID, err)
	}
	return nil
}

func (m *OrderManager) reject(ctx context.Context, req domain.OrderRequest, reason string) domain.PlacementResult {
	m.logger.InfoContext(ctx, "order rejected",
		slog.String("user_id", req.UserID),
		slog.String("venue", string(req.Venue)),
		slog.String("reason", reason),
	)
	return domain.PlacementResult{Accepted: false, Reason: reason}
}

func (m *OrderManager) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := m.audit.Log(ctx, event, detail); err != nil {
		m.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func updateFrom(o domain.Order) domain.OrderUpdate {
	return domain.OrderUpdate{
		Status:      o.Status,
		FilledSize:  o.FilledSize,
		FilledPrice: o.FilledPrice,
		ExternalID:  o.ExternalID,
		ErrorMsg:    o.ErrorMsg,
	}
}
