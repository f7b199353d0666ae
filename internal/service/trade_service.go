package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/arbdesk/internal/domain"
)

// TradeService serves trade reads and operator-initiated closes.
type TradeService struct {
	trades domain.TradeStore
	orders domain.OrderStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

func NewTradeService(
	trades domain.TradeStore,
	orders domain.OrderStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades: trades,
		orders: orders,
		bus:    bus,
		audit:  audit,
		logger: logger.With(slog.String("component", "trade_service")),
	}
}

// Timeline returns the trade together with its leg orders in placement order.
func (s *TradeService) Timeline(ctx context.Context, tradeID string) (domain.Trade, []domain.Order, error) {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return domain.Trade{}, nil, fmt.Errorf("trade_service: get trade %s: %w", tradeID, err)
	}
	legs, err := s.orders.ListByTrade(ctx, tradeID)
	if err != nil {
		return domain.Trade{}, nil, fmt.Errorf("trade_service: list legs: %w", err)
	}
	return trade, legs, nil
}

// ListByUser returns the user's trades, newest first.
func (s *TradeService) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list trades for %s: %w", userID, err)
	}
	return trades, nil
}

// Close transitions an open trade to closed with the operator's reason and
// publishes the status change. Closing a trade that already reached a
// terminal status fails with ErrTradeTerminal.
func (s *TradeService) Close(ctx context.Context, tradeID, reason string) (domain.Trade, error) {
	if err := s.trades.Close(ctx, tradeID, domain.TradeStatusClosed, reason); err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: close trade %s: %w", tradeID, err)
	}
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: get trade %s: %w", tradeID, err)
	}

	payload, err := json.Marshal(domain.TradeUpdate{
		TradeID:   trade.ID,
		Status:    trade.Status,
		Message:   reason,
		Timestamp: time.Now().UTC(),
	})
	if err == nil {
		if err := s.bus.Publish(ctx, domain.TopicTradeUpdates, payload); err != nil {
			s.logger.WarnContext(ctx, "trade update publish failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.audit.Log(ctx, "trade_closed", map[string]any{
		"trade_id": trade.ID,
		"user_id":  trade.UserID,
		"reason":   reason,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "trade closed",
		slog.String("trade_id", trade.ID),
		slog.String("reason", reason),
	)
	return trade, nil
}
