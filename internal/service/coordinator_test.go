package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/venue"
)

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:             "opp-1",
		MarketPair:     "FED-CUT-DEC",
		PrimaryPrice:   0.55,
		SecondaryPrice: 0.61,
		SpreadBps:      600,
		Confidence:     0.9,
		DetectedAt:     time.Now().UTC(),
	}
}

func buildCoordinator(d orderManagerDeps, trades *memTradeStore, bus *memBus) *ArbCoordinator {
	return NewArbCoordinator(trades, buildOrderManager(d), bus, nil, CoordinatorConfig{
		PollInterval: time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	}, testLogger())
}

func TestCoordinateArb_BothLegsFilled(t *testing.T) {
	d := defaultOrderDeps()
	trades := newMemTradeStore()
	bus := newMemBus()
	c := buildCoordinator(d, trades, bus)

	trade, err := c.CoordinateArb(context.Background(), "user-1", testOpportunity(), 5_000)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusOpen, trade.Status)
	assert.Equal(t, domain.VenuePolymarket, trade.PrimaryVenue)
	assert.Equal(t, domain.SideBuy, trade.Side)

	legs, err := d.orders.ListByTrade(context.Background(), trade.ID)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	for _, leg := range legs {
		assert.Equal(t, domain.OrderStatusFilled, leg.Status)
		require.NotNil(t, leg.TradeID)
		assert.Equal(t, trade.ID, *leg.TradeID)
	}

	updates := bus.published(domain.TopicTradeUpdates)
	require.Len(t, updates, 1)
	var update domain.TradeUpdate
	require.NoError(t, json.Unmarshal(updates[0], &update))
	assert.Equal(t, trade.ID, update.TradeID)
	assert.Equal(t, domain.TradeStatusOpen, update.Status)
}

func TestCoordinateArb_SecondaryLegTakesOppositeSide(t *testing.T) {
	d := defaultOrderDeps()
	trades := newMemTradeStore()
	c := buildCoordinator(d, trades, newMemBus())

	trade, err := c.CoordinateArb(context.Background(), "user-1", testOpportunity(), 5_000)
	require.NoError(t, err)

	legs, err := d.orders.ListByTrade(context.Background(), trade.ID)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	sides := map[domain.Venue]domain.Side{}
	for _, leg := range legs {
		sides[leg.Venue] = leg.Side
	}
	assert.Equal(t, domain.SideBuy, sides[domain.VenuePolymarket])
	assert.Equal(t, domain.SideSell, sides[domain.VenueKalshi])
}

func TestCoordinateArb_AdmissionRejectionFailsTradeWithoutOrders(t *testing.T) {
	d := defaultOrderDeps()
	d.emergency = staticEmergency{active: true}
	trades := newMemTradeStore()
	c := buildCoordinator(d, trades, newMemBus())

	trade, err := c.CoordinateArb(context.Background(), "user-1", testOpportunity(), 5_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAdmissionRejected))
	assert.Equal(t, domain.TradeStatusFailed, trade.Status)
	assert.Contains(t, trade.CloseReason, "emergency stop active")
	assert.Zero(t, d.orders.count())
}

func TestCoordinateArb_PrimaryLegNotFilledSkipsSecondary(t *testing.T) {
	d := defaultOrderDeps()
	kalshi := &scriptedExecutor{venue: domain.VenueKalshi, submitID: "ks-1", pollStatus: domain.OrderStatusFilled}
	d.executors = venue.Set{
		Polymarket: &scriptedExecutor{venue: domain.VenuePolymarket, submitID: "pm-1", pollStatus: domain.OrderStatusFailed},
		Kalshi:     kalshi,
	}
	trades := newMemTradeStore()
	c := buildCoordinator(d, trades, newMemBus())

	trade, err := c.CoordinateArb(context.Background(), "user-1", testOpportunity(), 5_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLegNotFilled))
	assert.Equal(t, domain.TradeStatusFailed, trade.Status)
	assert.Zero(t, kalshi.submitCount(), "secondary leg must never be attempted")
}

func TestCoordinateArb_PollingTimeoutExpiresPrimaryLeg(t *testing.T) {
	d := defaultOrderDeps()
	pm := &scriptedExecutor{venue: domain.VenuePolymarket, submitID: "pm-1", pollStatus: domain.OrderStatusSubmitted}
	d.executors.Polymarket = pm
	trades := newMemTradeStore()

	c := NewArbCoordinator(trades, buildOrderManager(d), newMemBus(), nil, CoordinatorConfig{
		PollInterval: time.Millisecond,
		PollTimeout:  10 * time.Millisecond,
	}, testLogger())

	trade, err := c.CoordinateArb(context.Background(), "user-1", testOpportunity(), 5_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLegNotFilled))
	assert.Equal(t, domain.TradeStatusFailed, trade.Status)
	assert.Contains(t, trade.CloseReason, "expired")
}

func TestCoordinateArb_SecondaryFailureIsOneSided(t *testing.T) {
	d := defaultOrderDeps()
	d.executors.Kalshi = &scriptedExecutor{
		venue:     domain.VenueKalshi,
		submitErr: errors.New("venue unavailable"),
	}
	trades := newMemTradeStore()
	c := buildCoordinator(d, trades, newMemBus())

	trade, err := c.CoordinateArb(context.Background(), "user-1", testOpportunity(), 5_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOneSidedPosition))
	assert.Equal(t, domain.TradeStatusFailed, trade.Status)
}

func TestCoordinateArb_PaperModeLeavesOpenPosition(t *testing.T) {
	d := defaultOrderDeps()
	d.cfg.PaperTrading = true
	d.executors = venue.PaperSet()
	trades := newMemTradeStore()
	c := buildCoordinator(d, trades, newMemBus())

	trade, err := c.CoordinateArb(context.Background(), "user-1", testOpportunity(), 5_000)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusOpen, trade.Status)

	open, err := trades.CountOpen(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, open)
}
