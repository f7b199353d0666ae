package service

import (
	"context"
	"sync"
	"time"

	"github.com/quantfold/arbdesk/internal/domain"
)

// In-memory collaborators for service tests.

type memTradeStore struct {
	mu     sync.Mutex
	trades map[string]domain.Trade
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{trades: make(map[string]domain.Trade)}
}

func (s *memTradeStore) Create(ctx context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[t.ID] = t
	return nil
}

func (s *memTradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return domain.Trade{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *memTradeStore) ListOpen(ctx context.Context, scope string) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.Status != domain.TradeStatusOpen {
			continue
		}
		if scope != "" && scope != domain.ScopeSystem && t.UserID != scope {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *memTradeStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTradeStore) Close(ctx context.Context, id string, status domain.TradeStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status.Terminal() {
		return domain.ErrTradeTerminal
	}
	now := time.Now().UTC()
	t.Status = status
	t.CloseReason = reason
	t.ClosedAt = &now
	s.trades[id] = t
	return nil
}

func (s *memTradeStore) CountOpen(ctx context.Context, userID string) (int, error) {
	open, _ := s.ListOpen(ctx, userID)
	return len(open), nil
}

func (s *memTradeStore) ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trade, error) {
	return nil, nil
}

type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]domain.Order)}
}

func (s *memOrderStore) Create(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *memOrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memOrderStore) Update(ctx context.Context, id string, u domain.OrderUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = u.Status
	o.FilledSize = u.FilledSize
	o.FilledPrice = u.FilledPrice
	o.ExternalID = u.ExternalID
	o.ErrorMsg = u.ErrorMsg
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return nil
}

func (s *memOrderStore) AttachTrade(ctx context.Context, orderID, tradeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	if o.TradeID != nil {
		return domain.ErrTradeReassigned
	}
	o.TradeID = &tradeID
	s.orders[orderID] = o
	return nil
}

func (s *memOrderStore) ListByTrade(ctx context.Context, tradeID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.TradeID != nil && *o.TradeID == tradeID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOrderStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type memEventStore struct {
	mu     sync.Mutex
	events map[string]domain.EmergencyEvent
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: make(map[string]domain.EmergencyEvent)}
}

func (s *memEventStore) Create(ctx context.Context, ev domain.EmergencyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
	return nil
}

func (s *memEventStore) GetByID(ctx context.Context, id string) (domain.EmergencyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return domain.EmergencyEvent{}, domain.ErrNotFound
	}
	return ev, nil
}

func (s *memEventStore) Resolve(ctx context.Context, id string, at time.Time) (domain.EmergencyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return domain.EmergencyEvent{}, domain.ErrNotFound
	}
	if ev.ResolvedAt == nil {
		ev.ResolvedAt = &at
		s.events[id] = ev
	}
	return ev, nil
}

func (s *memEventStore) ListUnresolved(ctx context.Context, scope string) ([]domain.EmergencyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EmergencyEvent
	for _, ev := range s.events {
		if ev.ResolvedAt != nil {
			continue
		}
		if scope != "" && ev.Scope != scope {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *memEventStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.EmergencyEvent, error) {
	return nil, nil
}

func (s *memEventStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type memFlagStore struct {
	mu    sync.Mutex
	flags map[string]bool
}

func newMemFlagStore() *memFlagStore {
	return &memFlagStore{flags: make(map[string]bool)}
}

func (s *memFlagStore) Set(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = true
	return nil
}

func (s *memFlagStore) IsSet(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[key], nil
}

func (s *memFlagStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, key)
	return nil
}

type memBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{messages: make(map[string][][]byte)}
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) published(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.messages[channel]
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (s *memAuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{Event: event, Detail: detail, CreatedAt: time.Now()})
	return nil
}

func (s *memAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.entries...), nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

type staticPlans struct {
	tier domain.PlanTier
}

func (p staticPlans) TierOf(ctx context.Context, userID string) (domain.PlanTier, error) {
	return p.tier, nil
}

type staticRegime struct {
	regime domain.RiskRegime
}

func (r staticRegime) CurrentRegime(ctx context.Context) (domain.RiskRegime, error) {
	return r.regime, nil
}

type staticEmergency struct {
	active bool
}

func (e staticEmergency) IsActive(ctx context.Context, userID string) (bool, error) {
	return e.active, nil
}

// scriptedExecutor returns canned submit/poll outcomes per venue.
type scriptedExecutor struct {
	venue      domain.Venue
	submitID   string
	submitErr  error
	pollStatus domain.OrderStatus
	pollErr    error

	mu       sync.Mutex
	submits  int
	polls    int
}

func (e *scriptedExecutor) Venue() domain.Venue { return e.venue }

func (e *scriptedExecutor) SubmitOrder(ctx context.Context, o domain.Order) (string, error) {
	e.mu.Lock()
	e.submits++
	e.mu.Unlock()
	if e.submitErr != nil {
		return "", e.submitErr
	}
	return e.submitID, nil
}

func (e *scriptedExecutor) PollOrderStatus(ctx context.Context, externalID string) (domain.OrderStatus, error) {
	e.mu.Lock()
	e.polls++
	e.mu.Unlock()
	if e.pollErr != nil {
		return "", e.pollErr
	}
	return e.pollStatus, nil
}

func (e *scriptedExecutor) submitCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submits
}
