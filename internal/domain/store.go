package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists arbitrage trades. Trades are transitioned, never
// deleted.
type TradeStore interface {
	Create(ctx context.Context, t Trade) error
	GetByID(ctx context.Context, id string) (Trade, error)
	// ListOpen returns open trades; scope narrows to one user when non-empty
	// and ScopeSystem (or "") selects every user.
	ListOpen(ctx context.Context, scope string) ([]Trade, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Trade, error)
	// Close transitions the trade to the given terminal status. It refuses to
	// overwrite a status that is already terminal.
	Close(ctx context.Context, id string, status TradeStatus, reason string) error
	CountOpen(ctx context.Context, userID string) (int, error)
	ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Trade, error)
}

// OrderStore persists leg orders.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	// Update replaces the mutable field set wholesale and stamps updated_at.
	Update(ctx context.Context, id string, u OrderUpdate) error
	// AttachTrade sets the parent trade reference. It fails with
	// ErrTradeReassigned when the order already references a trade.
	AttachTrade(ctx context.Context, orderID, tradeID string) error
	ListByTrade(ctx context.Context, tradeID string) ([]Order, error)
}

// EmergencyEventStore persists the append-only kill-switch audit log.
type EmergencyEventStore interface {
	Create(ctx context.Context, e EmergencyEvent) error
	GetByID(ctx context.Context, id string) (EmergencyEvent, error)
	// Resolve stamps the resolution timestamp and returns the updated event.
	Resolve(ctx context.Context, id string, at time.Time) (EmergencyEvent, error)
	// ListUnresolved returns active events, optionally narrowed to one scope
	// (empty scope selects all).
	ListUnresolved(ctx context.Context, scope string) ([]EmergencyEvent, error)
	ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]EmergencyEvent, error)
}

// AuditEntry is a single append-only audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// PlanSource resolves a user's subscription tier. Plan storage is an external
// collaborator; only the lookup is specified here.
type PlanSource interface {
	TierOf(ctx context.Context, userID string) (PlanTier, error)
}

// RegimeSource reports the most recent risk regime reading from the external
// signal source.
type RegimeSource interface {
	CurrentRegime(ctx context.Context) (RiskRegime, error)
}
