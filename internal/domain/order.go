package domain

import "time"

// OrderStatus tracks the lifecycle of one leg order. Venue-specific
// vocabularies are normalized into this set by the venue clients.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusExpired   OrderStatus = "expired"
)

// Terminal reports whether the status admits no further transition.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed, OrderStatusExpired:
		return true
	}
	return false
}

// Order is one leg of an arbitrage trade. TradeID is nil until the
// coordinator attaches the parent trade; once attached it is never
// reassigned.
type Order struct {
	ID          string
	TradeID     *string
	UserID      string
	Venue       Venue
	MarketPair  string
	Side        Side
	Size        float64
	Price       float64
	FilledSize  float64
	FilledPrice float64
	Status      OrderStatus
	ExternalID  string
	ErrorMsg    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderUpdate is the full set of mutable order fields. UpdateOrder replaces
// every field listed here wholesale; callers must populate the complete set
// they intend to persist, partial merge is not performed.
type OrderUpdate struct {
	Status      OrderStatus
	FilledSize  float64
	FilledPrice float64
	ExternalID  string
	ErrorMsg    string
}

// OrderRequest carries everything the admission gate needs to evaluate a
// prospective leg order.
type OrderRequest struct {
	UserID     string
	Venue      Venue
	MarketPair string
	Side       Side
	Size       float64
	Price      float64
	Confidence float64
}

// PlacementResult is the typed outcome of OrderManager.PlaceOrder. A gate
// rejection is a normal result, not an error: Accepted is false, Reason
// carries the human-readable cause, and no order row exists.
type PlacementResult struct {
	Accepted bool
	Reason   string
	Order    Order
}
