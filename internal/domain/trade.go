package domain

import "time"

// Side indicates whether a trade or order leg is a buy or a sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// TradeStatus tracks the lifecycle of an arbitrage trade. Transitions are
// monotonic: once a trade leaves open it never returns.
type TradeStatus string

const (
	TradeStatusOpen            TradeStatus = "open"
	TradeStatusClosed          TradeStatus = "closed"
	TradeStatusFailed          TradeStatus = "failed"
	TradeStatusEmergencyClosed TradeStatus = "emergency_closed"
)

// Terminal reports whether no further automatic transition can occur.
func (s TradeStatus) Terminal() bool {
	return s == TradeStatusClosed || s == TradeStatusFailed || s == TradeStatusEmergencyClosed
}

// Trade is the parent aggregate of a two-leg arbitrage position. It is created
// by the coordinator before any leg is placed and only ever transitioned,
// never deleted. The composite arbitrage is always framed as a buy of the
// spread, so Side is buy by convention and the secondary leg takes the
// opposite side.
type Trade struct {
	ID           string
	UserID       string
	MarketPair   string
	PrimaryVenue Venue
	Side         Side
	SizeUSD      float64
	EntryPrice   float64
	Status       TradeStatus
	CloseReason  string
	CreatedAt    time.Time
	ClosedAt     *time.Time
}
