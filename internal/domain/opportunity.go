package domain

import "time"

// RiskRegime is the risk classification label produced by the external signal
// source. A critical regime blocks all new orders at the admission gate.
type RiskRegime string

const (
	RegimeCalm     RiskRegime = "calm"
	RegimeElevated RiskRegime = "elevated"
	RegimeCritical RiskRegime = "critical"
)

// PlanTier orders user subscription tiers. Guest is the tier of
// unauthenticated realtime connections.
type PlanTier int

const (
	TierGuest PlanTier = iota
	TierFree
	TierPro
)

// String returns the tier name used in config and client payloads.
func (t PlanTier) String() string {
	switch t {
	case TierGuest:
		return "guest"
	case TierFree:
		return "free"
	case TierPro:
		return "pro"
	}
	return "unknown"
}

// ParseTier maps a tier name onto a PlanTier, defaulting to guest.
func ParseTier(s string) PlanTier {
	switch s {
	case "free":
		return TierFree
	case "pro":
		return TierPro
	}
	return TierGuest
}

// Opportunity describes a detected cross-venue spread handed to the
// coordinator. Spread computation itself is an external collaborator; the
// coordinator only consumes the resulting quote pair.
type Opportunity struct {
	ID             string
	MarketPair     string
	PrimaryPrice   float64
	SecondaryPrice float64
	SpreadBps      float64
	Confidence     float64
	DetectedAt     time.Time
}
