package domain

import "time"

// ScopeSystem is the reserved scope identifier for a system-wide emergency
// stop. Any other scope value is a user ID.
const ScopeSystem = "system"

// EmergencyEvent is the immutable audit record of one kill-switch activation.
// It is only ever created and, on resolution, stamped with ResolvedAt.
type EmergencyEvent struct {
	ID           string
	Scope        string
	Reason       string
	TradesClosed int
	Metadata     map[string]any
	TriggeredAt  time.Time
	ResolvedAt   *time.Time
}

// Active reports whether the event has not been resolved yet.
func (e EmergencyEvent) Active() bool {
	return e.ResolvedAt == nil
}

// EmergencyNotice is the payload published on the scope-keyed emergency topic
// and pushed to live connections.
type EmergencyNotice struct {
	Scope          string    `json:"scope"`
	Reason         string    `json:"reason"`
	TradesAffected int       `json:"tradesAffected"`
	Timestamp      time.Time `json:"timestamp"`
}
