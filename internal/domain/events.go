package domain

import "time"

// Pub/sub topic names. The emergency topic is scope-keyed; channels subscribe
// with the wildcard form.
const (
	TopicTradeUpdates   = "trades:updates"
	TopicWhales         = "whales"
	TopicAgentLogs      = "agent:logs"
	TopicPricePrefix    = "prices:"
	TopicEmergencyAll   = "emergency:*"
	topicEmergencyBase  = "emergency:"
)

// PriceTopic returns the symbol-suffixed market price topic.
func PriceTopic(symbol string) string {
	return TopicPricePrefix + symbol
}

// EmergencyTopic returns the scope-keyed emergency topic. An empty scope maps
// to the reserved system broadcast key.
func EmergencyTopic(scope string) string {
	if scope == "" {
		scope = ScopeSystem
	}
	return topicEmergencyBase + scope
}

// TradeUpdate is the envelope published on TopicTradeUpdates whenever a trade
// reaches a new status.
type TradeUpdate struct {
	TradeID   string      `json:"trade_id"`
	Status    TradeStatus `json:"status"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// PriceUpdate is the payload published on the symbol-suffixed price topics by
// the market-data collaborator.
type PriceUpdate struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	Timestamp time.Time `json:"timestamp"`
}

// WhaleAlert is the payload published on TopicWhales for large movements.
type WhaleAlert struct {
	Symbol    string    `json:"symbol"`
	AmountUSD float64   `json:"amount_usd"`
	Direction string    `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentLog is a system/agent log line published on TopicAgentLogs. Severity
// is one of "info", "warning", "alert"; elevated severities are delivered only
// to paid-tier connections.
type AgentLog struct {
	Severity  string    `json:"severity"`
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
