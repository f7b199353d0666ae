package ws

import (
	"encoding/json"
	"time"
)

// Outbound envelope types.
const (
	TypeMarketUpdate  = "market-update"
	TypeWhaleAlert    = "whale-alert"
	TypeAgentLog      = "agent-log"
	TypeAlphaUpdate   = "alpha-update"
	TypeTradeUpdate   = "trade-update"
	TypeEmergencyStop = "emergency-stop"
	TypePong          = "pong"
	TypeError         = "error"
)

// Inbound message types.
const (
	typeSubscribe   = "subscribe-symbol"
	typeUnsubscribe = "unsubscribe-symbol"
	typePing        = "ping"
	typeSetProvider = "set-preferred-provider"
)

// Envelope is the JSON frame exchanged with clients. Every outbound push
// carries a type tag, the typed payload, and a server timestamp.
type Envelope struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope stamps an envelope with the current time.
func NewEnvelope(typ string, payload any) Envelope {
	return Envelope{Type: typ, Payload: payload, Timestamp: time.Now().UTC()}
}

// Encode renders the envelope as a JSON frame. A payload that cannot marshal
// is a programming error; Encode returns nil and the caller drops the frame.
func (e Envelope) Encode() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// clientMessage is the inbound frame from a client.
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// subscribePayload carries the symbols for subscribe/unsubscribe requests.
type subscribePayload struct {
	Symbols []string `json:"symbols"`
}

// providerPayload carries the preferred market-data provider selection.
type providerPayload struct {
	Provider string `json:"provider"`
}
