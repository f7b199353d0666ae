package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/quantfold/arbdesk/internal/domain"
)

// Channels translates backend signal-bus topics into filtered, throttled
// client pushes. Each topic is an independent subscriber; routing rules:
//
//	prices:{symbol}  subscribers of that symbol, throttled per symbol+conn
//	whales           all authenticated connections
//	agent:logs       info to everyone, warning/alert to paid tiers only
//	trades:updates   all authenticated connections
//	emergency:*      one user's connections, or everyone on system scope
type Channels struct {
	registry *Registry
	bus      domain.SignalBus
	throttle time.Duration
	logger   *slog.Logger
}

func NewChannels(registry *Registry, bus domain.SignalBus, throttle time.Duration, logger *slog.Logger) *Channels {
	return &Channels{
		registry: registry,
		bus:      bus,
		throttle: throttle,
		logger:   logger.With(slog.String("component", "ws_channels")),
	}
}

// Run subscribes every channel and forwards until the context is cancelled.
func (c *Channels) Run(ctx context.Context) error {
	routes := map[string]func([]byte){
		domain.TopicPricePrefix + "*": c.HandlePrice,
		domain.TopicWhales:            c.HandleWhale,
		domain.TopicAgentLogs:         c.HandleAgentLog,
		domain.TopicTradeUpdates:      c.HandleTradeUpdate,
		domain.TopicEmergencyAll:      c.HandleEmergency,
	}
	for topic, handle := range routes {
		go c.forward(ctx, topic, handle)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *Channels) forward(ctx context.Context, topic string, handle func([]byte)) {
	msgs, err := c.bus.Subscribe(ctx, topic)
	if err != nil {
		c.logger.Error("subscribe failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.Info("subscribed", slog.String("topic", topic))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				c.logger.Warn("subscription closed", slog.String("topic", topic))
				return
			}
			handle(data)
		}
	}
}

// HandlePrice routes a market price update to subscribers of its symbol,
// delivering at most once per symbol per connection per throttle interval.
func (c *Channels) HandlePrice(data []byte) {
	var update domain.PriceUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		c.logger.Warn("malformed price update", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	env := NewEnvelope(TypeMarketUpdate, update)
	c.registry.Broadcast(func(conn *Conn) bool {
		return conn.SubscribedTo(update.Symbol) && conn.allowPush(update.Symbol, c.throttle, now)
	}, env)
}

// HandleWhale routes a whale alert to all authenticated connections.
func (c *Channels) HandleWhale(data []byte) {
	var alert domain.WhaleAlert
	if err := json.Unmarshal(data, &alert); err != nil {
		c.logger.Warn("malformed whale alert", slog.String("error", err.Error()))
		return
	}

	c.registry.Broadcast(func(conn *Conn) bool {
		return conn.Authenticated()
	}, NewEnvelope(TypeWhaleAlert, alert))
}

// HandleAgentLog routes a log line by severity: informational lines go to
// everyone, elevated severities only to paid tiers.
func (c *Channels) HandleAgentLog(data []byte) {
	var entry domain.AgentLog
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("malformed agent log", slog.String("error", err.Error()))
		return
	}

	elevated := entry.Severity == "warning" || entry.Severity == "alert"
	c.registry.Broadcast(func(conn *Conn) bool {
		if !elevated {
			return true
		}
		return conn.Tier >= domain.TierPro
	}, NewEnvelope(TypeAgentLog, entry))
}

// HandleTradeUpdate routes trade status changes to authenticated connections.
func (c *Channels) HandleTradeUpdate(data []byte) {
	var update domain.TradeUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		c.logger.Warn("malformed trade update", slog.String("error", err.Error()))
		return
	}

	c.registry.Broadcast(func(conn *Conn) bool {
		return conn.Authenticated()
	}, NewEnvelope(TypeTradeUpdate, update))
}

// HandleEmergency routes an emergency notice by its scope.
func (c *Channels) HandleEmergency(data []byte) {
	var notice domain.EmergencyNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		c.logger.Warn("malformed emergency notice", slog.String("error", err.Error()))
		return
	}
	c.registry.PushEmergency(notice)
}
