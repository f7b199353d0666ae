package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfold/arbdesk/internal/domain"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may go without a pong before it is
	// forcibly terminated. pingPeriod must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256
)

// Conn is one client connection. A user may hold several at once; identity in
// the registry is the connection id, never the user id. Unauthenticated
// connections carry an empty UserID and the guest tier.
type Conn struct {
	ID     string
	UserID string
	Tier   domain.PlanTier

	registry *Registry
	sock     *websocket.Conn
	send     chan []byte
	logger   *slog.Logger

	mu         sync.Mutex
	closed     bool
	subs       map[string]bool
	provider   string
	lastActive time.Time
	lastPush   map[string]time.Time
}

// newConn builds a connection without starting its pumps, which lets the
// registry and channel logic be exercised against bare connections.
func newConn(id, userID string, tier domain.PlanTier) *Conn {
	return &Conn{
		ID:         id,
		UserID:     userID,
		Tier:       tier,
		send:       make(chan []byte, sendBufferSize),
		subs:       make(map[string]bool),
		lastActive: time.Now().UTC(),
		lastPush:   make(map[string]time.Time),
	}
}

// Authenticated reports whether the connection belongs to a known user.
func (c *Conn) Authenticated() bool {
	return c.UserID != ""
}

// Push queues an envelope for delivery. A full send buffer drops the frame
// rather than block the caller; slow clients lose pushes, not the connection.
// Pushes racing an unregister are dropped: the closed check and the send
// share the connection mutex with close, so the send channel is never written
// after it is closed.
func (c *Conn) Push(env Envelope) bool {
	frame := env.Encode()
	if frame == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		if c.logger != nil {
			c.logger.Warn("dropping frame for slow client",
				slog.String("conn_id", c.ID),
				slog.String("type", env.Type),
			)
		}
		return false
	}
}

// close closes the send channel exactly once. Broadcast snapshots release the
// registry lock before pushing, so the channel close must be serialized with
// Push through the connection mutex.
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// SubscribedTo reports whether the client asked for this symbol's prices.
func (c *Conn) SubscribedTo(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[symbol]
}

func (c *Conn) subscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		c.subs[s] = true
	}
}

func (c *Conn) unsubscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		delete(c.subs, s)
	}
}

// touch records client activity for the guest idle sweep.
func (c *Conn) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActive = time.Now().UTC()
}

func (c *Conn) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// allowPush enforces the per-symbol throttle: at most one delivery per symbol
// per interval on this connection.
func (c *Conn) allowPush(symbol string, interval time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastPush[symbol]; ok && now.Sub(last) < interval {
		return false
	}
	c.lastPush[symbol] = now
	return true
}

// readPump consumes inbound frames until the connection errors or the pong
// deadline lapses, then unregisters the connection.
func (c *Conn) readPump() {
	defer func() {
		c.registry.Unregister(c.ID)
		c.sock.Close()
	}()

	c.sock.SetReadLimit(maxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected close",
					slog.String("conn_id", c.ID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		c.touch()
		c.handleMessage(message)
	}
}

func (c *Conn) handleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.Push(NewEnvelope(TypeError, map[string]string{"error": "malformed message"}))
		return
	}

	switch msg.Type {
	case typeSubscribe:
		var p subscribePayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			c.subscribe(p.Symbols)
		}
	case typeUnsubscribe:
		var p subscribePayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			c.unsubscribe(p.Symbols)
		}
	case typePing:
		c.Push(NewEnvelope(TypePong, nil))
	case typeSetProvider:
		var p providerPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			c.mu.Lock()
			c.provider = p.Provider
			c.mu.Unlock()
		}
	default:
		c.Push(NewEnvelope(TypeError, map[string]string{"error": "unknown message type " + msg.Type}))
	}
}

// writePump writes queued frames and periodic pings. A failed write or ping
// terminates the connection; readPump's deferred unregister cleans up.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
