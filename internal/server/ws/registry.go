package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quantfold/arbdesk/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS middleware in front.
		return true
	},
}

// RegistryConfig holds the guest eviction parameters.
type RegistryConfig struct {
	GuestIdleWindow time.Duration
	SweepInterval   time.Duration
}

// Registry owns every live connection on this instance, keyed by connection
// id. One user may hold several connections. Guest connections idle beyond
// the configured window are evicted by a periodic sweep.
type Registry struct {
	cfg    RegistryConfig
	logger *slog.Logger

	mu     sync.RWMutex
	conns  map[string]*Conn
	byUser map[string]map[string]*Conn
}

func NewRegistry(cfg RegistryConfig, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ws_registry")),
		conns:  make(map[string]*Conn),
		byUser: make(map[string]map[string]*Conn),
	}
}

// Register adds the connection to the registry.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	r.conns[c.ID] = c
	if c.UserID != "" {
		set, ok := r.byUser[c.UserID]
		if !ok {
			set = make(map[string]*Conn)
			r.byUser[c.UserID] = set
		}
		set[c.ID] = c
	}
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Info("connection registered",
		slog.String("conn_id", c.ID),
		slog.String("user_id", c.UserID),
		slog.String("tier", c.Tier.String()),
		slog.Int("total", total),
	)
}

// Unregister removes the connection and closes its send channel. Unknown ids
// are ignored so the read and write pumps can both trigger cleanup safely.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		if c.UserID != "" {
			if set, ok := r.byUser[c.UserID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(r.byUser, c.UserID)
				}
			}
		}
		c.close()
	}
	total := len(r.conns)
	r.mu.Unlock()

	if ok {
		r.logger.Info("connection unregistered",
			slog.String("conn_id", id),
			slog.Int("total", total),
		)
	}
}

// Get returns the connection with the given id.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// ConnsOfUser returns all live connections of one user.
func (r *Registry) ConnsOfUser(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast pushes the envelope to every connection matching the predicate.
// A nil predicate matches everything.
func (r *Registry) Broadcast(pred func(*Conn) bool, env Envelope) int {
	r.mu.RLock()
	targets := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		if pred == nil || pred(c) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Push(env) {
			delivered++
		}
	}
	return delivered
}

// BroadcastToUser pushes the envelope to every connection of one user.
func (r *Registry) BroadcastToUser(userID string, env Envelope) int {
	delivered := 0
	for _, c := range r.ConnsOfUser(userID) {
		if c.Push(env) {
			delivered++
		}
	}
	return delivered
}

// PushEmergency delivers an emergency notice to local connections: every
// connection on the system scope, one user's connections otherwise. This is
// the direct-push shortcut; cross-instance delivery rides the signal bus.
func (r *Registry) PushEmergency(notice domain.EmergencyNotice) {
	env := NewEnvelope(TypeEmergencyStop, notice)
	if notice.Scope == domain.ScopeSystem {
		r.Broadcast(nil, env)
		return
	}
	r.BroadcastToUser(notice.Scope, env)
}

// Run sweeps idle guest connections until the context is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(time.Now().UTC())
		}
	}
}

// sweep evicts guest connections idle beyond the configured window.
func (r *Registry) sweep(now time.Time) int {
	r.mu.RLock()
	var stale []*Conn
	for _, c := range r.conns {
		if !c.Authenticated() && now.Sub(c.idleSince()) > r.cfg.GuestIdleWindow {
			stale = append(stale, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range stale {
		if c.sock != nil {
			c.sock.Close()
		}
		r.Unregister(c.ID)
		r.logger.Info("idle guest evicted", slog.String("conn_id", c.ID))
	}
	return len(stale)
}

// HandleWS upgrades the request and starts the connection pumps. Identity is
// resolved by the auth middleware before the upgrade; unauthenticated
// requests are accepted at the guest tier.
// GET /ws
func (r *Registry) HandleWS(w http.ResponseWriter, req *http.Request, userID string, tier domain.PlanTier) {
	sock, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newConn(uuid.NewString(), userID, tier)
	c.registry = r
	c.sock = sock
	c.logger = r.logger

	r.Register(c)

	go c.writePump()
	go c.readPump()
}
