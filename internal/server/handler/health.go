package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks connectivity of one backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	db        Pinger
	cache     Pinger
	startedAt time.Time
}

func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, startedAt: time.Now().UTC()}
}

// HealthCheck reports overall status plus per-dependency results.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{}
	status := http.StatusOK

	check := func(name string, p Pinger) {
		if p == nil {
			components[name] = "not configured"
			return
		}
		if err := p.Ping(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			return
		}
		components[name] = "ok"
	}
	check("postgres", h.db)
	check("redis", h.cache)

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status":         overall,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"components":     components,
	})
}
