package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/service"
)

// EmergencyHandler exposes the kill switch.
type EmergencyHandler struct {
	emergency *service.EmergencyStopService
	logger    *slog.Logger
}

func NewEmergencyHandler(emergency *service.EmergencyStopService, logger *slog.Logger) *EmergencyHandler {
	return &EmergencyHandler{
		emergency: emergency,
		logger:    logger.With(slog.String("handler", "emergency")),
	}
}

type triggerRequest struct {
	Reason string `json:"reason"`
	// UserID scopes the stop to one user; empty means system-wide.
	UserID string `json:"user_id"`
}

// Trigger activates the emergency stop.
// POST /api/emergency-stop
func (h *EmergencyHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	event, err := h.emergency.Trigger(r.Context(), req.Reason, req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event": event})
}

// Resolve stamps an emergency event resolved and clears its scope flag.
// POST /api/emergency-stop/{id}/resolve
func (h *EmergencyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	event, err := h.emergency.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "emergency event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event": event})
}

// Status reports whether an emergency stop covers the given user.
// GET /api/emergency-stop/status?user_id=...
func (h *EmergencyHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	active, err := h.emergency.IsActive(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": active})
}
