package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/service"
)

// TradeHandler serves trade reads and manual closes.
type TradeHandler struct {
	trades *service.TradeService
	logger *slog.Logger
}

func NewTradeHandler(trades *service.TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger.With(slog.String("handler", "trades")),
	}
}

// GetTrade returns the trade with its leg timeline.
// GET /api/trades/{id}
func (h *TradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	trade, legs, err := h.trades.Timeline(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trade not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trade": trade,
		"legs":  legs,
	})
}

// ListTrades returns a user's trades.
// GET /api/trades?user_id=...
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	trades, err := h.trades.ListByUser(r.Context(), userID, parseListOpts(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

type closeRequest struct {
	Reason string `json:"reason"`
}

// CloseTrade closes an open trade with the operator's reason.
// POST /api/trades/{id}/close
func (h *TradeHandler) CloseTrade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req closeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "manual close"
	}

	trade, err := h.trades.Close(r.Context(), id, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "trade not found")
		case errors.Is(err, domain.ErrTradeTerminal):
			writeError(w, http.StatusConflict, "trade already in a terminal status")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"trade": trade})
}
