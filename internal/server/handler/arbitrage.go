package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/service"
)

// ArbHandler serves arbitrage execution requests.
type ArbHandler struct {
	coordinator *service.ArbCoordinator
	logger      *slog.Logger
}

func NewArbHandler(coordinator *service.ArbCoordinator, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{
		coordinator: coordinator,
		logger:      logger.With(slog.String("handler", "arbitrage")),
	}
}

type executeRequest struct {
	UserID         string  `json:"user_id"`
	MarketPair     string  `json:"market_pair"`
	PrimaryPrice   float64 `json:"primary_price"`
	SecondaryPrice float64 `json:"secondary_price"`
	SpreadBps      float64 `json:"spread_bps"`
	Confidence     float64 `json:"confidence"`
	SizeUSD        float64 `json:"size_usd"`
}

type executeResponse struct {
	Trade domain.Trade `json:"trade"`
	Error string       `json:"error,omitempty"`
}

// Execute runs the two-leg arbitrage for a detected opportunity.
// POST /api/arbitrage/execute
func (h *ArbHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.MarketPair == "" {
		writeError(w, http.StatusBadRequest, "user_id and market_pair are required")
		return
	}
	if req.SizeUSD <= 0 {
		writeError(w, http.StatusBadRequest, "size_usd must be positive")
		return
	}

	opp := domain.Opportunity{
		ID:             uuid.NewString(),
		MarketPair:     req.MarketPair,
		PrimaryPrice:   req.PrimaryPrice,
		SecondaryPrice: req.SecondaryPrice,
		SpreadBps:      req.SpreadBps,
		Confidence:     req.Confidence,
		DetectedAt:     time.Now().UTC(),
	}

	trade, err := h.coordinator.CoordinateArb(r.Context(), req.UserID, opp, req.SizeUSD)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAdmissionRejected):
			writeJSON(w, http.StatusUnprocessableEntity, executeResponse{Trade: trade, Error: err.Error()})
		case errors.Is(err, domain.ErrOneSidedPosition):
			// The position needs manual attention; surface the trade so the
			// operator can act on it.
			writeJSON(w, http.StatusConflict, executeResponse{Trade: trade, Error: err.Error()})
		case errors.Is(err, domain.ErrRateLimited):
			writeJSON(w, http.StatusTooManyRequests, executeResponse{Trade: trade, Error: err.Error()})
		default:
			h.logger.ErrorContext(r.Context(), "execution failed",
				slog.String("market_pair", req.MarketPair),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusBadGateway, executeResponse{Trade: trade, Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{Trade: trade})
}
