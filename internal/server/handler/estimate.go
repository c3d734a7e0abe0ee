package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// EstimateService is the query surface the cost handlers need.
type EstimateService interface {
	Book(depth int) domain.BookSnapshot
	BBO() (domain.BBO, bool)
	EstimateCost(ctx context.Context, targetUSD float64, feeTier string, volatility float64, symbol string) domain.CostEstimate
	Latest() (domain.CostEstimate, bool)
	Inputs() domain.EstimateRequest
	SetInputs(req domain.InputsUpdate) (domain.EstimateRequest, error)
	FeeTiers() []string
}

// EstimateHandler serves the book, estimate and input endpoints.
type EstimateHandler struct {
	svc    EstimateService
	logger *slog.Logger
}

// NewEstimateHandler creates an EstimateHandler.
func NewEstimateHandler(svc EstimateService, logger *slog.Logger) *EstimateHandler {
	return &EstimateHandler{svc: svc, logger: logger}
}

// defaultDepth is used when /api/book carries no depth parameter.
const defaultDepth = 20

type bookResponse struct {
	domain.BookSnapshot
	BestBid *float64 `json:"best_bid"`
	BestAsk *float64 `json:"best_ask"`
	Spread  *float64 `json:"spread"`
	Mid     *float64 `json:"mid_price"`
}

// GetBook returns the top of book plus depth levels per side.
// GET /api/book?depth=20 (depth=0 returns every level)
func (h *EstimateHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth := defaultDepth
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "depth must be a non-negative integer")
			return
		}
		depth = n
	}

	snap := h.svc.Book(depth)
	resp := bookResponse{BookSnapshot: snap}
	if bid, ok := snap.BestBid(); ok {
		resp.BestBid = domain.Float(bid.Price)
	}
	if ask, ok := snap.BestAsk(); ok {
		resp.BestAsk = domain.Float(ask.Price)
	}
	if spread, ok := snap.Spread(); ok {
		resp.Spread = domain.Float(spread)
	}
	if mid, ok := snap.Mid(); ok {
		resp.Mid = domain.Float(mid)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetLatest returns the estimate of the most recent recompute pass.
// GET /api/estimate
func (h *EstimateHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	est, ok := h.svc.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no estimate computed yet")
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// estimateRequest is the body of an ad hoc estimate. Omitted fields take the
// current recompute inputs.
type estimateRequest struct {
	QuantityUSD *float64 `json:"quantity_usd"`
	FeeTier     *string  `json:"fee_tier"`
	Volatility  *float64 `json:"volatility"`
	Symbol      *string  `json:"symbol"`
}

// PostEstimate prices a market buy against the current book without touching
// the recompute inputs.
// POST /api/estimate
func (h *EstimateHandler) PostEstimate(w http.ResponseWriter, r *http.Request) {
	var body estimateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := h.svc.Inputs()
	if body.QuantityUSD != nil {
		req.QuantityUSD = *body.QuantityUSD
	}
	if body.Volatility != nil {
		req.Volatility = *body.Volatility
	}
	if body.FeeTier != nil {
		req.FeeTier = *body.FeeTier
	}
	if body.Symbol != nil {
		req.Symbol = *body.Symbol
	}
	if !finiteNonNegative(req.QuantityUSD) || !finiteNonNegative(req.Volatility) {
		writeError(w, http.StatusBadRequest, "quantity_usd and volatility must be finite numbers >= 0")
		return
	}

	est := h.svc.EstimateCost(r.Context(), req.QuantityUSD, req.FeeTier, req.Volatility, req.Symbol)
	writeJSON(w, http.StatusOK, est)
}

// PutInputs changes the recompute inputs; the recompute loop debounces the
// change and publishes the new estimate.
// PUT /api/inputs
func (h *EstimateHandler) PutInputs(w http.ResponseWriter, r *http.Request) {
	var body domain.InputsUpdate
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inputs, err := h.svc.SetInputs(body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: set inputs rejected", slog.String("error", err.Error()))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, inputs)
}

// GetInputs returns the current recompute inputs.
// GET /api/inputs
func (h *EstimateHandler) GetInputs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Inputs())
}

// GetFeeTiers lists the configured fee tiers.
// GET /api/fees
func (h *EstimateHandler) GetFeeTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tiers": h.svc.FeeTiers()})
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
