package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// ModelService exposes the slippage model.
type ModelService interface {
	ModelStatus() domain.ModelStatus
	Predict(features []float64) (float64, error)
	PredictForOrder(orderUSD float64) (float64, error)
}

// ModelHandler serves the model endpoints.
type ModelHandler struct {
	svc    ModelService
	logger *slog.Logger
}

// NewModelHandler creates a ModelHandler.
func NewModelHandler(svc ModelService, logger *slog.Logger) *ModelHandler {
	return &ModelHandler{svc: svc, logger: logger}
}

// GetModel returns whether the model is trained, its buffer fill and the
// metrics of the last training run.
// GET /api/model
func (h *ModelHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ModelStatus())
}

// predictRequest carries either an explicit feature vector
// [order_size_usd, spread_bps, depth_best_ask_usd] or just an order size,
// in which case market features come from the current book.
type predictRequest struct {
	Features     []float64 `json:"features"`
	OrderSizeUSD *float64  `json:"order_size_usd"`
}

type predictResponse struct {
	PredictedSlippagePct float64 `json:"predicted_slippage_pct"`
}

// Predict evaluates the model.
// POST /api/model/predict
func (h *ModelHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var body predictRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		pred float64
		err  error
	)
	switch {
	case body.Features != nil && body.OrderSizeUSD != nil:
		writeError(w, http.StatusBadRequest, "set either features or order_size_usd, not both")
		return
	case body.Features != nil:
		pred, err = h.svc.Predict(body.Features)
	case body.OrderSizeUSD != nil:
		pred, err = h.svc.PredictForOrder(*body.OrderSizeUSD)
	default:
		writeError(w, http.StatusBadRequest, "features or order_size_usd is required")
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{PredictedSlippagePct: pred})
}
