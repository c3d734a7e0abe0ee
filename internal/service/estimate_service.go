// Package service holds the long-running application services: the
// recompute loop, probe sampling and recording, connectivity tracking,
// book mirroring, archiving, and the query surface used by the API.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/tradecost/internal/cost"
	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/model"
)

// BookView is the read side of the live order book.
type BookView interface {
	DepthReader
	Snapshot() domain.BookSnapshot
	BestBid() (domain.PriceLevel, bool)
	BestAsk() (domain.PriceLevel, bool)
	Spread() (float64, bool)
	BBO() (domain.BBO, bool)
	Symbol() string
}

// EstimateService is the query surface over the live book, the estimators
// and the slippage model.
type EstimateService struct {
	book       BookView
	agg        *cost.Aggregator
	model      *model.SlippageModel
	recomputer *Recomputer
	logger     *slog.Logger
}

// NewEstimateService creates an EstimateService. m and rc may be nil.
func NewEstimateService(book BookView, agg *cost.Aggregator, m *model.SlippageModel, rc *Recomputer, logger *slog.Logger) *EstimateService {
	return &EstimateService{
		book:       book,
		agg:        agg,
		model:      m,
		recomputer: rc,
		logger:     logger.With(slog.String("component", "estimate_service")),
	}
}

// GetBestBid returns the highest bid.
func (s *EstimateService) GetBestBid() (domain.PriceLevel, bool) { return s.book.BestBid() }

// GetBestAsk returns the lowest ask.
func (s *EstimateService) GetBestAsk() (domain.PriceLevel, bool) { return s.book.BestAsk() }

// GetSpread returns best ask minus best bid.
func (s *EstimateService) GetSpread() (float64, bool) { return s.book.Spread() }

// Book returns the top depth levels per side; depth <= 0 returns all.
func (s *EstimateService) Book(depth int) domain.BookSnapshot {
	return s.book.SnapshotDepth(depth)
}

// BBO returns the best bid/offer summary.
func (s *EstimateService) BBO() (domain.BBO, bool) { return s.book.BBO() }

// EstimateCost prices an ad hoc market buy against the current book. An
// empty symbol means the book's own symbol.
func (s *EstimateService) EstimateCost(ctx context.Context, targetUSD float64, feeTier string, volatility float64, symbol string) domain.CostEstimate {
	if symbol == "" {
		symbol = s.book.Symbol()
	}
	req := domain.EstimateRequest{
		QuantityUSD: targetUSD,
		FeeTier:     feeTier,
		Volatility:  volatility,
		Symbol:      symbol,
	}
	snap := s.book.Snapshot()
	est := s.agg.Estimate(ctx, req, snap)
	if pred, ok := predictFor(s.model, targetUSD, snap); ok {
		est.PredictedSlippagePct = domain.Float(pred)
	}
	return est
}

// Latest returns the estimate of the most recent recompute pass.
func (s *EstimateService) Latest() (domain.CostEstimate, bool) {
	if s.recomputer == nil {
		return domain.CostEstimate{}, false
	}
	return s.recomputer.Latest()
}

// Inputs returns the current recompute inputs.
func (s *EstimateService) Inputs() domain.EstimateRequest {
	if s.recomputer == nil {
		return domain.EstimateRequest{}
	}
	return s.recomputer.Inputs()
}

// SetInputs validates req, merges it into the current inputs and hands the
// result to the recompute loop.
func (s *EstimateService) SetInputs(req domain.InputsUpdate) (domain.EstimateRequest, error) {
	if s.recomputer == nil {
		return domain.EstimateRequest{}, fmt.Errorf("service: recompute loop not running: %w", domain.ErrInvalidInput)
	}
	cur := s.recomputer.Inputs()
	if req.QuantityUSD != nil {
		if !validNonNegative(*req.QuantityUSD) {
			return cur, fmt.Errorf("service: quantity_usd must be a finite number >= 0: %w", domain.ErrInvalidInput)
		}
		cur.QuantityUSD = *req.QuantityUSD
	}
	if req.Volatility != nil {
		if !validNonNegative(*req.Volatility) {
			return cur, fmt.Errorf("service: volatility must be a finite number >= 0: %w", domain.ErrInvalidInput)
		}
		cur.Volatility = *req.Volatility
	}
	if req.FeeTier != nil {
		if !s.agg.Fees().Known(*req.FeeTier) {
			s.logger.Warn("service: unknown fee tier, default taker rate applies", slog.String("tier", *req.FeeTier))
		}
		cur.FeeTier = *req.FeeTier
	}
	if req.Symbol != nil {
		cur.Symbol = *req.Symbol
	}
	s.recomputer.SetInputs(cur)
	return cur, nil
}

// FeeTiers lists the configured fee tiers.
func (s *EstimateService) FeeTiers() []string { return s.agg.Fees().Tiers() }

// ModelStatus reports the slippage model state.
func (s *EstimateService) ModelStatus() domain.ModelStatus {
	if s.model == nil {
		return domain.ModelStatus{}
	}
	return s.model.Status()
}

// Predict evaluates the slippage model on an explicit feature vector.
func (s *EstimateService) Predict(features []float64) (float64, error) {
	if len(features) != domain.FeatureDimension {
		return 0, fmt.Errorf("service: want %d features, got %d: %w", domain.FeatureDimension, len(features), domain.ErrDimension)
	}
	if s.model == nil {
		return 0, domain.ErrModelUntrained
	}
	v, ok := s.model.Predict(features)
	if !ok {
		if !s.model.IsTrained() {
			return 0, domain.ErrModelUntrained
		}
		return 0, fmt.Errorf("service: features must be finite: %w", domain.ErrInvalidInput)
	}
	return v, nil
}

// PredictForOrder predicts the slippage of a buy of orderUSD in the current
// market.
func (s *EstimateService) PredictForOrder(orderUSD float64) (float64, error) {
	if !validNonNegative(orderUSD) || orderUSD == 0 {
		return 0, fmt.Errorf("service: order_size_usd must be > 0: %w", domain.ErrInvalidInput)
	}
	spread, depth, ok := cost.MarketFeatures(s.book.Snapshot())
	if !ok {
		return 0, domain.ErrEmptyBook
	}
	return s.Predict([]float64{orderUSD, spread, depth})
}

func validNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
