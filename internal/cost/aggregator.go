package cost

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// Aggregator combines walk-the-book slippage, fees and market impact into a
// single CostEstimate.
type Aggregator struct {
	fees   *FeeSchedule
	impact *ImpactModel
	logger *slog.Logger
}

// NewAggregator wires the fee and impact estimators.
func NewAggregator(fees *FeeSchedule, impact *ImpactModel, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		fees:   fees,
		impact: impact,
		logger: logger.With(slog.String("component", "aggregator")),
	}
}

// Fees returns the fee schedule the aggregator uses.
func (a *Aggregator) Fees() *FeeSchedule { return a.fees }

// Estimate prices a market buy of req.QuantityUSD against snap. It never
// fails: missing inputs surface as nil fields and an incomplete status.
func (a *Aggregator) Estimate(ctx context.Context, req domain.EstimateRequest, snap domain.BookSnapshot) domain.CostEstimate {
	start := time.Now()

	sim := SimulateBuy(req.QuantityUSD, snap)
	if sim.Crossed {
		a.logger.WarnContext(ctx, "aggregator: crossed book, using best ask as reference",
			slog.Float64("reference_price", sim.ReferencePrice),
		)
	}
	if req.QuantityUSD > 0 && sim.SlippagePct == nil {
		if snap.Empty() {
			a.logger.DebugContext(ctx, "aggregator: no book data")
		} else {
			a.logger.WarnContext(ctx, "aggregator: order exceeds walkable depth",
				slog.Float64("quantity_usd", req.QuantityUSD),
				slog.Float64("fillable_usd", FillableUSD(snap)),
			)
		}
	}

	fee := a.fees.Fee(ctx, req.QuantityUSD, req.FeeTier)
	impact, impactOK := a.impact.Impact(ctx, req.QuantityUSD, req.Volatility, req.Symbol)

	est := domain.CostEstimate{
		Request:              req,
		SlippagePct:          sim.SlippagePct,
		AvgExecPrice:         sim.AvgExecPrice,
		AssetAcquired:        sim.AssetAcquired,
		USDSpent:             sim.USDSpent,
		MidPrice:             sim.ReferencePrice,
		FeeUSD:               fee,
		MakerTakerProportion: domain.ProportionNoTrade,
		BookTimestamp:        snap.Timestamp,
	}
	if sim.AssetAcquired > 0 {
		est.SlippageCostUSD = sim.USDSpent - sim.AssetAcquired*sim.ReferencePrice
		est.MakerTakerProportion = domain.ProportionTaker
	}
	if impactOK {
		est.ImpactUSD = domain.Float(impact)
	}

	switch {
	case req.QuantityUSD == 0:
		est.SlippagePct = domain.Float(0)
		est.SlippageCostUSD = 0
		est.FeeUSD = 0
		est.ImpactUSD = domain.Float(0)
		est.NetCostUSD = domain.Float(0)
		est.Status = domain.EstimateNoTrade
	case sim.SlippagePct != nil && validAmount(req.QuantityUSD) && impactOK:
		est.NetCostUSD = domain.Float(est.SlippageCostUSD + est.FeeUSD + impact)
		est.Status = domain.EstimateOK
	default:
		est.Status = domain.EstimateIncomplete
	}

	est.ComputedAt = time.Now().UTC()
	est.LatencyMicros = time.Since(start).Microseconds()
	return est
}
