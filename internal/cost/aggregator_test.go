package cost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

func newTestAggregator() *Aggregator {
	logger := testLogger()
	return NewAggregator(
		NewFeeSchedule(OKXTakerRates(), DefaultTakerRate, logger),
		NewImpactModel(0.5, map[string]float64{"BTC-USDT-SWAP": 1e6}, 0, logger),
		logger,
	)
}

func TestAggregator_CompleteEstimate(t *testing.T) {
	agg := newTestAggregator()
	req := domain.EstimateRequest{QuantityUSD: 400, FeeTier: "VIP 1", Volatility: 0.02, Symbol: "BTC-USDT-SWAP"}

	est := agg.Estimate(context.Background(), req, ladder())

	require.Equal(t, domain.EstimateOK, est.Status)
	require.NotNil(t, est.NetCostUSD)
	require.NotNil(t, est.ImpactUSD)

	wantSlipCost := 400 - est.AssetAcquired*100.5
	wantFee := 400 * 0.0008
	wantImpact := 0.5 * 0.02 * (400 / 1e6) * 400
	assert.InDelta(t, wantSlipCost, est.SlippageCostUSD, 1e-9)
	assert.InDelta(t, wantFee, est.FeeUSD, 1e-12)
	assert.InDelta(t, wantImpact, *est.ImpactUSD, 1e-12)
	assert.InDelta(t, wantSlipCost+wantFee+wantImpact, *est.NetCostUSD, 1e-9)
	assert.Equal(t, domain.ProportionTaker, est.MakerTakerProportion)
	assert.Equal(t, 100.5, est.MidPrice)
	assert.True(t, est.Complete())
	assert.False(t, est.ComputedAt.IsZero())
	assert.GreaterOrEqual(t, est.LatencyMicros, int64(0))
}

func TestAggregator_ZeroTargetForcesZero(t *testing.T) {
	agg := newTestAggregator()
	req := domain.EstimateRequest{QuantityUSD: 0, FeeTier: "VIP 1", Volatility: 0.02, Symbol: "BTC-USDT-SWAP"}

	for _, snap := range []domain.BookSnapshot{ladder(), {}} {
		est := agg.Estimate(context.Background(), req, snap)
		assert.Equal(t, domain.EstimateNoTrade, est.Status)
		require.NotNil(t, est.NetCostUSD)
		require.NotNil(t, est.ImpactUSD)
		require.NotNil(t, est.SlippagePct)
		assert.Zero(t, *est.NetCostUSD)
		assert.Zero(t, *est.ImpactUSD)
		assert.Zero(t, *est.SlippagePct)
		assert.Zero(t, est.FeeUSD)
		assert.Zero(t, est.SlippageCostUSD)
		assert.Equal(t, domain.ProportionNoTrade, est.MakerTakerProportion)
	}
}

func TestAggregator_IncompleteStates(t *testing.T) {
	agg := newTestAggregator()
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.EstimateRequest
		snap domain.BookSnapshot
	}{
		{
			name: "empty book",
			req:  domain.EstimateRequest{QuantityUSD: 100, FeeTier: "VIP 1", Volatility: 0.02, Symbol: "BTC-USDT-SWAP"},
			snap: domain.BookSnapshot{},
		},
		{
			name: "negative volatility",
			req:  domain.EstimateRequest{QuantityUSD: 100, FeeTier: "VIP 1", Volatility: -0.1, Symbol: "BTC-USDT-SWAP"},
			snap: ladder(),
		},
		{
			name: "negative quantity",
			req:  domain.EstimateRequest{QuantityUSD: -100, FeeTier: "VIP 1", Volatility: 0.02, Symbol: "BTC-USDT-SWAP"},
			snap: ladder(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := agg.Estimate(ctx, tt.req, tt.snap)
			assert.Equal(t, domain.EstimateIncomplete, est.Status)
			assert.Nil(t, est.NetCostUSD)
			assert.False(t, est.Complete())
		})
	}
}

func TestAggregator_OrderLargerThanBookStillEstimates(t *testing.T) {
	agg := newTestAggregator()
	req := domain.EstimateRequest{QuantityUSD: 1500, FeeTier: "VIP 1", Volatility: 0.02, Symbol: "BTC-USDT-SWAP"}

	est := agg.Estimate(context.Background(), req, ladder())

	require.Equal(t, domain.EstimateOK, est.Status)
	assert.InDelta(t, 1023.0, est.USDSpent, 1e-9)
	assert.InDelta(t, 1023.0-10*100.5, est.SlippageCostUSD, 1e-9)
	assert.InDelta(t, 1500*0.0008, est.FeeUSD, 1e-12)
}
