package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

func book(bids, asks [][2]float64) domain.BookSnapshot {
	snap := domain.BookSnapshot{Symbol: "BTC-USDT-SWAP", Exchange: "OKX"}
	for _, b := range bids {
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: b[0], Quantity: b[1]})
	}
	for _, a := range asks {
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: a[0], Quantity: a[1]})
	}
	return snap
}

func ladder() domain.BookSnapshot {
	return book([][2]float64{{100, 10}}, [][2]float64{{101, 2}, {102, 3}, {103, 5}})
}

func TestSimulateBuy_PartialFirstLevel(t *testing.T) {
	snap := book([][2]float64{{100, 10}}, [][2]float64{{101, 10}, {102, 5}})

	res := SimulateBuy(101, snap)

	require.NotNil(t, res.SlippagePct)
	require.NotNil(t, res.AvgExecPrice)
	assert.InDelta(t, 1.0, res.AssetAcquired, 1e-9)
	assert.InDelta(t, 101.0, res.USDSpent, 1e-9)
	assert.InDelta(t, 101.0, *res.AvgExecPrice, 1e-9)
	assert.InDelta(t, 0.4975, *res.SlippagePct, 1e-4)
	assert.InDelta(t, 100.5, res.ReferencePrice, 1e-12)
}

func TestSimulateBuy_WalksIntoSecondLevel(t *testing.T) {
	res := SimulateBuy(400, ladder())

	require.NotNil(t, res.SlippagePct)
	assert.InDelta(t, 3.9412, res.AssetAcquired, 1e-4)
	assert.InDelta(t, 400.0, res.USDSpent, 1e-9)
	assert.InDelta(t, 101.4925, *res.AvgExecPrice, 1e-4)
	assert.InDelta(t, 0.9875, *res.SlippagePct, 1e-4)
}

func TestSimulateBuy_ExhaustsBook(t *testing.T) {
	res := SimulateBuy(1500, ladder())

	require.NotNil(t, res.SlippagePct)
	assert.InDelta(t, 10.0, res.AssetAcquired, 1e-9)
	assert.InDelta(t, 1023.0, res.USDSpent, 1e-9)
	assert.InDelta(t, 102.30, *res.AvgExecPrice, 1e-9)
	assert.InDelta(t, 1.7910, *res.SlippagePct, 1e-4)
}

func TestSimulateBuy_EmptyAsks(t *testing.T) {
	snap := book([][2]float64{{100, 10}}, nil)
	for _, target := range []float64{0.01, 1, 1e6} {
		res := SimulateBuy(target, snap)
		assert.Nil(t, res.SlippagePct)
		assert.Nil(t, res.AvgExecPrice)
		assert.Zero(t, res.AssetAcquired)
		assert.Zero(t, res.USDSpent)
	}
}

func TestSimulateBuy_EmptyBids(t *testing.T) {
	res := SimulateBuy(100, book(nil, [][2]float64{{101, 1}}))
	assert.Nil(t, res.SlippagePct)
	assert.Nil(t, res.AvgExecPrice)
}

func TestSimulateBuy_NonPositiveTarget(t *testing.T) {
	for _, target := range []float64{0, -1, -1e9} {
		res := SimulateBuy(target, ladder())
		require.NotNil(t, res.SlippagePct, "target %v", target)
		assert.Equal(t, 0.0, *res.SlippagePct)
		assert.Nil(t, res.AvgExecPrice)
		assert.Zero(t, res.AssetAcquired)
		assert.Zero(t, res.USDSpent)
	}
	// Also holds for an empty book.
	res := SimulateBuy(0, domain.BookSnapshot{})
	require.NotNil(t, res.SlippagePct)
	assert.Equal(t, 0.0, *res.SlippagePct)
}

func TestSimulateBuy_CrossedBookUsesBestAsk(t *testing.T) {
	snap := book([][2]float64{{102, 1}}, [][2]float64{{101, 10}})

	res := SimulateBuy(101, snap)

	assert.True(t, res.Crossed)
	assert.Equal(t, 101.0, res.ReferencePrice)
	require.NotNil(t, res.SlippagePct)
	assert.InDelta(t, 0.0, *res.SlippagePct, 1e-9)
}

func TestSimulateBuy_AvgTimesAssetMatchesSpend(t *testing.T) {
	snap := ladder()
	for target := 1.0; target <= 1100; target += 37.3 {
		res := SimulateBuy(target, snap)
		require.NotNil(t, res.AvgExecPrice)
		got := *res.AvgExecPrice * res.AssetAcquired
		assert.InEpsilon(t, res.USDSpent, got, 1e-6, "target %v", target)
	}
}

func TestSimulateBuy_SlippageNonDecreasingInTarget(t *testing.T) {
	snap := ladder()
	prev := math.Inf(-1)
	for target := 0.5; target <= 1200; target += 11.5 {
		res := SimulateBuy(target, snap)
		require.NotNil(t, res.SlippagePct)
		assert.GreaterOrEqual(t, *res.SlippagePct, prev-1e-12, "target %v", target)
		prev = *res.SlippagePct
	}
}

func TestSimulateBuy_Deterministic(t *testing.T) {
	a := SimulateBuy(400, ladder())
	b := SimulateBuy(400, ladder())
	assert.Equal(t, a, b)
}

func TestMarketFeatures(t *testing.T) {
	spread, depth, ok := MarketFeatures(ladder())
	require.True(t, ok)
	assert.InDelta(t, 1.0/100.5*10_000, spread, 1e-9)
	assert.InDelta(t, 202.0, depth, 1e-9)

	_, _, ok = MarketFeatures(book(nil, [][2]float64{{101, 1}}))
	assert.False(t, ok)
}

func TestProbe(t *testing.T) {
	sample, ok := Probe(400, ladder())
	require.True(t, ok)
	assert.Equal(t, 400.0, sample.OrderSizeUSD)
	assert.InDelta(t, 0.9875, sample.TargetSlippagePct, 1e-4)
	assert.Len(t, sample.Features(), domain.FeatureDimension)

	_, ok = Probe(100, book([][2]float64{{100, 1}}, nil))
	assert.False(t, ok)
}

func TestProbe_RejectsOrdersBeyondDepth(t *testing.T) {
	full, ok := Probe(1023, ladder())
	require.True(t, ok, "exactly the fillable notional")
	assert.Equal(t, 1023.0, full.OrderSizeUSD)

	for _, size := range []float64{1023.5, 1500, 5000} {
		_, ok := Probe(size, ladder())
		assert.False(t, ok, "%v USD exceeds the book", size)
	}
}

func TestFillableUSD(t *testing.T) {
	assert.InDelta(t, 1023.0, FillableUSD(ladder()), 1e-9)
}
