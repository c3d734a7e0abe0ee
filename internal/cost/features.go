package cost

import "github.com/alanyoungcy/tradecost/internal/domain"

// MarketFeatures returns the spread in basis points of mid and the notional
// resting at the best ask. ok is false when either side is empty.
func MarketFeatures(snap domain.BookSnapshot) (spreadBps, depthBestAskUSD float64, ok bool) {
	bid, okBid := snap.BestBid()
	ask, okAsk := snap.BestAsk()
	if !okBid || !okAsk {
		return 0, 0, false
	}
	mid := (ask.Price + bid.Price) / 2
	if mid <= 0 {
		return 0, 0, false
	}
	return (ask.Price - bid.Price) / mid * 10_000, ask.Notional(), true
}

// fillTolerance is the unspent budget, in USD, below which a probe walk
// counts as fully filled.
const fillTolerance = 1e-6

// Probe walks the book at orderUSD and packages the outcome with the
// market features. ok is false when the walk produced no slippage figure or
// ran out of asks before spending orderUSD, since the slippage of a partial
// fill does not belong to the requested size.
func Probe(orderUSD float64, snap domain.BookSnapshot) (domain.ProbeSample, bool) {
	spreadBps, depth, ok := MarketFeatures(snap)
	if !ok {
		return domain.ProbeSample{}, false
	}
	res := SimulateBuy(orderUSD, snap)
	if res.SlippagePct == nil || res.AssetAcquired == 0 {
		return domain.ProbeSample{}, false
	}
	if res.USDSpent < orderUSD-fillTolerance {
		return domain.ProbeSample{}, false
	}
	return domain.ProbeSample{
		OrderSizeUSD:      orderUSD,
		SpreadBps:         spreadBps,
		DepthBestAskUSD:   depth,
		TargetSlippagePct: *res.SlippagePct,
	}, true
}
