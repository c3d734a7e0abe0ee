// Package cost estimates the transaction cost of a market buy against an
// order-book snapshot: walk-the-book slippage, taker fees, market impact and
// their aggregate.
package cost

import (
	"github.com/alanyoungcy/tradecost/internal/domain"
)

// epsilon is the remaining budget, in USD, below which the walk stops.
const epsilon = 1e-9

// SimulateBuy walks the ask side of snap, lowest price first, spending up to
// targetUSD. The reference price is the mid of the best levels, or the best
// ask when the book is crossed. It is a pure function of its arguments.
//
// A zero SlippagePct with nil AvgExecPrice means no trade was attempted; a
// nil SlippagePct means the book could not fill the order or was empty.
func SimulateBuy(targetUSD float64, snap domain.BookSnapshot) domain.SlippageResult {
	if !(targetUSD > 0) {
		return domain.SlippageResult{SlippagePct: domain.Float(0)}
	}

	bestBid, okBid := snap.BestBid()
	bestAsk, okAsk := snap.BestAsk()
	if !okBid || !okAsk {
		return domain.SlippageResult{}
	}

	ref := (bestAsk.Price + bestBid.Price) / 2
	crossed := bestAsk.Price <= bestBid.Price
	if crossed {
		ref = bestAsk.Price
	}
	res := domain.SlippageResult{ReferencePrice: ref, Crossed: crossed}
	if ref <= 0 {
		return res
	}

	remaining := targetUSD
	var asset, spent float64
	for _, lvl := range snap.Asks {
		if remaining <= epsilon {
			break
		}
		if lvl.Price <= 0 || lvl.Quantity <= 0 {
			continue
		}
		notional := lvl.Notional()
		if remaining >= notional {
			asset += lvl.Quantity
			spent += notional
			remaining -= notional
			continue
		}
		asset += remaining / lvl.Price
		spent += remaining
		remaining = 0
	}

	res.USDSpent = spent
	if asset <= epsilon {
		if spent == 0 {
			res.SlippagePct = domain.Float(0)
		}
		return res
	}

	avg := spent / asset
	res.AssetAcquired = asset
	res.AvgExecPrice = domain.Float(avg)
	res.SlippagePct = domain.Float((avg - ref) / ref * 100)
	return res
}

// FillableUSD returns the total notional resting on the ask side.
func FillableUSD(snap domain.BookSnapshot) float64 {
	var total float64
	for _, lvl := range snap.Asks {
		total += lvl.Notional()
	}
	return total
}
