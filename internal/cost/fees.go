package cost

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
)

// OKXTakerRates is the exchange's published taker schedule by tier name.
func OKXTakerRates() map[string]float64 {
	return map[string]float64{
		"Regular User LV1": 0.0010,
		"Regular User LV2": 0.0009,
		"Regular User LV3": 0.0008,
		"VIP 1":            0.0008,
		"VIP 2":            0.0007,
		"VIP 3":            0.0006,
		"VIP 4":            0.0005,
		"VIP 5":            0.0004,
		"VIP 6":            0.0003,
		"VIP 7":            0.0002,
		"VIP 8":            0.0001,
		"Custom":           0.0010,
	}
}

// DefaultTakerRate applies to tiers missing from the schedule.
const DefaultTakerRate = 0.0010

// FeeSchedule maps fee tiers to taker rates. It is immutable after
// construction.
type FeeSchedule struct {
	rates       map[string]float64
	defaultRate float64
	logger      *slog.Logger
}

// NewFeeSchedule copies rates so later changes to the caller's map are not
// observed.
func NewFeeSchedule(rates map[string]float64, defaultRate float64, logger *slog.Logger) *FeeSchedule {
	cp := make(map[string]float64, len(rates))
	for k, v := range rates {
		cp[strings.TrimSpace(k)] = v
	}
	return &FeeSchedule{
		rates:       cp,
		defaultRate: defaultRate,
		logger:      logger.With(slog.String("component", "fees")),
	}
}

// TakerRate returns the rate for tier, or the default rate when unknown.
func (f *FeeSchedule) TakerRate(ctx context.Context, tier string) float64 {
	if rate, ok := f.rates[strings.TrimSpace(tier)]; ok {
		return rate
	}
	f.logger.WarnContext(ctx, "fees: unknown tier, using default rate",
		slog.String("tier", tier),
		slog.Float64("default_rate", f.defaultRate),
	)
	return f.defaultRate
}

// Fee returns quantityUSD × taker rate. Negative or non-finite quantities
// yield 0.
func (f *FeeSchedule) Fee(ctx context.Context, quantityUSD float64, tier string) float64 {
	if !validAmount(quantityUSD) {
		f.logger.WarnContext(ctx, "fees: invalid quantity",
			slog.Float64("quantity_usd", quantityUSD),
		)
		return 0
	}
	return quantityUSD * f.TakerRate(ctx, tier)
}

// Tiers lists the known tier names, sorted by rate descending then name.
func (f *FeeSchedule) Tiers() []string {
	out := make([]string, 0, len(f.rates))
	for k := range f.rates {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := f.rates[out[i]], f.rates[out[j]]
		if ri != rj {
			return ri > rj
		}
		return out[i] < out[j]
	})
	return out
}

// Known reports whether tier is in the schedule.
func (f *FeeSchedule) Known(tier string) bool {
	_, ok := f.rates[strings.TrimSpace(tier)]
	return ok
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
