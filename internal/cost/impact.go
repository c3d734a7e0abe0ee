package cost

import (
	"context"
	"log/slog"
	"strings"
)

// DefaultFallbackDailyVolumeUSD stands in for symbols without reference volume.
const DefaultFallbackDailyVolumeUSD = 1e9

// ImpactModel estimates market impact as
// coefficient × volatility × (order / daily volume) × order.
type ImpactModel struct {
	coefficient    float64
	fallbackVolume float64
	volumes        map[string]float64
	logger         *slog.Logger
}

// NewImpactModel copies volumes; a non-positive fallback is replaced by
// DefaultFallbackDailyVolumeUSD.
func NewImpactModel(coefficient float64, volumes map[string]float64, fallbackVolume float64, logger *slog.Logger) *ImpactModel {
	if fallbackVolume <= 0 {
		fallbackVolume = DefaultFallbackDailyVolumeUSD
	}
	cp := make(map[string]float64, len(volumes))
	for k, v := range volumes {
		cp[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return &ImpactModel{
		coefficient:    coefficient,
		fallbackVolume: fallbackVolume,
		volumes:        cp,
		logger:         logger.With(slog.String("component", "impact")),
	}
}

// DailyVolume returns the reference daily volume for symbol, falling back to
// the configured constant when it is missing or non-positive.
func (m *ImpactModel) DailyVolume(ctx context.Context, symbol string) float64 {
	v, ok := m.volumes[strings.ToUpper(strings.TrimSpace(symbol))]
	if ok && v > 0 {
		return v
	}
	m.logger.WarnContext(ctx, "impact: no daily volume for symbol, using fallback",
		slog.String("symbol", symbol),
		slog.Float64("fallback_usd", m.fallbackVolume),
	)
	return m.fallbackVolume
}

// Impact returns the estimated impact in USD. ok is false when orderUSD or
// volatility is negative or not finite.
func (m *ImpactModel) Impact(ctx context.Context, orderUSD, volatility float64, symbol string) (float64, bool) {
	if !validAmount(orderUSD) || !validAmount(volatility) {
		m.logger.WarnContext(ctx, "impact: invalid input",
			slog.Float64("order_usd", orderUSD),
			slog.Float64("volatility", volatility),
		)
		return 0, false
	}
	if orderUSD == 0 {
		return 0, true
	}
	volume := m.DailyVolume(ctx, symbol)
	return m.coefficient * volatility * (orderUSD / volume) * orderUSD, true
}
