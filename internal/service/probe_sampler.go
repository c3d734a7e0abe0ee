package service

import (
	"log/slog"
	"sort"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/tradecost/internal/cost"
	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/metrics"
)

// ProbeSampler walks the book at a fixed ladder of order sizes to produce
// training samples for the slippage model. A token bucket bounds how often
// the ladder is walked.
type ProbeSampler struct {
	sizes   []float64
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProbeSampler creates a sampler. A non-positive perSec disables rate
// limiting.
func NewProbeSampler(sizesUSD []float64, perSec float64, burst int, m *metrics.Metrics, logger *slog.Logger) *ProbeSampler {
	sizes := make([]float64, 0, len(sizesUSD))
	for _, s := range sizesUSD {
		if s > 0 {
			sizes = append(sizes, s)
		}
	}
	sort.Float64s(sizes)

	limit := rate.Inf
	if perSec > 0 {
		limit = rate.Limit(perSec)
	}
	if burst < 1 {
		burst = 1
	}
	return &ProbeSampler{
		sizes:   sizes,
		limiter: rate.NewLimiter(limit, burst),
		metrics: m,
		logger:  logger.With(slog.String("component", "probe_sampler")),
	}
}

// Sizes returns the probe ladder in ascending order.
func (p *ProbeSampler) Sizes() []float64 {
	return append([]float64(nil), p.sizes...)
}

// Sample walks the book for every probe size. It returns nil when the rate
// limit is exhausted. Sizes the book cannot fill are skipped.
func (p *ProbeSampler) Sample(snap domain.BookSnapshot) []domain.ProbeSample {
	if len(p.sizes) == 0 || !p.limiter.Allow() {
		return nil
	}
	out := make([]domain.ProbeSample, 0, len(p.sizes))
	for _, size := range p.sizes {
		s, ok := cost.Probe(size, snap)
		if !ok {
			continue
		}
		out = append(out, s)
		p.metrics.ObserveProbe()
	}
	if len(out) < len(p.sizes) {
		p.logger.Debug("probe_sampler: some sizes not fillable",
			slog.Int("sizes", len(p.sizes)),
			slog.Int("sampled", len(out)),
		)
	}
	return out
}
