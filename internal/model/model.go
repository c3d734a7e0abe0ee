// Package model learns walk-the-book slippage from probe samples with an
// ordinary least squares fit over a bounded sample buffer.
package model

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// Defaults used when Config leaves a field at zero.
const (
	DefaultMinSamples = 50
	DefaultCapacity   = 1000
)

// Config sizes the model.
type Config struct {
	MinSamples int
	Capacity   int
}

// SlippageModel predicts slippage percent from order size, spread and best
// ask depth. It starts untrained; each successful Train refits on the whole
// buffer. Safe for concurrent use.
type SlippageModel struct {
	mu         sync.RWMutex
	dim        int
	minSamples int
	buf        *ring
	coef       []float64
	intercept  float64
	trained    bool
	lastEval   *domain.ModelEvaluation
	logger     *slog.Logger
}

// New creates an untrained model with a fixed feature dimension of
// domain.FeatureDimension.
func New(cfg Config, logger *slog.Logger) *SlippageModel {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Capacity < cfg.MinSamples {
		cfg.Capacity = cfg.MinSamples
	}
	return &SlippageModel{
		dim:        domain.FeatureDimension,
		minSamples: cfg.MinSamples,
		buf:        newRing(cfg.Capacity),
		logger:     logger.With(slog.String("component", "slippage_model")),
	}
}

// AddDataPoint buffers one sample. It returns false, and logs, when the
// feature dimension is wrong or a value is not finite.
func (m *SlippageModel) AddDataPoint(features []float64, target float64) bool {
	if len(features) != m.dim {
		m.logger.Warn("model: feature dimension mismatch",
			slog.Int("want", m.dim),
			slog.Int("got", len(features)),
		)
		return false
	}
	if !allFinite(features) || !finite(target) {
		m.logger.Warn("model: non-finite sample rejected")
		return false
	}
	x := make([]float64, len(features))
	copy(x, features)

	m.mu.Lock()
	m.buf.push(sample{x: x, y: target})
	m.mu.Unlock()
	return true
}

// AddProbe buffers a probe sample.
func (m *SlippageModel) AddProbe(p domain.ProbeSample) bool {
	return m.AddDataPoint(p.Features(), p.TargetSlippagePct)
}

// Train refits on every buffered sample. It returns false without touching
// the current fit when fewer than the minimum samples are buffered, and
// false with the model marked untrained when the fit fails numerically.
func (m *SlippageModel) Train() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.buf.len()
	if n < m.minSamples {
		m.logger.Debug("model: not enough samples to train",
			slog.Int("samples", n),
			slog.Int("min_samples", m.minSamples),
		)
		return false
	}

	res, err := fitOLS(m.buf, m.dim)
	if err != nil {
		m.trained = false
		m.logger.Warn("model: training failed",
			slog.Int("samples", n),
			slog.String("error", err.Error()),
		)
		return false
	}

	m.coef = res.coef
	m.intercept = res.intercept
	m.trained = true
	m.lastEval = &domain.ModelEvaluation{
		ID:                 uuid.NewString(),
		LoggedAt:           time.Now().UTC(),
		NumTrainingSamples: n,
		TrainMSE:           res.mse,
		TrainR2:            res.r2,
		Coefficients:       append([]float64(nil), res.coef...),
		Intercept:          res.intercept,
	}
	m.logger.Info("model: trained",
		slog.Int("samples", n),
		slog.Float64("mse", res.mse),
		slog.Float64("r2", res.r2),
	)
	return true
}

// Predict returns the point estimate for features. ok is false when the
// model is untrained or the dimension is wrong.
func (m *SlippageModel) Predict(features []float64) (float64, bool) {
	if len(features) != m.dim || !allFinite(features) {
		return 0, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return 0, false
	}
	return predict(m.coef, m.intercept, features), true
}

// IsTrained reports whether the last Train call succeeded.
func (m *SlippageModel) IsTrained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// Len returns the number of buffered samples.
func (m *SlippageModel) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buf.len()
}

// Coefficients returns a copy of the fitted coefficients, nil if untrained.
func (m *SlippageModel) Coefficients() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return nil
	}
	return append([]float64(nil), m.coef...)
}

// Intercept returns the fitted intercept.
func (m *SlippageModel) Intercept() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.intercept
}

// LastEvaluation returns the metrics of the most recent successful fit.
func (m *SlippageModel) LastEvaluation() (domain.ModelEvaluation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastEval == nil {
		return domain.ModelEvaluation{}, false
	}
	return *m.lastEval, true
}

// Status summarises the model for API consumers.
func (m *SlippageModel) Status() domain.ModelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := domain.ModelStatus{
		Trained:    m.trained,
		Samples:    m.buf.len(),
		Capacity:   len(m.buf.data),
		MinSamples: m.minSamples,
	}
	if m.lastEval != nil {
		ev := *m.lastEval
		st.LastEvaluation = &ev
	}
	return st
}
