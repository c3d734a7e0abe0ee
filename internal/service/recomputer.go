package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradecost/internal/cost"
	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/metrics"
	"github.com/alanyoungcy/tradecost/internal/model"
)

// DefaultDebounce is the quiet period after an input change before a pass.
const DefaultDebounce = 50 * time.Millisecond

// RecomputerConfig tunes the recompute loop.
type RecomputerConfig struct {
	Debounce     time.Duration
	RetrainEvery int
}

// RecomputerDeps are the collaborators of a Recomputer. Only Book and
// Aggregator are required.
type RecomputerDeps struct {
	Book       domain.BookSource
	Aggregator *cost.Aggregator
	Model      *model.SlippageModel
	Sampler    *ProbeSampler
	Recorder   *Recorder
	Bus        domain.SignalBus
	Metrics    *metrics.Metrics
}

// Recomputer is the single consumer of book events and input changes. Each
// pass takes one book snapshot and produces one CostEstimate.
type Recomputer struct {
	cfg      RecomputerConfig
	book     domain.BookSource
	agg      *cost.Aggregator
	model    *model.SlippageModel
	sampler  *ProbeSampler
	recorder *Recorder
	bus      domain.SignalBus
	metrics  *metrics.Metrics
	logger   *slog.Logger

	events  chan domain.BookEvent
	inputCh chan struct{}

	mu     sync.RWMutex
	inputs domain.EstimateRequest

	latest atomic.Pointer[domain.CostEstimate]
	passes atomic.Uint64

	// owned by the Run goroutine
	sinceTrain int
}

// NewRecomputer creates a Recomputer with the given initial inputs.
func NewRecomputer(cfg RecomputerConfig, deps RecomputerDeps, inputs domain.EstimateRequest, logger *slog.Logger) *Recomputer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.RetrainEvery <= 0 {
		cfg.RetrainEvery = 1
	}
	return &Recomputer{
		cfg:      cfg,
		book:     deps.Book,
		agg:      deps.Aggregator,
		model:    deps.Model,
		sampler:  deps.Sampler,
		recorder: deps.Recorder,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		logger:   logger.With(slog.String("component", "recomputer")),
		events:   make(chan domain.BookEvent, 1),
		inputCh:  make(chan struct{}, 1),
		inputs:   inputs,
	}
}

// Events returns the coalescing channel the ingestion path announces
// applied updates on. Senders must not block on it.
func (r *Recomputer) Events() chan<- domain.BookEvent { return r.events }

// SetInputs replaces the recompute inputs and schedules a debounced pass.
func (r *Recomputer) SetInputs(req domain.EstimateRequest) {
	r.mu.Lock()
	r.inputs = req
	r.mu.Unlock()
	select {
	case r.inputCh <- struct{}{}:
	default:
	}
}

// Inputs returns the current recompute inputs.
func (r *Recomputer) Inputs() domain.EstimateRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inputs
}

// Latest returns the most recent estimate, if any pass has completed.
func (r *Recomputer) Latest() (domain.CostEstimate, bool) {
	est := r.latest.Load()
	if est == nil {
		return domain.CostEstimate{}, false
	}
	return *est, true
}

// Passes returns the number of completed passes.
func (r *Recomputer) Passes() uint64 { return r.passes.Load() }

// Run consumes triggers until ctx is cancelled. Book events run a pass
// immediately; input changes restart the debounce timer. A trigger that
// arrives during a pass leaves one pending pass behind.
func (r *Recomputer) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "recomputer: started", slog.Duration("debounce", r.cfg.Debounce))

	timer := time.NewTimer(r.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("recomputer: stopped", slog.Uint64("passes", r.passes.Load()))
			return ctx.Err()
		case <-r.events:
			r.pass(ctx, domain.TriggerBookUpdate)
		case <-r.inputCh:
			timer.Reset(r.cfg.Debounce)
			debounce = timer.C
		case <-debounce:
			debounce = nil
			r.pass(ctx, domain.TriggerInputChange)
		}
	}
}

// Recompute runs one pass synchronously on the caller's goroutine. It is
// meant for one-shot use when no Run loop is active.
func (r *Recomputer) Recompute(ctx context.Context, reason domain.TriggerReason) (domain.CostEstimate, bool) {
	r.pass(ctx, reason)
	return r.Latest()
}

func (r *Recomputer) pass(ctx context.Context, reason domain.TriggerReason) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "recomputer: pass panicked",
				slog.String("reason", reason.String()),
				slog.String("panic", fmt.Sprint(p)),
			)
			r.metrics.ObserveRecompute(reason.String(), "panic", time.Since(start), nil, nil)
		}
	}()

	snap := r.book.Snapshot()
	req := r.Inputs()

	est := r.agg.Estimate(ctx, req, snap)
	if pred, ok := predictFor(r.model, req.QuantityUSD, snap); ok {
		est.PredictedSlippagePct = domain.Float(pred)
		r.recorder.RecordPrediction(snap.Symbol, req.QuantityUSD, pred)
	}

	r.latest.Store(&est)
	r.passes.Add(1)
	r.metrics.ObserveRecompute(reason.String(), string(est.Status), time.Since(start), est.SlippagePct, est.NetCostUSD)
	r.logger.DebugContext(ctx, "recomputer: pass complete",
		slog.String("reason", reason.String()),
		slog.String("status", string(est.Status)),
		slog.Int64("latency_us", est.LatencyMicros),
	)
	r.publish(ctx, domain.ChannelEstimate, est)

	if reason == domain.TriggerBookUpdate {
		r.probe(ctx, snap)
	}
}

// probe feeds simulator-derived samples to the model and retrains every
// RetrainEvery samples.
func (r *Recomputer) probe(ctx context.Context, snap domain.BookSnapshot) {
	if r.model == nil || r.sampler == nil {
		return
	}
	samples := r.sampler.Sample(snap)
	for _, s := range samples {
		if r.model.AddProbe(s) {
			r.recorder.RecordProbe(snap.Symbol, s)
			r.sinceTrain++
		}
	}
	if r.sinceTrain < r.cfg.RetrainEvery {
		return
	}
	r.sinceTrain = 0

	st := r.model.Status()
	if st.Samples < st.MinSamples {
		return
	}
	ok := r.model.Train()
	r.metrics.ObserveTraining(ok, st.Samples)
	if !ok {
		return
	}
	if eval, ok := r.model.LastEvaluation(); ok {
		r.recorder.RecordEvaluation(eval)
		r.publish(ctx, domain.ChannelModel, eval)
	}
}

func (r *Recomputer) publish(ctx context.Context, channel string, v any) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.WarnContext(ctx, "recomputer: marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := r.bus.Publish(ctx, channel, payload); err != nil {
		r.logger.WarnContext(ctx, "recomputer: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// predictFor asks m for the slippage of a buy of orderUSD in the market
// described by snap.
func predictFor(m *model.SlippageModel, orderUSD float64, snap domain.BookSnapshot) (float64, bool) {
	if m == nil || orderUSD <= 0 {
		return 0, false
	}
	spread, depth, ok := cost.MarketFeatures(snap)
	if !ok {
		return 0, false
	}
	return m.Predict([]float64{orderUSD, spread, depth})
}
