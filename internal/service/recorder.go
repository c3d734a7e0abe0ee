package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/metrics"
)

// RecorderConfig controls buffering.
type RecorderConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// Recorder buffers slippage log rows and model evaluations off the recompute
// path and writes them in batches. Enqueueing never blocks; rows are
// dropped when the queue is full. All methods are safe on a nil Recorder.
type Recorder struct {
	cfg     RecorderConfig
	logs    domain.SlippageLogStore
	perf    domain.ModelPerformanceStore
	bus     domain.SignalBus
	records chan domain.LogRecord
	evals   chan domain.ModelEvaluation
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRecorder creates a Recorder. Any of logs, perf and bus may be nil.
func NewRecorder(cfg RecorderConfig, logs domain.SlippageLogStore, perf domain.ModelPerformanceStore, bus domain.SignalBus, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &Recorder{
		cfg:     cfg,
		logs:    logs,
		perf:    perf,
		bus:     bus,
		records: make(chan domain.LogRecord, cfg.QueueSize),
		evals:   make(chan domain.ModelEvaluation, 64),
		metrics: m,
		logger:  logger.With(slog.String("component", "recorder")),
	}
}

// RecordProbe queues a probe row.
func (r *Recorder) RecordProbe(symbol string, s domain.ProbeSample) {
	if r == nil {
		return
	}
	r.enqueue(domain.LogRecord{
		ID:                         uuid.NewString(),
		LoggedAt:                   time.Now().UTC(),
		Symbol:                     symbol,
		ProbeOrderSizeUSD:          domain.Float(s.OrderSizeUSD),
		MarketSpreadBps:            domain.Float(s.SpreadBps),
		MarketDepthBestAskUSD:      domain.Float(s.DepthBestAskUSD),
		TrueSlippagePctWalkTheBook: domain.Float(s.TargetSlippagePct),
	})
}

// RecordPrediction queues a user-order prediction row.
func (r *Recorder) RecordPrediction(symbol string, orderUSD, predictedPct float64) {
	if r == nil {
		return
	}
	r.enqueue(domain.LogRecord{
		ID:                          uuid.NewString(),
		LoggedAt:                    time.Now().UTC(),
		Symbol:                      symbol,
		UserOrderSizeUSD:            domain.Float(orderUSD),
		PredictedSlippagePctRegress: domain.Float(predictedPct),
	})
}

// RecordEvaluation queues a model performance row.
func (r *Recorder) RecordEvaluation(eval domain.ModelEvaluation) {
	if r == nil {
		return
	}
	select {
	case r.evals <- eval:
	default:
		r.metrics.ObserveRecorderDrop()
		r.logger.Warn("recorder: evaluation queue full, dropping", slog.String("id", eval.ID))
	}
}

func (r *Recorder) enqueue(rec domain.LogRecord) {
	select {
	case r.records <- rec:
	default:
		r.metrics.ObserveRecorderDrop()
	}
}

// Run drains the queues until ctx is cancelled, then flushes what is left
// with a short grace period.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]domain.LogRecord, 0, r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.drain(&batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.flush(flushCtx, batch)
			cancel()
			return ctx.Err()
		case rec := <-r.records:
			batch = append(batch, rec)
			if len(batch) >= r.cfg.BatchSize {
				r.flush(ctx, batch)
				batch = batch[:0]
			}
		case eval := <-r.evals:
			r.writeEvaluation(ctx, eval)
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) drain(batch *[]domain.LogRecord) {
	for {
		select {
		case rec := <-r.records:
			*batch = append(*batch, rec)
		default:
			return
		}
	}
}

func (r *Recorder) flush(ctx context.Context, batch []domain.LogRecord) {
	if len(batch) == 0 {
		return
	}
	if r.logs != nil {
		if err := r.logs.InsertBatch(ctx, batch); err != nil {
			r.logger.WarnContext(ctx, "recorder: insert batch failed",
				slog.Int("rows", len(batch)),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.bus != nil {
		for _, rec := range batch {
			payload, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if err := r.bus.StreamAppend(ctx, domain.StreamLogRecord, payload); err != nil {
				r.logger.WarnContext(ctx, "recorder: stream append failed", slog.String("error", err.Error()))
				break
			}
		}
	}
	r.logger.DebugContext(ctx, "recorder: flushed", slog.Int("rows", len(batch)))
}

func (r *Recorder) writeEvaluation(ctx context.Context, eval domain.ModelEvaluation) {
	if r.perf == nil {
		return
	}
	if err := r.perf.Insert(ctx, eval); err != nil {
		r.logger.WarnContext(ctx, "recorder: insert model evaluation failed",
			slog.String("id", eval.ID),
			slog.String("error", err.Error()),
		)
	}
}
