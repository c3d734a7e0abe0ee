// Package metrics defines the prometheus collectors exported by tradecost.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing,
// so components can be constructed without a registry in tests.
type Metrics struct {
	BookUpdates      *prometheus.CounterVec
	RejectedLevels   prometheus.Counter
	CrossedBooks     prometheus.Counter
	BookDepth        *prometheus.GaugeVec
	RecomputePasses  *prometheus.CounterVec
	RecomputeLatency prometheus.Histogram
	NetCostUSD       prometheus.Gauge
	SlippagePct      prometheus.Gauge
	FeedEvents       *prometheus.CounterVec
	FeedReconnects   prometheus.Counter
	ProbeSamples     prometheus.Counter
	ModelTrainings   *prometheus.CounterVec
	ModelSamples     prometheus.Gauge
	ModelTrained     prometheus.Gauge
	RecorderDropped  prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	HTTPLatency      prometheus.Histogram
	HTTPRateLimited  prometheus.Counter
	WSClients        prometheus.Gauge

	registry *prometheus.Registry
}

// New builds the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		BookUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecost_book_updates_total",
				Help: "Feed messages applied to the order book, by kind",
			},
			[]string{"kind"},
		),
		RejectedLevels: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_book_rejected_levels_total",
				Help: "Price levels skipped because price or quantity was invalid",
			},
		),
		CrossedBooks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_book_crossed_total",
				Help: "Updates after which best ask was at or below best bid",
			},
		),
		BookDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradecost_book_levels",
				Help: "Number of price levels per side",
			},
			[]string{"side"},
		),
		RecomputePasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecost_recompute_passes_total",
				Help: "Recompute passes by trigger reason and estimate status",
			},
			[]string{"reason", "status"},
		),
		RecomputeLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradecost_recompute_duration_seconds",
				Help:    "Wall time of one recompute pass",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		NetCostUSD: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradecost_net_cost_usd",
				Help: "Net cost of the latest complete estimate",
			},
		),
		SlippagePct: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradecost_slippage_pct",
				Help: "Walk-the-book slippage of the latest estimate",
			},
		),
		FeedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecost_feed_events_total",
				Help: "Feed connectivity events by state",
			},
			[]string{"state"},
		),
		FeedReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_feed_reconnects_total",
				Help: "Feed reconnect attempts",
			},
		),
		ProbeSamples: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_probe_samples_total",
				Help: "Probe samples added to the model buffer",
			},
		),
		ModelTrainings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecost_model_trainings_total",
				Help: "Model training attempts by result",
			},
			[]string{"result"},
		),
		ModelSamples: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradecost_model_buffer_samples",
				Help: "Samples currently held in the model ring buffer",
			},
		),
		ModelTrained: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradecost_model_trained",
				Help: "1 when the slippage model is trained",
			},
		),
		RecorderDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_recorder_dropped_total",
				Help: "Log records dropped because the recorder queue was full",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecost_http_requests_total",
				Help: "HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),
		HTTPLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradecost_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
		),
		HTTPRateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_http_rate_limited_total",
				Help: "HTTP requests rejected by the rate limiter",
			},
		),
		WSClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradecost_ws_clients",
				Help: "Connected WebSocket clients",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.BookUpdates, m.RejectedLevels, m.CrossedBooks, m.BookDepth,
		m.RecomputePasses, m.RecomputeLatency, m.NetCostUSD, m.SlippagePct,
		m.FeedEvents, m.FeedReconnects, m.ProbeSamples, m.ModelTrainings,
		m.ModelSamples, m.ModelTrained, m.RecorderDropped,
		m.HTTPRequests, m.HTTPLatency, m.HTTPRateLimited, m.WSClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveBookUpdate(kind string, bids, asks int, crossed bool) {
	if m == nil {
		return
	}
	m.BookUpdates.WithLabelValues(kind).Inc()
	m.BookDepth.WithLabelValues("bid").Set(float64(bids))
	m.BookDepth.WithLabelValues("ask").Set(float64(asks))
	if crossed {
		m.CrossedBooks.Inc()
	}
}

func (m *Metrics) ObserveRejectedLevel() {
	if m == nil {
		return
	}
	m.RejectedLevels.Inc()
}

func (m *Metrics) ObserveRecompute(reason, status string, elapsed time.Duration, slippagePct, netCost *float64) {
	if m == nil {
		return
	}
	m.RecomputePasses.WithLabelValues(reason, status).Inc()
	m.RecomputeLatency.Observe(elapsed.Seconds())
	if slippagePct != nil {
		m.SlippagePct.Set(*slippagePct)
	}
	if netCost != nil {
		m.NetCostUSD.Set(*netCost)
	}
}

func (m *Metrics) ObserveFeedEvent(state string) {
	if m == nil {
		return
	}
	m.FeedEvents.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.FeedReconnects.Inc()
}

func (m *Metrics) ObserveProbe() {
	if m == nil {
		return
	}
	m.ProbeSamples.Inc()
}

func (m *Metrics) ObserveTraining(ok bool, samples int) {
	if m == nil {
		return
	}
	m.ModelSamples.Set(float64(samples))
	if ok {
		m.ModelTrainings.WithLabelValues("ok").Inc()
		m.ModelTrained.Set(1)
		return
	}
	m.ModelTrainings.WithLabelValues("failed").Inc()
	m.ModelTrained.Set(0)
}

func (m *Metrics) ObserveRecorderDrop() {
	if m == nil {
		return
	}
	m.RecorderDropped.Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.HTTPLatency.Observe(elapsed.Seconds())
}

// ObserveRateLimited counts a request rejected with 429.
func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.HTTPRateLimited.Inc()
}

// SetWSClients reports the number of connected WebSocket clients.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}
