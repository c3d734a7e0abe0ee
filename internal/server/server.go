// Package server exposes the estimator over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/metrics"
	"github.com/alanyoungcy/tradecost/internal/server/handler"
	"github.com/alanyoungcy/tradecost/internal/server/middleware"
	"github.com/alanyoungcy/tradecost/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // empty disables authentication
	RateLimit       int    // requests per RateLimitWindow per client IP; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Archive and
// Hub may be nil.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Estimate *handler.EstimateHandler
	Model    *handler.ModelHandler
	Log      *handler.LogHandler
	Archive  *handler.ArchiveHandler
	Hub      *ws.Hub
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
func NewServer(cfg Config, h Handlers, limiter domain.RateLimiter, m *metrics.Metrics, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewRouter(cfg, h, limiter, m, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the routed, middleware-wrapped handler.
func NewRouter(cfg Config, h Handlers, limiter domain.RateLimiter, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)

	mux.HandleFunc("GET /api/book", h.Estimate.GetBook)
	mux.HandleFunc("GET /api/estimate", h.Estimate.GetLatest)
	mux.HandleFunc("POST /api/estimate", h.Estimate.PostEstimate)
	mux.HandleFunc("GET /api/inputs", h.Estimate.GetInputs)
	mux.HandleFunc("PUT /api/inputs", h.Estimate.PutInputs)
	mux.HandleFunc("GET /api/fees", h.Estimate.GetFeeTiers)

	mux.HandleFunc("GET /api/model", h.Model.GetModel)
	mux.HandleFunc("POST /api/model/predict", h.Model.Predict)
	mux.HandleFunc("GET /api/model/history", h.Log.ListEvaluations)
	mux.HandleFunc("GET /api/log", h.Log.ListRecent)
	if h.Archive != nil {
		mux.HandleFunc("GET /api/archive", h.Archive.List)
		mux.HandleFunc("GET /api/archive/{date}/{name}", h.Archive.Get)
	}

	mux.Handle("GET /metrics", m.Handler())
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	var root http.Handler = mux
	root = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(root)
	root = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger, m)(root)
	root = middleware.Logging(logger, m, "/metrics", "/api/health")(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)
	return root
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server: starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down within timeout.
func (s *Server) Run(ctx context.Context, timeout time.Duration) error {
	errc := make(chan error, 1)
	go func() { errc <- s.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

// Shutdown drains in-flight requests within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
