// Package feed is the ingestion adapter: it reads L2 frames from a websocket
// (or a recorded file), applies them to a domain.BookSource and announces
// every applied update on a channel.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/metrics"
)

const writeWait = 10 * time.Second

// StatusHandler receives connectivity events. It must not block.
type StatusHandler func(domain.ConnectivityEvent)

// Config holds the websocket feed parameters.
type Config struct {
	URL               string
	Source            string
	DefaultKind       domain.UpdateKind
	HandshakeTimeout  time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	BreakerFailures   int
	BreakerCooldown   time.Duration
}

// L2Feed is the long-lived ingestion task. It is the only writer of its
// book.
type L2Feed struct {
	cfg      Config
	book     domain.BookSource
	events   chan<- domain.BookEvent
	onStatus StatusHandler
	breaker  *gobreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewL2Feed creates a feed. events may be nil; sends on it never block.
func NewL2Feed(cfg Config, book domain.BookSource, events chan<- domain.BookEvent, onStatus StatusHandler, m *metrics.Metrics, logger *slog.Logger) *L2Feed {
	if cfg.DefaultKind == "" {
		cfg.DefaultKind = domain.UpdateSnapshot
	}
	if cfg.Source == "" {
		cfg.Source = cfg.URL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.ReadTimeout {
		cfg.PingInterval = cfg.ReadTimeout * 9 / 10
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	f := &L2Feed{
		cfg:      cfg,
		book:     book,
		events:   events,
		onStatus: onStatus,
		metrics:  m,
		logger:   logger.With(slog.String("component", "l2_feed")),
	}
	failures := uint32(cfg.BreakerFailures)
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "feed-dial",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("feed: circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return f
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff. It returns ctx.Err() on shutdown.
func (f *L2Feed) Run(ctx context.Context) error {
	delay := f.cfg.ReconnectDelay
	for {
		if ctx.Err() != nil {
			f.emit(domain.StateDisconnectedClean, "")
			return ctx.Err()
		}

		f.emit(domain.StateConnecting, "")
		received, err := f.runConnection(ctx)
		if ctx.Err() != nil {
			f.emit(domain.StateDisconnectedClean, "")
			return ctx.Err()
		}
		if err == nil {
			err = domain.ErrFeedDisconnected
		}
		f.emit(domain.StateDisconnectedError, err.Error())
		f.metrics.ObserveReconnect()

		if received {
			delay = f.cfg.ReconnectDelay
		}
		f.logger.Warn("feed: disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			f.emit(domain.StateDisconnectedClean, "")
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

// runConnection dials once and reads frames until the connection fails or
// ctx is cancelled. received reports whether at least one book frame was
// applied.
func (f *L2Feed) runConnection(ctx context.Context) (received bool, err error) {
	conn, err := f.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	f.logger.Info("feed: connected", slog.String("url", f.cfg.URL))
	f.emit(domain.StateConnected, "")

	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = conn.Close()
		case <-connDone:
		}
	}()
	go f.pingLoop(conn, connDone)

	_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return received, nil
			}
			return received, fmt.Errorf("feed: read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))

		if f.handleFrame(raw) {
			received = true
			f.emit(domain.StateDataUpdate, "")
		}
	}
}

func (f *L2Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: f.cfg.HandshakeTimeout}
	res, err := f.breaker.Execute(func() (interface{}, error) {
		conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("feed: dial suppressed: %w", err)
		}
		return nil, fmt.Errorf("feed: dial %s: %w", f.cfg.URL, err)
	}
	return res.(*websocket.Conn), nil
}

func (f *L2Feed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handleFrame decodes and applies one frame. It reports whether the book
// changed. Bad frames are logged and dropped; they never stop the read loop.
func (f *L2Feed) handleFrame(raw []byte) bool {
	u, err := DecodeMessage(raw, f.cfg.DefaultKind)
	if errors.Is(err, ErrNotBookMessage) {
		f.logger.Debug("feed: ignoring non-book frame", slog.Int("bytes", len(raw)))
		return false
	}
	if err != nil {
		f.logger.Warn("feed: dropping malformed frame", slog.String("error", err.Error()))
		return false
	}
	return apply(f.book, u, f.events, f.logger)
}

// apply writes u to book and announces it without blocking.
func apply(book domain.BookSource, u domain.BookUpdate, events chan<- domain.BookEvent, logger *slog.Logger) bool {
	if err := book.ApplyUpdate(u); err != nil {
		logger.Warn("feed: update rejected", slog.String("error", err.Error()))
		return false
	}
	if events != nil {
		select {
		case events <- domain.BookEvent{Symbol: u.Symbol, Sequence: u.Sequence, Timestamp: u.Timestamp}:
		default:
		}
	}
	return true
}

func (f *L2Feed) emit(state domain.ConnectivityState, msg string) {
	f.metrics.ObserveFeedEvent(string(state))
	if f.onStatus == nil {
		return
	}
	f.onStatus(domain.ConnectivityEvent{
		State:   state,
		Source:  f.cfg.Source,
		Message: msg,
		At:      time.Now().UTC(),
	})
}
