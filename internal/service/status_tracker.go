package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// StatusTracker keeps the feed connectivity state and publishes state
// transitions on the signal bus. data_update events only refresh counters.
type StatusTracker struct {
	mu     sync.RWMutex
	status domain.FeedStatus

	bus     domain.SignalBus
	pending chan domain.ConnectivityEvent
	logger  *slog.Logger
}

// NewStatusTracker creates a tracker. bus may be nil.
func NewStatusTracker(bus domain.SignalBus, logger *slog.Logger) *StatusTracker {
	return &StatusTracker{
		status:  domain.FeedStatus{State: domain.StateDisconnectedClean, Since: time.Now().UTC()},
		bus:     bus,
		pending: make(chan domain.ConnectivityEvent, 64),
		logger:  logger.With(slog.String("component", "status_tracker")),
	}
}

// Handle records ev. It never blocks and is safe to pass to a feed as its
// status handler.
func (t *StatusTracker) Handle(ev domain.ConnectivityEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	t.mu.Lock()
	if ev.State == domain.StateDataUpdate {
		t.status.DataUpdates++
		t.status.LastDataAt = ev.At
		t.mu.Unlock()
		return
	}
	changed := t.status.State != ev.State
	t.status.State = ev.State
	t.status.Source = ev.Source
	t.status.Message = ev.Message
	if changed {
		t.status.Since = ev.At
	}
	if ev.State == domain.StateDisconnectedError {
		t.status.Disconnects++
	}
	t.mu.Unlock()

	switch ev.State {
	case domain.StateDisconnectedError:
		t.logger.Warn("status: feed disconnected", slog.String("source", ev.Source), slog.String("error", ev.Message))
	default:
		t.logger.Info("status: feed "+string(ev.State), slog.String("source", ev.Source))
	}

	select {
	case t.pending <- ev:
	default:
	}
}

// Status returns the current connectivity summary.
func (t *StatusTracker) Status() domain.FeedStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Connected reports whether the feed currently has a live connection.
func (t *StatusTracker) Connected() bool {
	return t.Status().State == domain.StateConnected
}

// Run publishes queued transitions until ctx is cancelled.
func (t *StatusTracker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-t.pending:
			if t.bus == nil {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := t.bus.Publish(ctx, domain.ChannelStatus, payload); err != nil {
				t.logger.WarnContext(ctx, "status: publish failed", slog.String("error", err.Error()))
			}
		}
	}
}
