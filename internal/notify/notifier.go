// Package notify forwards operational alerts to chat webhooks. A Notifier
// watches the status and model channels of the signal bus and raises an
// alert when the feed goes down or comes back, and when the slippage model
// is refitted. Alerts can be filtered by event type and are rate limited so
// a reconnect storm does not flood the channel.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// Alert event types.
const (
	EventFeedDown      = "feed_down"
	EventFeedRestored  = "feed_restored"
	EventModelTrained  = "model_trained"
	EventModelDegraded = "model_degraded"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Config tunes a Notifier.
type Config struct {
	// Events lists the alert types to forward; empty forwards all.
	Events []string
	// MinR2 is the training R² below which a refit raises model_degraded
	// instead of model_trained.
	MinR2     float64
	PerMinute float64
	Burst     int
}

// Notifier dispatches alerts to one or more Senders.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	minR2   float64
	limiter *rate.Limiter
	logger  *slog.Logger

	// owned by the Watch goroutine
	feedDown bool
}

// NewNotifier creates a Notifier that delivers to the given senders.
func NewNotifier(senders []Sender, cfg Config, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		allowed[strings.TrimSpace(e)] = true
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 6
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		minR2:   cfg.MinR2,
		limiter: rate.NewLimiter(rate.Limit(cfg.PerMinute/60), cfg.Burst),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends an alert to all senders if event passes the filter and the
// rate limit. Suppressed alerts are logged and return nil.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if !n.limiter.Allow() {
		n.logger.WarnContext(ctx, "alert rate limited",
			slog.String("event", event),
			slog.String("title", title),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Watch subscribes to the status and model channels of bus and raises
// alerts until ctx is cancelled.
func (n *Notifier) Watch(ctx context.Context, bus domain.SignalBus) error {
	status, err := bus.Subscribe(ctx, domain.ChannelStatus)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.ChannelStatus, err)
	}
	models, err := bus.Subscribe(ctx, domain.ChannelModel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.ChannelModel, err)
	}
	n.logger.InfoContext(ctx, "notify: watching", slog.Int("senders", len(n.senders)))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-status:
			if !ok {
				return ctx.Err()
			}
			n.handleStatus(ctx, payload)
		case payload, ok := <-models:
			if !ok {
				return ctx.Err()
			}
			n.handleEvaluation(ctx, payload)
		}
	}
}

// handleStatus alerts on the first error disconnect and on the next
// successful connect. Clean disconnects are shutdowns and stay quiet.
func (n *Notifier) handleStatus(ctx context.Context, payload []byte) {
	var ev domain.ConnectivityEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		n.logger.WarnContext(ctx, "notify: bad status payload", slog.String("error", err.Error()))
		return
	}
	switch ev.State {
	case domain.StateDisconnectedError:
		if n.feedDown {
			return
		}
		n.feedDown = true
		_ = n.Notify(ctx, EventFeedDown, "Feed down",
			fmt.Sprintf("%s disconnected at %s: %s", ev.Source, ev.At.Format("15:04:05 MST"), ev.Message))
	case domain.StateConnected:
		if !n.feedDown {
			return
		}
		n.feedDown = false
		_ = n.Notify(ctx, EventFeedRestored, "Feed restored",
			fmt.Sprintf("%s reconnected at %s", ev.Source, ev.At.Format("15:04:05 MST")))
	}
}

func (n *Notifier) handleEvaluation(ctx context.Context, payload []byte) {
	var eval domain.ModelEvaluation
	if err := json.Unmarshal(payload, &eval); err != nil {
		n.logger.WarnContext(ctx, "notify: bad model payload", slog.String("error", err.Error()))
		return
	}
	msg := fmt.Sprintf("samples=%d mse=%.6g r2=%.4f", eval.NumTrainingSamples, eval.TrainMSE, eval.TrainR2)
	if eval.TrainR2 < n.minR2 {
		_ = n.Notify(ctx, EventModelDegraded, "Slippage model fit degraded", msg)
		return
	}
	_ = n.Notify(ctx, EventModelTrained, "Slippage model retrained", msg)
}

// dispatch sends to every sender. A failing sender does not stop delivery
// to the rest; the failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}
