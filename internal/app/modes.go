package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/tradecost/internal/blob/s3"
	"github.com/alanyoungcy/tradecost/internal/cost"
	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/feed"
	"github.com/alanyoungcy/tradecost/internal/model"
	"github.com/alanyoungcy/tradecost/internal/notify"
	"github.com/alanyoungcy/tradecost/internal/orderbook"
	"github.com/alanyoungcy/tradecost/internal/schedule"
	"github.com/alanyoungcy/tradecost/internal/server"
	"github.com/alanyoungcy/tradecost/internal/server/handler"
	"github.com/alanyoungcy/tradecost/internal/server/ws"
	"github.com/alanyoungcy/tradecost/internal/service"
)

const httpShutdownTimeout = 10 * time.Second

// core is the in-process estimation pipeline shared by the live and monitor
// modes: one book, one recompute loop and the query facade over both.
type core struct {
	book     *orderbook.Book
	rc       *service.Recomputer
	svc      *service.EstimateService
	tracker  *service.StatusTracker
	recorder *service.Recorder
}

// buildCore assembles the pipeline. Probing and recording are only wired
// when withProbes is set; a follower process does not train.
func (a *App) buildCore(deps *Dependencies, withProbes bool) *core {
	book := orderbook.New(a.cfg.Feed.Symbol, a.cfg.Feed.Exchange, deps.Metrics, a.logger)
	agg := cost.NewAggregator(
		cost.NewFeeSchedule(a.cfg.Fees.Tiers, a.cfg.Fees.DefaultTakerRate, a.logger),
		cost.NewImpactModel(a.cfg.Impact.Coefficient, a.cfg.Impact.DailyVolumeUSD, a.cfg.Impact.FallbackDailyVolumeUSD, a.logger),
		a.logger,
	)

	var (
		slipModel *model.SlippageModel
		sampler   *service.ProbeSampler
		recorder  *service.Recorder
	)
	if withProbes {
		recorder = service.NewRecorder(service.RecorderConfig{
			QueueSize:     a.cfg.Recorder.QueueSize,
			BatchSize:     a.cfg.Recorder.BatchSize,
			FlushInterval: a.cfg.Recorder.FlushInterval.Duration,
		}, deps.LogStore, deps.PerfStore, deps.Bus, deps.Metrics, a.logger)

		if a.cfg.Model.Enabled {
			slipModel = model.New(model.Config{
				MinSamples: a.cfg.Model.MinSamples,
				Capacity:   a.cfg.Model.Capacity,
			}, a.logger)
			sampler = service.NewProbeSampler(a.cfg.Model.ProbeSizesUSD, a.cfg.Model.ProbeRatePerSec, a.cfg.Model.ProbeBurst, deps.Metrics, a.logger)
		}
	}

	rc := service.NewRecomputer(service.RecomputerConfig{
		Debounce:     a.cfg.Estimator.Debounce.Duration,
		RetrainEvery: a.cfg.Model.RetrainEvery,
	}, service.RecomputerDeps{
		Book:       book,
		Aggregator: agg,
		Model:      slipModel,
		Sampler:    sampler,
		Recorder:   recorder,
		Bus:        deps.Bus,
		Metrics:    deps.Metrics,
	}, a.cfg.EstimateRequest(), a.logger)

	return &core{
		book:     book,
		rc:       rc,
		svc:      service.NewEstimateService(book, agg, slipModel, rc, a.logger),
		tracker:  service.NewStatusTracker(deps.Bus, a.logger),
		recorder: recorder,
	}
}

// LiveMode ingests the L2 feed and runs the recompute loop, probe sampling,
// log recording, the Redis mirror, the archive job and the HTTP server.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode",
		slog.String("feed", a.cfg.Feed.URL),
		slog.String("symbol", a.cfg.Feed.Symbol),
	)

	c := a.buildCore(deps, true)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.tracker.Run(ctx) })
	g.Go(func() error { return c.recorder.Run(ctx) })
	g.Go(func() error { return c.rc.Run(ctx) })

	l2 := feed.NewL2Feed(feed.Config{
		URL:               a.cfg.Feed.URL,
		Source:            a.cfg.Feed.Exchange + ":" + a.cfg.Feed.Symbol,
		DefaultKind:       domain.UpdateKind(a.cfg.Feed.DefaultKind),
		HandshakeTimeout:  a.cfg.Feed.HandshakeTimeout.Duration,
		ReadTimeout:       a.cfg.Feed.ReadTimeout.Duration,
		PingInterval:      a.cfg.Feed.PingInterval.Duration,
		ReconnectDelay:    a.cfg.Feed.ReconnectDelay.Duration,
		MaxReconnectDelay: a.cfg.Feed.MaxReconnectDelay.Duration,
		BreakerFailures:   a.cfg.Feed.BreakerFailures,
		BreakerCooldown:   a.cfg.Feed.BreakerCooldown.Duration,
	}, c.book, c.rc.Events(), c.tracker.Handle, deps.Metrics, a.logger)
	g.Go(func() error {
		return a.runIngestion(ctx, "feed", l2.Run)
	})

	if deps.BookCache != nil {
		mirror := service.NewBookMirror(c.book, deps.BookCache, deps.Bus, a.cfg.Redis.MirrorInterval.Duration, a.cfg.Redis.MirrorDepth, a.logger)
		g.Go(func() error { return mirror.Run(ctx) })
	}

	if a.cfg.Archive.Enabled {
		if err := a.startArchiveJob(ctx, g, deps); err != nil {
			return fmt.Errorf("live mode: %w", err)
		}
	}

	a.startNotifier(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c, map[string]handler.HealthCheck{
			"feed": feedHealth(c.tracker),
		})
	}

	return g.Wait()
}

// MonitorMode follows the book another process mirrors into Redis and serves
// estimates over it. Nothing is probed or recorded.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	if deps.BookCache == nil {
		return errors.New("monitor mode: redis book cache is not configured")
	}
	a.logger.InfoContext(ctx, "starting monitor mode", slog.String("symbol", a.cfg.Feed.Symbol))

	c := a.buildCore(deps, false)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.tracker.Run(ctx) })
	g.Go(func() error { return c.rc.Run(ctx) })

	follower := service.NewCacheFollower(deps.BookCache, c.book, a.cfg.Feed.Symbol, c.rc.Events(), c.tracker.Handle, a.cfg.Redis.MirrorInterval.Duration, a.logger)
	g.Go(func() error {
		return a.runIngestion(ctx, "cache follower", follower.Run)
	})

	a.startNotifier(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c, map[string]handler.HealthCheck{
			"feed": feedHealth(c.tracker),
		})
	}

	return g.Wait()
}

// ArchiveMode runs only the archive job.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	g, ctx := errgroup.WithContext(ctx)
	if err := a.startArchiveJob(ctx, g, deps); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	return g.Wait()
}

// startArchiveJob schedules the archive job on the cron expression when one
// is configured and on the fixed interval otherwise.
func (a *App) startArchiveJob(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("archiving requires postgres and s3")
	}
	job := service.NewArchiveJob(deps.Archiver, deps.Locks, a.cfg.Archive.RetentionDays, a.cfg.Archive.LockTTL.Duration, a.logger)

	if a.cfg.Archive.Cron != "" {
		cron, err := schedule.Parse(a.cfg.Archive.Cron)
		if err != nil {
			return fmt.Errorf("archive cron: %w", err)
		}
		g.Go(func() error { return job.RunCron(ctx, cron) })
		return nil
	}
	g.Go(func() error { return job.RunEvery(ctx, a.cfg.Archive.Interval.Duration) })
	return nil
}

// startNotifier forwards feed and model alerts to the configured webhooks.
func (a *App) startNotifier(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Notify.Enabled {
		return
	}
	var senders []notify.Sender
	if a.cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(a.cfg.Notify.DiscordWebhookURL))
	}
	if a.cfg.Notify.TelegramToken != "" && a.cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(a.cfg.Notify.TelegramToken, a.cfg.Notify.TelegramChatID))
	}
	n := notify.NewNotifier(senders, notify.Config{
		Events:    a.cfg.Notify.Events,
		MinR2:     a.cfg.Notify.MinR2,
		PerMinute: a.cfg.Notify.PerMinute,
		Burst:     a.cfg.Notify.Burst,
	}, a.logger)
	g.Go(func() error { return n.Watch(ctx, deps.Bus) })
}

// runIngestion runs the single book writer. After ctx is cancelled it waits
// up to the configured shutdown timeout for the writer to return, then moves
// on without it.
func (a *App) runIngestion(ctx context.Context, name string, run func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", name, err)
		}
		return err
	case <-ctx.Done():
	}

	timeout := a.cfg.Feed.ShutdownTimeout.Duration
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		a.logger.Warn("ingestion did not stop within shutdown timeout",
			slog.String("task", name),
			slog.Duration("timeout", timeout),
		)
	}
	return ctx.Err()
}

// startHTTPServer builds the handlers and the WebSocket hub over c and runs
// the server inside g. extra health checks are added to the wired ones.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core, extra map[string]handler.HealthCheck) {
	checks := maps.Clone(deps.HealthChecks)
	maps.Copy(checks, extra)

	hub := ws.NewHub(deps.Bus, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: a.startedAt,
		Initial:   latestEnvelopes(c.svc),
	}, deps.Metrics, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(checks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, c.tracker, a.startedAt),
		Estimate: handler.NewEstimateHandler(c.svc, a.logger),
		Model:    handler.NewModelHandler(c.svc, a.logger),
		Log:      handler.NewLogHandler(deps.LogStore, deps.PerfStore, deps.Bus, a.logger),
		Archive:  handler.NewArchiveHandler(deps.BlobReader, s3blob.ArchivePrefix, a.logger),
		Hub:      hub,
	}, deps.RateLimiter, deps.Metrics, a.logger)

	a.logger.InfoContext(ctx, "http server listening", slog.Int("port", a.cfg.Server.Port))
	g.Go(func() error { return srv.Run(ctx, httpShutdownTimeout) })
}

// latestEnvelopes returns the hub's initial frames: the latest estimate, if
// a pass has completed.
func latestEnvelopes(svc *service.EstimateService) func() []ws.Envelope {
	return func() []ws.Envelope {
		est, ok := svc.Latest()
		if !ok {
			return nil
		}
		data, err := json.Marshal(est)
		if err != nil {
			return nil
		}
		return []ws.Envelope{{Channel: domain.ChannelEstimate, Data: data}}
	}
}

func feedHealth(t *service.StatusTracker) handler.HealthCheck {
	return func(context.Context) error {
		if !t.Connected() {
			return fmt.Errorf("feed %s", t.Status().State)
		}
		return nil
	}
}
