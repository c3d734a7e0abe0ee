package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/tradecost/internal/blob/s3"
	"github.com/alanyoungcy/tradecost/internal/cache/memory"
	"github.com/alanyoungcy/tradecost/internal/cache/redis"
	"github.com/alanyoungcy/tradecost/internal/config"
	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/metrics"
	"github.com/alanyoungcy/tradecost/internal/server/handler"
	"github.com/alanyoungcy/tradecost/internal/store/postgres"
)

// streamMaxLen bounds the slippage log stream.
const streamMaxLen = 10000

// StreamBus is a signal bus whose streams can be tailed.
type StreamBus interface {
	domain.SignalBus
	handler.StreamTailer
}

// Dependencies bundles the infrastructure adapters the modes run on. Fields
// for disabled backends stay nil; Bus and RateLimiter always have an
// implementation, in-process when Redis is off.
type Dependencies struct {
	Metrics *metrics.Metrics

	// Postgres
	LogStore  domain.SlippageLogStore
	PerfStore domain.ModelPerformanceStore

	// Redis, or in-process fallbacks
	Bus         StreamBus
	RateLimiter domain.RateLimiter
	BookCache   domain.BookCache
	Locks       domain.LockManager

	// Object storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// HealthChecks probe each configured backend.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs the adapters enabled in cfg and returns them with a
// cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics:      metrics.New(),
		HealthChecks: make(map[string]handler.HealthCheck),
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.LogStore = postgres.NewSlippageLogStore(pool)
		deps.PerfStore = postgres.NewModelPerformanceStore(pool)
		deps.HealthChecks["postgres"] = pool.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewSignalBus(redisClient, streamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.BookCache = redis.NewBookCache(redisClient, cfg.Redis.BookTTL.Duration)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		logger.Info("wire: redis disabled, using in-process signal bus and rate limiter")
		deps.Bus = memory.NewSignalBus(streamMaxLen)
		deps.RateLimiter = memory.NewRateLimiter(10 * time.Minute)
	}

	// --- S3 ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.HealthChecks["s3"] = s3Client.Health

		if deps.LogStore != nil {
			deps.Archiver = s3blob.NewSlippageArchiver(deps.BlobWriter, deps.LogStore, cfg.Archive.BatchSize, logger)
		}
	}

	return deps, cleanup, nil
}
