// Package config defines the top-level configuration for tradecost and
// provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/tradecost/internal/cost"
	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/schedule"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TCOST_* environment variables.
// It is treated as immutable once Validate has passed.
type Config struct {
	Feed      FeedConfig      `toml:"feed"`
	Fees      FeesConfig      `toml:"fees"`
	Impact    ImpactConfig    `toml:"impact"`
	Estimator EstimatorConfig `toml:"estimator"`
	Model     ModelConfig     `toml:"model"`
	Recorder  RecorderConfig  `toml:"recorder"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// FeedConfig describes the L2 websocket feed.
type FeedConfig struct {
	URL               string   `toml:"url"`
	Symbol            string   `toml:"symbol"`
	Exchange          string   `toml:"exchange"`
	DefaultKind       string   `toml:"default_kind"`
	HandshakeTimeout  duration `toml:"handshake_timeout"`
	ReadTimeout       duration `toml:"read_timeout"`
	PingInterval      duration `toml:"ping_interval"`
	ReconnectDelay    duration `toml:"reconnect_delay"`
	MaxReconnectDelay duration `toml:"max_reconnect_delay"`
	BreakerFailures   int      `toml:"breaker_failures"`
	BreakerCooldown   duration `toml:"breaker_cooldown"`
	ShutdownTimeout   duration `toml:"shutdown_timeout"`
}

// FeesConfig is the taker fee schedule.
type FeesConfig struct {
	DefaultTakerRate float64            `toml:"default_taker_rate"`
	Tiers            map[string]float64 `toml:"tiers"`
}

// ImpactConfig parameterises the market impact estimate.
type ImpactConfig struct {
	Coefficient            float64            `toml:"coefficient"`
	FallbackDailyVolumeUSD float64            `toml:"fallback_daily_volume_usd"`
	DailyVolumeUSD         map[string]float64 `toml:"daily_volume_usd"`
}

// EstimatorConfig holds the initial recompute inputs.
type EstimatorConfig struct {
	QuantityUSD float64  `toml:"quantity_usd"`
	Volatility  float64  `toml:"volatility"`
	FeeTier     string   `toml:"fee_tier"`
	Debounce    duration `toml:"debounce"`
}

// ModelConfig controls probe sampling and the slippage regression.
type ModelConfig struct {
	Enabled         bool      `toml:"enabled"`
	MinSamples      int       `toml:"min_samples"`
	Capacity        int       `toml:"capacity"`
	RetrainEvery    int       `toml:"retrain_every"`
	ProbeSizesUSD   []float64 `toml:"probe_sizes_usd"`
	ProbeRatePerSec float64   `toml:"probe_rate_per_sec"`
	ProbeBurst      int       `toml:"probe_burst"`
}

// RecorderConfig controls buffering of slippage log rows.
type RecorderConfig struct {
	QueueSize     int      `toml:"queue_size"`
	BatchSize     int      `toml:"batch_size"`
	FlushInterval duration `toml:"flush_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled        bool     `toml:"enabled"`
	Addr           string   `toml:"addr"`
	Password       string   `toml:"password"`
	DB             int      `toml:"db"`
	PoolSize       int      `toml:"pool_size"`
	MaxRetries     int      `toml:"max_retries"`
	TLSEnabled     bool     `toml:"tls_enabled"`
	BookTTL        duration `toml:"book_ttl"`
	MirrorInterval duration `toml:"mirror_interval"`
	MirrorDepth    int      `toml:"mirror_depth"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig schedules moving old log rows to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Cron          string   `toml:"cron"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
	BatchSize     int      `toml:"batch_size"`
	LockTTL       duration `toml:"lock_ttl"`
}

// ServerConfig holds HTTP server parameters. Each client IP may make
// RateLimit requests per RateLimitWindow; 0 disables limiting.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig routes operational alerts to chat webhooks. Events lists the
// alert types to forward; empty forwards all.
type NotifyConfig struct {
	Enabled           bool     `toml:"enabled"`
	Events            []string `toml:"events"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	MinR2             float64  `toml:"min_r2"`
	PerMinute         float64  `toml:"per_minute"`
	Burst             int      `toml:"burst"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:               "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/BTC-USDT-SWAP",
			Symbol:            "BTC-USDT-SWAP",
			Exchange:          "OKX",
			DefaultKind:       string(domain.UpdateSnapshot),
			HandshakeTimeout:  duration{15 * time.Second},
			ReadTimeout:       duration{60 * time.Second},
			PingInterval:      duration{20 * time.Second},
			ReconnectDelay:    duration{2 * time.Second},
			MaxReconnectDelay: duration{30 * time.Second},
			BreakerFailures:   5,
			BreakerCooldown:   duration{30 * time.Second},
			ShutdownTimeout:   duration{5 * time.Second},
		},
		Fees: FeesConfig{
			DefaultTakerRate: cost.DefaultTakerRate,
			Tiers:            cost.OKXTakerRates(),
		},
		Impact: ImpactConfig{
			Coefficient:            0.1,
			FallbackDailyVolumeUSD: cost.DefaultFallbackDailyVolumeUSD,
			DailyVolumeUSD: map[string]float64{
				"BTC-USDT-SWAP": 5e9,
				"ETH-USDT-SWAP": 2e9,
				"BTC-USDT":      1.5e9,
				"ETH-USDT":      6e8,
			},
		},
		Estimator: EstimatorConfig{
			QuantityUSD: 100,
			Volatility:  0.02,
			FeeTier:     "Regular User LV1",
			Debounce:    duration{50 * time.Millisecond},
		},
		Model: ModelConfig{
			Enabled:         true,
			MinSamples:      50,
			Capacity:        1000,
			RetrainEvery:    10,
			ProbeSizesUSD:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			ProbeRatePerSec: 1,
			ProbeBurst:      1,
		},
		Recorder: RecorderConfig{
			QueueSize:     4096,
			BatchSize:     200,
			FlushInterval: duration{2 * time.Second},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:        false,
			Addr:           "localhost:6379",
			DB:             0,
			PoolSize:       20,
			MaxRetries:     3,
			BookTTL:        duration{time.Minute},
			MirrorInterval: duration{500 * time.Millisecond},
			MirrorDepth:    50,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradecost-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 * * *",
			Interval:      duration{24 * time.Hour},
			RetentionDays: 30,
			BatchSize:     5000,
			LockTTL:       duration{10 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       20,
			RateLimitWindow: duration{time.Second},
		},
		Notify: NotifyConfig{
			Enabled:   false,
			MinR2:     0.5,
			PerMinute: 6,
			Burst:     3,
		},
		Mode:     "live",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":    true,
	"monitor": true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, monitor, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if c.Mode != "archive" {
		if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
			errs = append(errs, fmt.Sprintf("feed: url must be a ws:// or wss:// url, got %q", c.Feed.URL))
		}
	}
	if strings.TrimSpace(c.Feed.Symbol) == "" {
		errs = append(errs, "feed: symbol must not be empty")
	}
	switch domain.UpdateKind(c.Feed.DefaultKind) {
	case domain.UpdateSnapshot, domain.UpdateIncremental:
	default:
		errs = append(errs, fmt.Sprintf("feed: default_kind must be snapshot or update, got %q", c.Feed.DefaultKind))
	}
	if c.Feed.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "feed: reconnect_delay must be positive")
	}
	if c.Feed.MaxReconnectDelay.Duration < c.Feed.ReconnectDelay.Duration {
		errs = append(errs, "feed: max_reconnect_delay must be >= reconnect_delay")
	}
	if c.Feed.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, "feed: shutdown_timeout must be positive")
	}
	if c.Feed.BreakerFailures < 1 {
		errs = append(errs, "feed: breaker_failures must be >= 1")
	}

	// Fees
	if !validRate(c.Fees.DefaultTakerRate) {
		errs = append(errs, fmt.Sprintf("fees: default_taker_rate must be in [0, 1), got %v", c.Fees.DefaultTakerRate))
	}
	for tier, rate := range c.Fees.Tiers {
		if !validRate(rate) {
			errs = append(errs, fmt.Sprintf("fees: tier %q rate must be in [0, 1), got %v", tier, rate))
		}
	}

	// Impact
	if c.Impact.Coefficient < 0 || math.IsNaN(c.Impact.Coefficient) {
		errs = append(errs, "impact: coefficient must be >= 0")
	}
	if c.Impact.FallbackDailyVolumeUSD <= 0 {
		errs = append(errs, "impact: fallback_daily_volume_usd must be positive")
	}

	// Estimator
	if c.Estimator.QuantityUSD < 0 {
		errs = append(errs, "estimator: quantity_usd must be >= 0")
	}
	if c.Estimator.Volatility < 0 {
		errs = append(errs, "estimator: volatility must be >= 0")
	}
	if c.Estimator.Debounce.Duration < 0 {
		errs = append(errs, "estimator: debounce must be >= 0")
	}

	// Model
	if c.Model.Enabled {
		if c.Model.MinSamples < domain.FeatureDimension+1 {
			errs = append(errs, fmt.Sprintf("model: min_samples must be >= %d", domain.FeatureDimension+1))
		}
		if c.Model.Capacity < c.Model.MinSamples {
			errs = append(errs, "model: capacity must be >= min_samples")
		}
		if c.Model.RetrainEvery < 1 {
			errs = append(errs, "model: retrain_every must be >= 1")
		}
		if len(c.Model.ProbeSizesUSD) == 0 {
			errs = append(errs, "model: probe_sizes_usd must not be empty")
		}
		for _, s := range c.Model.ProbeSizesUSD {
			if s <= 0 {
				errs = append(errs, fmt.Sprintf("model: probe size must be positive, got %v", s))
			}
		}
		if c.Model.ProbeRatePerSec <= 0 {
			errs = append(errs, "model: probe_rate_per_sec must be positive")
		}
	}

	// Recorder
	if c.Recorder.QueueSize < 1 || c.Recorder.BatchSize < 1 {
		errs = append(errs, "recorder: queue_size and batch_size must be >= 1")
	}
	if c.Recorder.FlushInterval.Duration <= 0 {
		errs = append(errs, "recorder: flush_interval must be positive")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Mode == "monitor" && !c.Redis.Enabled {
		errs = append(errs, "monitor mode follows the mirrored book and requires redis.enabled")
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.MirrorInterval.Duration <= 0 {
			errs = append(errs, "redis: mirror_interval must be positive")
		}
		if c.Redis.MirrorDepth < 1 {
			errs = append(errs, "redis: mirror_depth must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Archive
	if c.Archive.Enabled || c.Mode == "archive" {
		if !c.Postgres.Enabled || !c.S3.Enabled {
			errs = append(errs, "archive: requires postgres.enabled and s3.enabled")
		}
		if c.Archive.Cron != "" {
			if _, err := schedule.Parse(c.Archive.Cron); err != nil {
				errs = append(errs, fmt.Sprintf("archive: cron: %v", err))
			}
		} else if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive when cron is empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be positive")
		}
	}

	// Notify
	if c.Notify.Enabled {
		if c.Notify.DiscordWebhookURL == "" && (c.Notify.TelegramToken == "" || c.Notify.TelegramChatID == "") {
			errs = append(errs, "notify: set discord_webhook_url or telegram_token and telegram_chat_id")
		}
		if c.Notify.PerMinute <= 0 || c.Notify.Burst < 1 {
			errs = append(errs, "notify: per_minute must be positive and burst >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validRate(r float64) bool {
	return r >= 0 && r < 1 && !math.IsNaN(r)
}

// EstimateRequest returns the configured initial recompute inputs.
func (c *Config) EstimateRequest() domain.EstimateRequest {
	return domain.EstimateRequest{
		QuantityUSD: c.Estimator.QuantityUSD,
		FeeTier:     c.Estimator.FeeTier,
		Volatility:  c.Estimator.Volatility,
		Symbol:      c.Feed.Symbol,
	}
}
