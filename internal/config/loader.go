package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TCOST_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TCOST_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "TCOST_FEED_URL")
	setStr(&cfg.Feed.Symbol, "TCOST_FEED_SYMBOL")
	setStr(&cfg.Feed.Exchange, "TCOST_FEED_EXCHANGE")
	setStr(&cfg.Feed.DefaultKind, "TCOST_FEED_DEFAULT_KIND")
	setDuration(&cfg.Feed.ReconnectDelay, "TCOST_FEED_RECONNECT_DELAY")
	setDuration(&cfg.Feed.ShutdownTimeout, "TCOST_FEED_SHUTDOWN_TIMEOUT")

	// ── Fees / impact ──
	setFloat64(&cfg.Fees.DefaultTakerRate, "TCOST_FEES_DEFAULT_TAKER_RATE")
	setFloat64(&cfg.Impact.Coefficient, "TCOST_IMPACT_COEFFICIENT")
	setFloat64(&cfg.Impact.FallbackDailyVolumeUSD, "TCOST_IMPACT_FALLBACK_DAILY_VOLUME_USD")

	// ── Estimator ──
	setFloat64(&cfg.Estimator.QuantityUSD, "TCOST_ESTIMATOR_QUANTITY_USD")
	setFloat64(&cfg.Estimator.Volatility, "TCOST_ESTIMATOR_VOLATILITY")
	setStr(&cfg.Estimator.FeeTier, "TCOST_ESTIMATOR_FEE_TIER")
	setDuration(&cfg.Estimator.Debounce, "TCOST_ESTIMATOR_DEBOUNCE")

	// ── Model ──
	setBool(&cfg.Model.Enabled, "TCOST_MODEL_ENABLED")
	setInt(&cfg.Model.MinSamples, "TCOST_MODEL_MIN_SAMPLES")
	setInt(&cfg.Model.Capacity, "TCOST_MODEL_CAPACITY")
	setInt(&cfg.Model.RetrainEvery, "TCOST_MODEL_RETRAIN_EVERY")
	setFloat64Slice(&cfg.Model.ProbeSizesUSD, "TCOST_MODEL_PROBE_SIZES_USD")
	setFloat64(&cfg.Model.ProbeRatePerSec, "TCOST_MODEL_PROBE_RATE_PER_SEC")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TCOST_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TCOST_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TCOST_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TCOST_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TCOST_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TCOST_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TCOST_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TCOST_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "TCOST_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TCOST_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TCOST_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TCOST_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TCOST_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "TCOST_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.MirrorInterval, "TCOST_REDIS_MIRROR_INTERVAL")
	setInt(&cfg.Redis.MirrorDepth, "TCOST_REDIS_MIRROR_DEPTH")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TCOST_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TCOST_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TCOST_S3_REGION")
	setStr(&cfg.S3.Bucket, "TCOST_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TCOST_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TCOST_S3_SECRET_KEY")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TCOST_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "TCOST_ARCHIVE_CRON")
	setDuration(&cfg.Archive.Interval, "TCOST_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "TCOST_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TCOST_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TCOST_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TCOST_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TCOST_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TCOST_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "TCOST_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setBool(&cfg.Notify.Enabled, "TCOST_NOTIFY_ENABLED")
	setStringSlice(&cfg.Notify.Events, "TCOST_NOTIFY_EVENTS")
	setStr(&cfg.Notify.DiscordWebhookURL, "TCOST_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "TCOST_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TCOST_TELEGRAM_CHAT_ID")

	// ── Top-level ──
	setStr(&cfg.Mode, "TCOST_MODE")
	setStr(&cfg.LogLevel, "TCOST_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

func setFloat64Slice(dst *[]float64, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]float64, 0, len(parts))
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return
			}
			out = append(out, f)
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
