package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	req := cfg.EstimateRequest()
	assert.Equal(t, 100.0, req.QuantityUSD)
	assert.Equal(t, "Regular User LV1", req.FeeTier)
	assert.Equal(t, 0.02, req.Volatility)
	assert.Equal(t, "BTC-USDT-SWAP", req.Symbol)
	assert.Equal(t, 50*time.Millisecond, cfg.Estimator.Debounce.Duration)
	assert.Equal(t, 5*time.Second, cfg.Feed.ShutdownTimeout.Duration)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Feed.URL = "http://example.com"
	cfg.Feed.DefaultKind = "diff"
	cfg.Fees.Tiers["Broken"] = 1.5
	cfg.Model.Capacity = 10
	cfg.Archive.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "feed: url")
	assert.Contains(t, msg, "default_kind")
	assert.Contains(t, msg, `tier "Broken"`)
	assert.Contains(t, msg, "model: capacity")
	assert.Contains(t, msg, "archive: requires")
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "monitor"
log_level = "debug"

[feed]
url = "ws://localhost:9001/ws"
symbol = "ETH-USDT-SWAP"
default_kind = "update"
shutdown_timeout = "3s"

[fees.tiers]
"House" = 0.0002

[estimator]
quantity_usd = 250.5
debounce = "75ms"

[model]
probe_sizes_usd = [100.0, 200.0]

[redis]
enabled = true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("TCOST_ESTIMATOR_VOLATILITY", "0.05")
	t.Setenv("TCOST_SERVER_PORT", "9100")
	t.Setenv("TCOST_MODEL_PROBE_SIZES_USD", "10, 20,30")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "ETH-USDT-SWAP", cfg.Feed.Symbol)
	assert.Equal(t, "update", cfg.Feed.DefaultKind)
	assert.Equal(t, 3*time.Second, cfg.Feed.ShutdownTimeout.Duration)
	assert.Equal(t, 0.0002, cfg.Fees.Tiers["House"])
	assert.Equal(t, 250.5, cfg.Estimator.QuantityUSD)
	assert.Equal(t, 75*time.Millisecond, cfg.Estimator.Debounce.Duration)
	assert.Equal(t, 0.05, cfg.Estimator.Volatility)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []float64{10, 20, 30}, cfg.Model.ProbeSizesUSD)
}

func TestValidate_MonitorNeedsRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires redis.enabled")

	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Redis.MirrorDepth)

	cfg.Redis.MirrorDepth = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror_depth")
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "live", cfg.Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "s3cret"
	cfg.Server.APIKey = "key"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "", out.Redis.Password)

	out.Fees.Tiers["VIP 1"] = 0.5
	assert.Equal(t, 0.0008, cfg.Fees.Tiers["VIP 1"])
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}

func TestValidate_NotifyNeedsSender(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify: set discord_webhook_url")

	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.TelegramChatID = "42"
	assert.NoError(t, cfg.Validate())

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "42", out.Notify.TelegramChatID)
}
