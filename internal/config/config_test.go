package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/config"
)

func validPaper() config.Config {
	cfg := config.Defaults()
	cfg.Kalshi.ApiKey = "key-id"
	cfg.Kalshi.RsaPrivateKeyPath = "/keys/kalshi.pem"
	cfg.XAI.ApiKey = "xai-key"
	return cfg
}

func TestDefaults_AllocationSplit(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, 0.30, cfg.Scheduler.MarketMakingAllocation)
	assert.Equal(t, 0.40, cfg.Scheduler.DirectionalAllocation)
	assert.Equal(t, 0.30, cfg.Scheduler.QuickFlipAllocation)
	assert.Equal(t, 0.00, cfg.Scheduler.ArbitrageAllocation)
	assert.Equal(t, "paper", cfg.Mode)
	assert.Equal(t, 50.0, cfg.XAI.DailyBudget)
}

func TestValidate_DefaultsWithCredentialsPass(t *testing.T) {
	cfg := validPaper()
	require.NoError(t, cfg.Validate())
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg := config.Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kalshi: api_key is required")
	assert.Contains(t, err.Error(), "xai: api_key is required")
}

func TestValidate_AllocationsOverOne(t *testing.T) {
	cfg := validPaper()
	cfg.Scheduler.DirectionalAllocation = 0.9
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allocations must sum to <= 1.0")
}

func TestValidate_PortfolioLimits(t *testing.T) {
	cfg := validPaper()
	assert.Equal(t, 1.0, cfg.Portfolio.MaxTotalAllocation)
	assert.Equal(t, "grouped", cfg.Portfolio.CorrelationModel)

	cfg.Portfolio.MaxTotalAllocation = 1.2
	cfg.Portfolio.CorrelationModel = "pearson"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_total_allocation must be within (0, 1]")
	assert.Contains(t, err.Error(), `correlation_model must be independent or grouped, got "pearson"`)

	cfg = validPaper()
	cfg.Portfolio.GroupCorrelation = 1.5
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group_correlation must be within [0, 1]")
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validPaper()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
}

func TestValidate_DashboardNeedsRedis(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "dashboard"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dashboard mode needs redis")

	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestUsesLiveExchange(t *testing.T) {
	cfg := config.Defaults()
	assert.False(t, cfg.UsesLiveExchange())

	cfg.Mode = "live"
	assert.True(t, cfg.UsesLiveExchange())

	cfg.Mode = "scalp"
	assert.False(t, cfg.UsesLiveExchange())
	cfg.Scalper.Live = true
	assert.True(t, cfg.UsesLiveExchange())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "live"

[tracker]
interval = "45s"

[xai]
daily_budget = 12.5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("KALSHIBOT_XAI_API_KEY", "from-env")
	t.Setenv("KALSHIBOT_NOTIFY_EVENTS", "position_opened, error")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, 45*time.Second, cfg.Tracker.Interval.Duration)
	assert.Equal(t, 12.5, cfg.XAI.DailyBudget)
	assert.Equal(t, "from-env", cfg.XAI.ApiKey)
	assert.Equal(t, []string{"position_opened", "error"}, cfg.Notify.Events)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.25, cfg.Tracker.ProfitTaking)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validPaper()
	cfg.Notify.TelegramToken = "tg-secret"

	out := config.RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Kalshi.ApiKey)
	assert.Equal(t, "***", out.XAI.ApiKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "", out.Notify.DiscordWebhookURL)

	assert.Equal(t, "key-id", cfg.Kalshi.ApiKey)
	out.Notify.Events[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Notify.Events[0])
}
