package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KALSHIBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KALSHIBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "KALSHIBOT_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "KALSHIBOT_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "KALSHIBOT_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "KALSHIBOT_KALSHI_WS_URL")
	setInt(&cfg.Kalshi.RequestsPerSecond, "KALSHIBOT_KALSHI_REQUESTS_PER_SECOND")

	// ── xAI ──
	setStr(&cfg.XAI.ApiKey, "KALSHIBOT_XAI_API_KEY")
	setStr(&cfg.XAI.BaseURL, "KALSHIBOT_XAI_BASE_URL")
	setStr(&cfg.XAI.Model, "KALSHIBOT_XAI_MODEL")
	setFloat64(&cfg.XAI.DailyBudget, "KALSHIBOT_XAI_DAILY_BUDGET")
	setFloat64(&cfg.XAI.CostPerMillionTokens, "KALSHIBOT_XAI_COST_PER_MILLION_TOKENS")
	setDuration(&cfg.XAI.Timeout, "KALSHIBOT_XAI_TIMEOUT")

	// ── Store ──
	setStr(&cfg.Store.Driver, "KALSHIBOT_STORE_DRIVER")
	setStr(&cfg.Store.SQLitePath, "KALSHIBOT_STORE_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "KALSHIBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "KALSHIBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "KALSHIBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "KALSHIBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "KALSHIBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "KALSHIBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "KALSHIBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "KALSHIBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "KALSHIBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "KALSHIBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "KALSHIBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "KALSHIBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KALSHIBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KALSHIBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KALSHIBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KALSHIBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KALSHIBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "KALSHIBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "KALSHIBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KALSHIBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "KALSHIBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KALSHIBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KALSHIBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KALSHIBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KALSHIBOT_S3_FORCE_PATH_STYLE")

	// ── Paper ──
	setFloat64(&cfg.Paper.StartingCash, "KALSHIBOT_PAPER_STARTING_CASH")

	// ── Scheduler ──
	setFloat64(&cfg.Scheduler.MarketMakingAllocation, "KALSHIBOT_SCHEDULER_MARKET_MAKING_ALLOCATION")
	setFloat64(&cfg.Scheduler.DirectionalAllocation, "KALSHIBOT_SCHEDULER_DIRECTIONAL_ALLOCATION")
	setFloat64(&cfg.Scheduler.QuickFlipAllocation, "KALSHIBOT_SCHEDULER_QUICK_FLIP_ALLOCATION")
	setFloat64(&cfg.Scheduler.ArbitrageAllocation, "KALSHIBOT_SCHEDULER_ARBITRAGE_ALLOCATION")
	setInt(&cfg.Scheduler.MaxPositions, "KALSHIBOT_SCHEDULER_MAX_POSITIONS")
	setFloat64(&cfg.Scheduler.VolumeMin, "KALSHIBOT_SCHEDULER_VOLUME_MIN")
	setInt(&cfg.Scheduler.MaxDaysToExpiry, "KALSHIBOT_SCHEDULER_MAX_DAYS_TO_EXPIRY")
	setDuration(&cfg.Scheduler.TradingInterval, "KALSHIBOT_SCHEDULER_TRADING_INTERVAL")

	// ── Portfolio ──
	setFloat64(&cfg.Portfolio.MaxSinglePosition, "KALSHIBOT_PORTFOLIO_MAX_SINGLE_POSITION")
	setFloat64(&cfg.Portfolio.MaxPortfolioVolatility, "KALSHIBOT_PORTFOLIO_MAX_PORTFOLIO_VOLATILITY")
	setFloat64(&cfg.Portfolio.MaxTotalAllocation, "KALSHIBOT_PORTFOLIO_MAX_TOTAL_ALLOCATION")
	setFloat64(&cfg.Portfolio.KellyFraction, "KALSHIBOT_PORTFOLIO_KELLY_FRACTION")
	setStr(&cfg.Portfolio.CorrelationModel, "KALSHIBOT_PORTFOLIO_CORRELATION_MODEL")
	setFloat64(&cfg.Portfolio.GroupCorrelation, "KALSHIBOT_PORTFOLIO_GROUP_CORRELATION")

	// ── Tracker ──
	setDuration(&cfg.Tracker.Interval, "KALSHIBOT_TRACKER_INTERVAL")
	setFloat64(&cfg.Tracker.ProfitTaking, "KALSHIBOT_TRACKER_PROFIT_TAKING")
	setFloat64(&cfg.Tracker.StopLoss, "KALSHIBOT_TRACKER_STOP_LOSS")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.IngestionInterval, "KALSHIBOT_PIPELINE_INGESTION_INTERVAL")
	setDuration(&cfg.Pipeline.EvaluationInterval, "KALSHIBOT_PIPELINE_EVALUATION_INTERVAL")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "KALSHIBOT_PIPELINE_ARCHIVE_RETENTION_DAYS")

	// ── Scalper ──
	setBool(&cfg.Scalper.Live, "KALSHIBOT_SCALPER_LIVE")
	setStr(&cfg.Scalper.Source, "KALSHIBOT_SCALPER_SOURCE")
	setStr(&cfg.Scalper.Sport, "KALSHIBOT_SCALPER_SPORT")
	setStr(&cfg.Scalper.SportsData.ApiKey, "KALSHIBOT_SCALPER_SPORTSDATA_API_KEY")
	setStr(&cfg.Scalper.OddsAPI.ApiKey, "KALSHIBOT_SCALPER_ODDSAPI_API_KEY")
	setInt(&cfg.Scalper.OrderQuantity, "KALSHIBOT_SCALPER_ORDER_QUANTITY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KALSHIBOT_NOTIFY_TELEGRAM_TOKEN")
	setInt64(&cfg.Notify.TelegramChatID, "KALSHIBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KALSHIBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KALSHIBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "KALSHIBOT_MODE")
	setStr(&cfg.LogLevel, "KALSHIBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
