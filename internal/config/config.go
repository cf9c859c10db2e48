// Package config defines the top-level configuration for the kalshi trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KALSHIBOT_* environment variables.
type Config struct {
	Kalshi      KalshiConfig      `toml:"kalshi"`
	XAI         XAIConfig         `toml:"xai"`
	Store       StoreConfig       `toml:"store"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Paper       PaperConfig       `toml:"paper"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Portfolio   PortfolioConfig   `toml:"portfolio"`
	Opportunity OpportunityConfig `toml:"opportunity"`
	MarketMaker MarketMakerConfig `toml:"market_making"`
	QuickFlip   QuickFlipConfig   `toml:"quick_flip"`
	Legacy      LegacyConfig      `toml:"legacy"`
	Tracker     TrackerConfig     `toml:"tracker"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Scalper     ScalperConfig     `toml:"scalper"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// KalshiConfig holds Kalshi exchange API credentials and pacing.
type KalshiConfig struct {
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
	WsURL             string `toml:"ws_url"`
	RequestsPerSecond int    `toml:"requests_per_second"`
	MaxMarketPages    int    `toml:"max_market_pages"`
}

// XAIConfig holds the AI decision model endpoint and budget.
type XAIConfig struct {
	ApiKey               string   `toml:"api_key"`
	BaseURL              string   `toml:"base_url"`
	Model                string   `toml:"model"`
	Timeout              duration `toml:"timeout"`
	MaxAttempts          int      `toml:"max_attempts"`
	RetryBackoff         duration `toml:"retry_backoff"`
	CostPerMillionTokens float64  `toml:"cost_per_million_tokens"`
	DailyBudget          float64  `toml:"daily_budget"`
	RequestsPerSecond    float64  `toml:"requests_per_second"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	PriceTTL     duration `toml:"price_ttl"`
	StreamMaxLen int      `toml:"stream_max_len"`
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

// PaperConfig configures the simulated exchange.
type PaperConfig struct {
	StartingCash float64 `toml:"starting_cash"`
}

// SchedulerConfig holds the unified scheduler's capital split and risk gates.
type SchedulerConfig struct {
	MarketMakingAllocation float64  `toml:"market_making_allocation"`
	DirectionalAllocation  float64  `toml:"directional_allocation"`
	QuickFlipAllocation    float64  `toml:"quick_flip_allocation"`
	ArbitrageAllocation    float64  `toml:"arbitrage_allocation"`
	MaxPositions           int      `toml:"max_positions"`
	VolumeMin              float64  `toml:"volume_min"`
	MaxDaysToExpiry        int      `toml:"max_days_to_expiry"`
	FallbackCapital        float64  `toml:"fallback_capital"`
	FallbackPrice          float64  `toml:"fallback_price"`
	MinCashRatio           float64  `toml:"min_cash_ratio"`
	HaltCashRatio          float64  `toml:"halt_cash_ratio"`
	ReduceFactor           float64  `toml:"reduce_factor"`
	TradingInterval        duration `toml:"trading_interval"`
	BudgetRecheckInterval  duration `toml:"budget_recheck_interval"`
	CycleLockTTL           duration `toml:"cycle_lock_ttl"`
}

// PortfolioConfig holds the optimizer's risk limits.
type PortfolioConfig struct {
	MaxSinglePosition      float64 `toml:"max_single_position"`
	MaxTotalAllocation     float64 `toml:"max_total_allocation"`
	MaxCorrelation         float64 `toml:"max_correlation"`
	MaxPortfolioVolatility float64 `toml:"max_portfolio_volatility"`
	TargetSharpe           float64 `toml:"target_sharpe"`
	MaxDrawdown            float64 `toml:"max_drawdown"`
	KellyFraction          float64 `toml:"kelly_fraction"`
	MinFraction            float64 `toml:"min_fraction"`
	// CorrelationModel is "independent" or "grouped". Grouped treats markets
	// in the same series as correlated at GroupCorrelation.
	CorrelationModel string  `toml:"correlation_model"`
	GroupCorrelation float64 `toml:"group_correlation"`
}

// OpportunityConfig holds the builder's scan limits and edge-filter gates.
type OpportunityConfig struct {
	TopN                   int     `toml:"top_n"`
	MinProbability         float64 `toml:"min_probability"`
	MaxProbability         float64 `toml:"max_probability"`
	MinEdge                float64 `toml:"min_edge"`
	MinConfidence          float64 `toml:"min_confidence"`
	MinExpectedReturn      float64 `toml:"min_expected_return"`
	ImmediateEdge          float64 `toml:"immediate_edge"`
	ImmediateConfidence    float64 `toml:"immediate_confidence"`
	ImmediateReturn        float64 `toml:"immediate_return"`
	ImmediateCashFraction  float64 `toml:"immediate_cash_fraction"`
	ImmediateTradesEnabled bool    `toml:"immediate_trades_enabled"`
}

// MarketMakerConfig holds the market-making executor's parameters.
type MarketMakerConfig struct {
	MinSpread        float64 `toml:"min_spread"`
	CapitalPerMarket float64 `toml:"capital_per_market"`
	MaxQuantity      int     `toml:"max_quantity"`
	MinVolume        float64 `toml:"min_volume"`
}

// QuickFlipConfig holds the quick-flip executor's parameters. Prices are in cents.
type QuickFlipConfig struct {
	MinEntryCents       int      `toml:"min_entry_cents"`
	MaxEntryCents       int      `toml:"max_entry_cents"`
	MaxTargetCents      int      `toml:"max_target_cents"`
	MinProfitMargin     float64  `toml:"min_profit_margin"`
	MaxPositionSize     int      `toml:"max_position_size"`
	MaxConcurrent       int      `toml:"max_concurrent"`
	CapitalPerTrade     float64  `toml:"capital_per_trade"`
	ConfidenceThreshold float64  `toml:"confidence_threshold"`
	MaxHold             duration `toml:"max_hold"`
	MaxCandidates       int      `toml:"max_candidates"`
}

// LegacyConfig holds the fallback strategy's parameters.
type LegacyConfig struct {
	VolumeMin     float64 `toml:"volume_min"`
	TopN          int     `toml:"top_n"`
	MinConfidence float64 `toml:"min_confidence"`
	Quantity      int     `toml:"quantity"`
}

// TrackerConfig holds the position tracker's cadence and exit thresholds.
type TrackerConfig struct {
	Interval      duration `toml:"interval"`
	ErrorInterval duration `toml:"error_interval"`
	ProfitTaking  float64  `toml:"profit_taking"`
	StopLoss      float64  `toml:"stop_loss"`
	MaxHold       duration `toml:"max_hold"`
}

// PipelineConfig holds the background loop cadences.
type PipelineConfig struct {
	IngestionInterval      duration `toml:"ingestion_interval"`
	IngestionErrorInterval duration `toml:"ingestion_error_interval"`
	EvaluationInterval     duration `toml:"evaluation_interval"`
	ArchiveInterval        duration `toml:"archive_interval"`
	ArchiveRetentionDays   int      `toml:"archive_retention_days"`
}

// ScalperConfig holds the live-event scalper's parameters.
type ScalperConfig struct {
	Live             bool          `toml:"live"`
	Source           string        `toml:"source"`
	Sport            string        `toml:"sport"`
	RescanInterval   duration      `toml:"rescan_interval"`
	ReconnectBackoff duration      `toml:"reconnect_backoff"`
	LatePeriod       int           `toml:"late_period"`
	OrderQuantity    int           `toml:"order_quantity"`
	MailboxSize      int           `toml:"mailbox_size"`
	SportsData       SportsDataCfg `toml:"sportsdata"`
	OddsAPI          OddsAPICfg    `toml:"oddsapi"`
	Routes           []RouteConfig `toml:"routes"`
}

// SportsDataCfg configures the SportsData.io poller.
type SportsDataCfg struct {
	ApiKey       string   `toml:"api_key"`
	BaseURL      string   `toml:"base_url"`
	PollInterval duration `toml:"poll_interval"`
}

// OddsAPICfg configures The Odds API websocket feed.
type OddsAPICfg struct {
	ApiKey string `toml:"api_key"`
	WsURL  string `toml:"ws_url"`
}

// RouteConfig is one row of the scalper's declarative routing table.
type RouteConfig struct {
	Name     string   `toml:"name"`
	Keywords []string `toml:"keywords"`
	Trigger  string   `toml:"trigger"`
	Enabled  bool     `toml:"enabled"`
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

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    int64    `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL:           "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:             "wss://api.elections.kalshi.com/trade-api/ws/v2",
			RequestsPerSecond: 10,
			MaxMarketPages:    10,
		},
		XAI: XAIConfig{
			BaseURL:              "https://api.x.ai/v1",
			Model:                "grok-4",
			Timeout:              duration{60 * time.Second},
			MaxAttempts:          2,
			RetryBackoff:         duration{time.Second},
			CostPerMillionTokens: 10.0,
			DailyBudget:          50.0,
			RequestsPerSecond:    2,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "kalshibot.db",
		},
		Postgres: PostgresConfig{
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
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			PriceTTL:     duration{15 * time.Minute},
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "kalshibot-data",
			ForcePathStyle: true,
		},
		Paper: PaperConfig{
			StartingCash: 1000,
		},
		Scheduler: SchedulerConfig{
			MarketMakingAllocation: 0.30,
			DirectionalAllocation:  0.40,
			QuickFlipAllocation:    0.30,
			ArbitrageAllocation:    0.00,
			MaxPositions:           50,
			VolumeMin:              200,
			MaxDaysToExpiry:        365,
			FallbackCapital:        100,
			FallbackPrice:          0.50,
			MinCashRatio:           0.10,
			HaltCashRatio:          0.02,
			ReduceFactor:           0.5,
			TradingInterval:        duration{60 * time.Second},
			BudgetRecheckInterval:  duration{300 * time.Second},
			CycleLockTTL:           duration{5 * time.Minute},
		},
		Portfolio: PortfolioConfig{
			MaxSinglePosition:      0.15,
			MaxTotalAllocation:     1.0,
			MaxCorrelation:         0.70,
			MaxPortfolioVolatility: 0.20,
			TargetSharpe:           2.0,
			MaxDrawdown:            0.15,
			KellyFraction:          0.25,
			MinFraction:            0.005,
			CorrelationModel:       "grouped",
			GroupCorrelation:       0.80,
		},
		Opportunity: OpportunityConfig{
			TopN:                   10,
			MinProbability:         0.05,
			MaxProbability:         0.95,
			MinEdge:                0.10,
			MinConfidence:          0.65,
			MinExpectedReturn:      0.05,
			ImmediateEdge:          0.15,
			ImmediateConfidence:    0.75,
			ImmediateReturn:        0.08,
			ImmediateCashFraction:  0.80,
			ImmediateTradesEnabled: true,
		},
		MarketMaker: MarketMakerConfig{
			MinSpread:        0.03,
			CapitalPerMarket: 100,
			MaxQuantity:      100,
			MinVolume:        1000,
		},
		QuickFlip: QuickFlipConfig{
			MinEntryCents:       1,
			MaxEntryCents:       20,
			MaxTargetCents:      95,
			MinProfitMargin:     1.0,
			MaxPositionSize:     100,
			MaxConcurrent:       50,
			CapitalPerTrade:     50,
			ConfidenceThreshold: 0.6,
			MaxHold:             duration{30 * time.Minute},
			MaxCandidates:       20,
		},
		Legacy: LegacyConfig{
			VolumeMin:     20000,
			TopN:          5,
			MinConfidence: 0.60,
			Quantity:      1,
		},
		Tracker: TrackerConfig{
			Interval:      duration{120 * time.Second},
			ErrorInterval: duration{30 * time.Second},
			ProfitTaking:  0.25,
			StopLoss:      0.10,
			MaxHold:       duration{72 * time.Hour},
		},
		Pipeline: PipelineConfig{
			IngestionInterval:      duration{300 * time.Second},
			IngestionErrorInterval: duration{60 * time.Second},
			EvaluationInterval:     duration{300 * time.Second},
			ArchiveInterval:        duration{24 * time.Hour},
			ArchiveRetentionDays:   30,
		},
		Scalper: ScalperConfig{
			Source:           "sportsdata",
			Sport:            "nfl",
			RescanInterval:   duration{60 * time.Second},
			ReconnectBackoff: duration{10 * time.Second},
			LatePeriod:       4,
			OrderQuantity:    1,
			MailboxSize:      256,
			SportsData: SportsDataCfg{
				BaseURL:      "https://api.sportsdata.io",
				PollInterval: duration{10 * time.Second},
			},
			OddsAPI: OddsAPICfg{
				WsURL: "wss://ws.the-odds-api.com/v4/live",
			},
			Routes: []RouteConfig{
				{
					Name:     "sports_play_by_play",
					Keywords: []string{"match", "wins by over", "points scored"},
					Trigger:  "late_lead_change",
					Enabled:  true,
				},
				{
					Name:     "financial_events",
					Keywords: []string{"earnings call", "eur/usd"},
					Trigger:  "",
					Enabled:  false,
				},
			},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "budget_exhausted", "cash_emergency", "error"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper":     true,
	"live":      true,
	"dashboard": true,
	"scalp":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// UsesLiveExchange reports whether orders in this configuration reach the real
// exchange.
func (c *Config) UsesLiveExchange() bool {
	switch strings.ToLower(c.Mode) {
	case "live":
		return true
	case "scalp":
		return c.Scalper.Live
	default:
		return false
	}
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, live, dashboard, scalp)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Kalshi. Market data is always read from Kalshi, so the key is needed in
	// every mode except dashboard.
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Mode != "dashboard" {
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required for mode "+c.Mode)
		}
		if c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: rsa_private_key_path is required for mode "+c.Mode)
		}
	}
	if c.Kalshi.RequestsPerSecond < 1 {
		errs = append(errs, "kalshi: requests_per_second must be >= 1")
	}

	// xAI
	if c.Mode == "paper" || c.Mode == "live" {
		if c.XAI.ApiKey == "" {
			errs = append(errs, "xai: api_key is required for mode "+c.Mode)
		}
	}
	if c.XAI.MaxAttempts < 1 {
		errs = append(errs, "xai: max_attempts must be >= 1")
	}
	if c.XAI.DailyBudget <= 0 {
		errs = append(errs, "xai: daily_budget must be > 0")
	}
	if c.XAI.CostPerMillionTokens < 0 {
		errs = append(errs, "xai: cost_per_million_tokens must be >= 0")
	}

	// Store
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store: sqlite_path must not be empty")
		}
	case "postgres":
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: sqlite, postgres)", c.Store.Driver))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Mode == "dashboard" && !c.Redis.Enabled {
		errs = append(errs, "redis: dashboard mode needs redis.enabled = true")
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

	// Scheduler
	s := c.Scheduler
	for name, v := range map[string]float64{
		"market_making_allocation": s.MarketMakingAllocation,
		"directional_allocation":   s.DirectionalAllocation,
		"quick_flip_allocation":    s.QuickFlipAllocation,
		"arbitrage_allocation":     s.ArbitrageAllocation,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("scheduler: %s must be within [0, 1], got %.2f", name, v))
		}
	}
	if sum := s.MarketMakingAllocation + s.DirectionalAllocation + s.QuickFlipAllocation + s.ArbitrageAllocation; sum > 1.0+1e-9 {
		errs = append(errs, fmt.Sprintf("scheduler: allocations must sum to <= 1.0, got %.2f", sum))
	}
	if s.MaxPositions < 1 {
		errs = append(errs, "scheduler: max_positions must be >= 1")
	}
	if s.HaltCashRatio > s.MinCashRatio {
		errs = append(errs, "scheduler: halt_cash_ratio must not exceed min_cash_ratio")
	}
	if s.ReduceFactor <= 0 || s.ReduceFactor > 1 {
		errs = append(errs, "scheduler: reduce_factor must be within (0, 1]")
	}
	if s.TradingInterval.Duration <= 0 {
		errs = append(errs, "scheduler: trading_interval must be > 0")
	}

	// Portfolio
	p := c.Portfolio
	if p.MaxSinglePosition <= 0 || p.MaxSinglePosition > 1 {
		errs = append(errs, "portfolio: max_single_position must be within (0, 1]")
	}
	if p.MaxTotalAllocation <= 0 || p.MaxTotalAllocation > 1 {
		errs = append(errs, "portfolio: max_total_allocation must be within (0, 1]")
	}
	if p.MaxPortfolioVolatility <= 0 {
		errs = append(errs, "portfolio: max_portfolio_volatility must be > 0")
	}
	if p.MaxCorrelation < 0 || p.MaxCorrelation > 1 {
		errs = append(errs, "portfolio: max_correlation must be within [0, 1]")
	}
	if p.KellyFraction <= 0 || p.KellyFraction > 1 {
		errs = append(errs, "portfolio: kelly_fraction must be within (0, 1]")
	}
	switch p.CorrelationModel {
	case "independent":
	case "grouped":
		if p.GroupCorrelation < 0 || p.GroupCorrelation > 1 {
			errs = append(errs, "portfolio: group_correlation must be within [0, 1]")
		}
	default:
		errs = append(errs, fmt.Sprintf("portfolio: correlation_model must be independent or grouped, got %q", p.CorrelationModel))
	}

	// Opportunity
	o := c.Opportunity
	if o.TopN < 1 {
		errs = append(errs, "opportunity: top_n must be >= 1")
	}
	if o.MinProbability < 0 || o.MaxProbability > 1 || o.MinProbability >= o.MaxProbability {
		errs = append(errs, "opportunity: need 0 <= min_probability < max_probability <= 1")
	}
	if math.Abs(o.ImmediateCashFraction) > 1 {
		errs = append(errs, "opportunity: immediate_cash_fraction must be within [0, 1]")
	}

	// Quick flip
	q := c.QuickFlip
	if q.MinEntryCents < 1 || q.MaxEntryCents > 99 || q.MinEntryCents > q.MaxEntryCents {
		errs = append(errs, "quick_flip: need 1 <= min_entry_cents <= max_entry_cents <= 99")
	}
	if q.CapitalPerTrade <= 0 {
		errs = append(errs, "quick_flip: capital_per_trade must be > 0")
	}

	// Tracker
	if c.Tracker.Interval.Duration <= 0 || c.Tracker.ErrorInterval.Duration <= 0 {
		errs = append(errs, "tracker: interval and error_interval must be > 0")
	}
	if c.Tracker.ProfitTaking <= 0 || c.Tracker.StopLoss <= 0 {
		errs = append(errs, "tracker: profit_taking and stop_loss must be > 0")
	}

	// Scalper
	if c.Mode == "scalp" {
		switch c.Scalper.Source {
		case "sportsdata":
			if c.Scalper.SportsData.ApiKey == "" {
				errs = append(errs, "scalper: sportsdata.api_key is required for source sportsdata")
			}
		case "oddsapi":
			if c.Scalper.OddsAPI.ApiKey == "" {
				errs = append(errs, "scalper: oddsapi.api_key is required for source oddsapi")
			}
		default:
			errs = append(errs, fmt.Sprintf("scalper: unknown source %q (valid: sportsdata, oddsapi)", c.Scalper.Source))
		}
		if c.Scalper.OrderQuantity < 1 {
			errs = append(errs, "scalper: order_quantity must be >= 1")
		}
	}
	for i, r := range c.Scalper.Routes {
		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("scalper: routes[%d] needs a name", i))
		}
		if len(r.Keywords) == 0 {
			errs = append(errs, fmt.Sprintf("scalper: route %q has no keywords", r.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
