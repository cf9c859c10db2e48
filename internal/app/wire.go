package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/kalshibot/internal/blob/s3"
	"github.com/alanyoungcy/kalshibot/internal/cache/redis"
	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
	"github.com/alanyoungcy/kalshibot/internal/notify"
	"github.com/alanyoungcy/kalshibot/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshibot/internal/platform/paper"
	"github.com/alanyoungcy/kalshibot/internal/store/postgres"
	"github.com/alanyoungcy/kalshibot/internal/store/sqlite"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Optional sinks (caches, bus, archiver) are nil when their
// backend is disabled.
type Dependencies struct {
	Store domain.Store

	// Redis-backed, nil unless redis.enabled.
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// S3-backed, nil unless s3.enabled.
	Archiver domain.Archiver

	Notifier *notify.Notifier
	Events   *executor.Events

	// Exchange access, nil in dashboard mode. MarketData always reads the
	// real exchange; Exchange is either the same adapter or the paper
	// simulator on top of it.
	Signer     *kalshi.Signer
	MarketData *kalshi.Exchange
	Exchange   domain.Exchange
}

// needsExchange returns true for modes that read markets or place orders.
func needsExchange(mode string) bool {
	return mode != "dashboard"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Persistence ---
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = store.Close() })
	deps.Store = store

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
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
	}

	// --- S3 archive ---
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.Warn("s3 bucket unreachable, archival will retry", slog.String("error", err.Error()))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), store, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			logger.Warn("telegram disabled", slog.String("error", err.Error()))
		} else {
			senders = append(senders, tg)
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Events = executor.NewEvents(deps.SignalBus, deps.Notifier, logger)

	// --- Exchange ---
	if needsExchange(cfg.Mode) {
		signer, err := kalshi.LoadSigner(cfg.Kalshi.ApiKey, cfg.Kalshi.RsaPrivateKeyPath)
		if err != nil {
			return fail(fmt.Errorf("wire: kalshi signer: %w", err))
		}
		var opts []kalshi.ClientOption
		if deps.RateLimiter != nil {
			opts = append(opts, kalshi.WithRateLimiter(deps.RateLimiter, cfg.Kalshi.RequestsPerSecond))
		}
		client := kalshi.NewClient(cfg.Kalshi.BaseURL, signer, opts...)

		deps.Signer = signer
		deps.MarketData = kalshi.NewExchange(client, cfg.Kalshi.MaxMarketPages)
		if cfg.UsesLiveExchange() {
			deps.Exchange = deps.MarketData
		} else {
			deps.Exchange = paper.New(deps.MarketData, cfg.Paper.StartingCash)
		}
		logger.Info("exchange ready",
			slog.Bool("live", deps.Exchange.Live()),
			slog.Bool("shared_rate_limit", deps.RateLimiter != nil),
		)
	}

	return deps, cleanup, nil
}

// OpenStore opens the configured persistence backend, running migrations for
// postgres when enabled.
func OpenStore(ctx context.Context, cfg *config.Config) (domain.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
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
			return nil, fmt.Errorf("wire: postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				pgClient.Close()
				return nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		return postgres.NewStore(pgClient), nil
	default:
		s, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		return s, nil
	}
}
