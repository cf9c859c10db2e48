package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/budget"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
	"github.com/alanyoungcy/kalshibot/internal/opportunity"
	"github.com/alanyoungcy/kalshibot/internal/oracle"
	"github.com/alanyoungcy/kalshibot/internal/platform/xai"
	"github.com/alanyoungcy/kalshibot/internal/portfolio"
	"github.com/alanyoungcy/kalshibot/internal/scheduler"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
	"github.com/alanyoungcy/kalshibot/internal/tracker"
)

// tradingStack is everything trade mode runs.
type tradingStack struct {
	supervisor *scheduler.Supervisor
	tracker    *tracker.Tracker
}

// buildTradingStack wires ledger, oracle, opener, executors, scheduler,
// supervisor and tracker on top of the wired dependencies.
func (a *App) buildTradingStack(ctx context.Context, deps *Dependencies) (*tradingStack, error) {
	cfg := a.cfg

	ledger, err := budget.New(ctx, deps.Store, cfg.XAI.DailyBudget, cfg.XAI.CostPerMillionTokens, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: budget ledger: %w", err)
	}

	model := xai.NewClient(xai.Config{
		BaseURL:           cfg.XAI.BaseURL,
		APIKey:            cfg.XAI.ApiKey,
		Model:             cfg.XAI.Model,
		Timeout:           cfg.XAI.Timeout.Duration,
		RequestsPerSecond: cfg.XAI.RequestsPerSecond,
	})
	orc := oracle.New(model, ledger, a.logger,
		oracle.WithRetry(cfg.XAI.MaxAttempts, cfg.XAI.RetryBackoff.Duration),
		oracle.WithExhaustedHook(func(u domain.DailyUsage) {
			deps.Events.Emit(ctx, domain.LifecycleEvent{
				Kind:    domain.EventBudgetExhausted,
				Message: fmt.Sprintf("daily AI budget used: $%.2f of $%.2f", u.TotalCost, u.DailyLimit),
				Detail: map[string]any{
					"date":     u.Date,
					"requests": u.RequestCount,
				},
			})
		}),
	)

	opener := executor.NewOpener(deps.Store, deps.Exchange, deps.Events, a.logger)

	var immediate opportunity.Opener
	if cfg.Opportunity.ImmediateTradesEnabled {
		immediate = opener
	}
	builder := opportunity.NewBuilder(deps.Exchange, orc, immediate, cfg.Opportunity, cfg.Portfolio.MaxSinglePosition, a.logger)
	optimizer := portfolio.NewOptimizer(cfg.Portfolio, portfolio.ModelFor(cfg.Portfolio), a.logger)

	registry := strategy.NewRegistry()
	registry.Register(strategy.NewMarketMaker(cfg.MarketMaker, opener, a.logger))
	registry.Register(strategy.NewDirectional(builder, optimizer, opener, a.logger))
	registry.Register(strategy.NewQuickFlip(cfg.QuickFlip, orc, opener, a.logger))
	registry.Register(strategy.NewArbitrage(a.logger))
	a.logger.Info("executors registered", slog.Any("executors", registry.List()))

	var opts []scheduler.Option
	if deps.PriceCache != nil {
		opts = append(opts, scheduler.WithPriceCache(deps.PriceCache))
	}
	if deps.LockManager != nil {
		opts = append(opts, scheduler.WithLock(deps.LockManager))
	}
	sched := scheduler.New(cfg.Scheduler, deps.Exchange, deps.Store, deps.Store, registry, deps.Events, a.logger, opts...)

	supervisor := scheduler.NewSupervisor(sched,
		strategy.NewLegacy(cfg.Legacy, orc, opener, a.logger),
		deps.Store,
		ledger,
		scheduler.SupervisorConfig{
			Interval:      cfg.Scheduler.TradingInterval.Duration,
			BudgetRecheck: cfg.Scheduler.BudgetRecheckInterval.Duration,
			FallbackFilter: domain.EligibilityFilter{
				VolumeMin:       cfg.Legacy.VolumeMin,
				MaxDaysToExpiry: cfg.Scheduler.MaxDaysToExpiry,
			},
		},
		a.logger,
	)

	return &tradingStack{supervisor: supervisor, tracker: a.buildTracker(deps)}, nil
}

// buildTracker wires the position tracker. Trade and scalp mode both run one.
func (a *App) buildTracker(deps *Dependencies) *tracker.Tracker {
	cfg := a.cfg
	var opts []tracker.Option
	if deps.LockManager != nil {
		opts = append(opts, tracker.WithLock(deps.LockManager, cfg.Scheduler.CycleLockTTL.Duration))
	}
	return tracker.New(deps.Store, deps.Exchange, deps.Events, tracker.Policy{
		ProfitTaking: cfg.Tracker.ProfitTaking,
		StopLoss:     cfg.Tracker.StopLoss,
		MaxHold:      cfg.Tracker.MaxHold.Duration,
		MaxHoldByStrategy: map[string]time.Duration{
			domain.StrategyQuickFlip: cfg.QuickFlip.MaxHold.Duration,
		},
	}, a.logger, opts...)
}
