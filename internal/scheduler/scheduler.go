// Package scheduler runs the unified trading cycle: value the portfolio,
// split capital into strategy sub-pools, gate on cash reserves and position
// limits, run the strategy executors concurrently and aggregate the result.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
)

const cycleLockKey = "trading-cycle"

// concurrentExecutors run side by side; arbitrage runs after them.
var concurrentExecutors = []string{
	strategy.NameMarketMaking,
	strategy.NameDirectional,
	strategy.NameQuickFlip,
}

// Report aggregates one trading cycle. The zero Report means nothing ran.
type Report struct {
	Capital        Capital
	CashAction     CashAction
	Pools          map[string]float64
	Results        map[string]strategy.Result
	Markets        int
	OrdersPlaced   int
	TotalPositions int
	CapitalUsed    float64
	ExpectedProfit float64
	// Efficiency is capital used over total capital.
	Efficiency float64
	Portfolio  domain.PortfolioMetrics
	Halted     bool
	Skipped    string
}

// Rebalancer is the post-cycle hook.
type Rebalancer interface {
	Rebalance(ctx context.Context, report Report) error
}

// DeferredRebalance is the default hook. A real rebalancer would compare the
// open book with the latest allocation and trim positions whose fraction has
// drifted past the single-position cap or whose edge has gone; until one
// exists it reports domain.ErrNotImplemented.
type DeferredRebalance struct{}

// Rebalance returns domain.ErrNotImplemented.
func (DeferredRebalance) Rebalance(context.Context, Report) error { return domain.ErrNotImplemented }

// Scheduler owns one trading cycle.
type Scheduler struct {
	cfg       config.SchedulerConfig
	valuator  *Valuator
	markets   domain.MarketStore
	positions domain.PositionStore
	registry  *strategy.Registry
	events    *executor.Events
	rebalance Rebalancer
	locks     domain.LockManager
	logger    *slog.Logger
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithLock makes each cycle hold a distributed lock.
func WithLock(locks domain.LockManager) Option {
	return func(s *Scheduler) { s.locks = locks }
}

// WithRebalancer replaces the default rebalance hook.
func WithRebalancer(r Rebalancer) Option {
	return func(s *Scheduler) { s.rebalance = r }
}

// WithPriceCache lets capital revaluation fall back to cached prices.
func WithPriceCache(prices domain.PriceCache) Option {
	return func(s *Scheduler) { s.valuator.prices = prices }
}

// New creates a Scheduler. registry must hold the market-making,
// directional, quick-flip and arbitrage executors; missing ones are skipped.
func New(cfg config.SchedulerConfig, exchange domain.Exchange, markets domain.MarketStore, positions domain.PositionStore,
	registry *strategy.Registry, events *executor.Events, logger *slog.Logger, opts ...Option) *Scheduler {
	logger = logger.With(slog.String("component", "scheduler"))
	s := &Scheduler{
		cfg:       cfg,
		valuator:  NewValuator(exchange, nil, cfg, logger),
		markets:   markets,
		positions: positions,
		registry:  registry,
		events:    events,
		rebalance: DeferredRebalance{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCycle runs one unified trading cycle. A cash emergency, a held lock, a
// full book or an empty market list return a Report with nothing executed. An
// error means the cycle itself failed and the caller should fall back or
// retry.
func (s *Scheduler) RunCycle(ctx context.Context) (Report, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, cycleLockKey, s.cfg.CycleLockTTL.Duration)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.Info("trading cycle skipped: lock held elsewhere")
			return Report{Skipped: "lock held"}, nil
		}
		if err != nil {
			return Report{}, fmt.Errorf("scheduler: lock: %w", err)
		}
		defer unlock()
	}

	capital := s.valuator.Value(ctx)
	action := CheckCash(capital, s.cfg)
	s.logger.Info("portfolio valued",
		slog.Float64("cash", capital.Cash),
		slog.Float64("positions", capital.Positions),
		slog.Float64("total", capital.Total),
		slog.String("cash_action", string(action)),
	)

	if action == HaltTrading {
		s.logger.Error("trading halted: cash emergency",
			slog.Float64("cash", capital.Cash),
			slog.Float64("total", capital.Total),
		)
		s.events.Emit(ctx, domain.LifecycleEvent{
			Kind:    domain.EventCashEmergency,
			Message: fmt.Sprintf("cash %.2f of %.2f below halt ratio, trading halted", capital.Cash, capital.Total),
		})
		return Report{Capital: capital, CashAction: action, Halted: true}, nil
	}

	factor := 1.0
	if action == ReduceActivity {
		factor = s.cfg.ReduceFactor
		s.logger.Warn("cash reserve low, reducing activity", slog.Float64("factor", factor))
	}
	report := Report{
		Capital:    capital,
		CashAction: action,
		Pools:      Pools(capital.Total, s.cfg, factor),
		Results:    make(map[string]strategy.Result),
	}

	open, err := s.positions.OpenPositions(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("scheduler: open positions: %w", err)
	}
	if len(open) >= s.cfg.MaxPositions {
		s.logger.Warn("position limit reached", slog.Int("open", len(open)), slog.Int("max", s.cfg.MaxPositions))
		report.Skipped = "position limit"
		return report, nil
	}

	markets, err := s.markets.EligibleMarkets(ctx, domain.EligibilityFilter{
		VolumeMin:       s.cfg.VolumeMin,
		MaxDaysToExpiry: s.cfg.MaxDaysToExpiry,
	})
	if err != nil {
		return Report{}, fmt.Errorf("scheduler: eligible markets: %w", err)
	}
	report.Markets = len(markets)
	if len(markets) == 0 {
		s.logger.Warn("no markets available for trading")
		report.Skipped = "no markets"
		return report, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, name := range concurrentExecutors {
		g.Go(func() error {
			res := s.runExecutor(ctx, name, markets, report.Pools[name])
			mu.Lock()
			report.Results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Results[strategy.NameArbitrage] = s.runExecutor(ctx, strategy.NameArbitrage, markets, report.Pools[strategy.NameArbitrage])

	s.aggregate(&report)

	if err := s.rebalance.Rebalance(ctx, report); err != nil {
		if errors.Is(err, domain.ErrNotImplemented) {
			s.logger.Debug("rebalance hook not implemented")
		} else {
			s.logger.Warn("rebalance failed", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("trading cycle complete",
		slog.Int("markets", report.Markets),
		slog.Int("positions", report.TotalPositions),
		slog.Int("orders", report.OrdersPlaced),
		slog.Float64("capital_used", report.CapitalUsed),
		slog.Float64("efficiency", report.Efficiency),
		slog.Float64("sharpe", report.Portfolio.SharpeRatio),
	)
	s.events.Emit(ctx, domain.LifecycleEvent{
		Kind:    domain.EventCycleCompleted,
		Message: fmt.Sprintf("%d positions, %.2f capital used", report.TotalPositions, report.CapitalUsed),
		Detail: map[string]any{
			"capital":     capital.Total,
			"cash_action": string(action),
			"orders":      report.OrdersPlaced,
		},
	})
	return report, nil
}

// runExecutor runs one executor and converts any error or panic into a zero
// result.
func (s *Scheduler) runExecutor(ctx context.Context, name string, markets []domain.Market, capital float64) (res strategy.Result) {
	res = strategy.Result{Strategy: name}
	exec, err := s.registry.Get(name)
	if err != nil {
		s.logger.Debug("executor not registered", slog.String("strategy", name))
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("executor panicked",
				slog.String("strategy", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = strategy.Result{Strategy: name}
		}
	}()

	start := time.Now()
	out, err := exec.Execute(ctx, markets, capital)
	switch {
	case errors.Is(err, domain.ErrNotImplemented):
		return strategy.Result{Strategy: name}
	case err != nil:
		s.logger.Error("executor failed",
			slog.String("strategy", name),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		s.events.Emit(ctx, domain.LifecycleEvent{
			Kind:     domain.EventError,
			Strategy: name,
			Message:  "executor failed: " + err.Error(),
		})
		return strategy.Result{Strategy: name}
	}
	out.Strategy = name
	return out
}

func (s *Scheduler) aggregate(r *Report) {
	for _, res := range r.Results {
		r.OrdersPlaced += res.OrdersPlaced
		r.TotalPositions += res.PositionsOpened
		r.CapitalUsed += res.CapitalUsed
		r.ExpectedProfit += res.ExpectedProfit
		if res.Allocation != nil {
			r.Portfolio = res.Allocation.Metrics
		}
	}
	if r.Capital.Total > 0 {
		r.Efficiency = r.CapitalUsed / r.Capital.Total
	}
}
