package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
)

// CycleRunner runs one trading cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (Report, error)
}

// Budget reports whether the oracle may still spend today.
type Budget interface {
	Exhausted(ctx context.Context) bool
	UntilRollover() time.Duration
}

// Supervisor drives the trading loop. Each tick it runs the unified cycle;
// when the cycle fails outright it runs the fallback executor instead. While
// the AI budget is exhausted it sleeps in recheck-sized chunks until the
// budget rolls over.
type Supervisor struct {
	primary  CycleRunner
	fallback strategy.Executor
	markets  domain.MarketStore
	filter   domain.EligibilityFilter
	budget   Budget
	interval time.Duration
	recheck  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// SupervisorConfig holds the loop cadence and the fallback market filter.
type SupervisorConfig struct {
	Interval       time.Duration
	BudgetRecheck  time.Duration
	FallbackFilter domain.EligibilityFilter
}

// NewSupervisor creates a Supervisor. fallback and budget may be nil.
func NewSupervisor(primary CycleRunner, fallback strategy.Executor, markets domain.MarketStore, budget Budget, cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		primary:  primary,
		fallback: fallback,
		markets:  markets,
		filter:   cfg.FallbackFilter,
		budget:   budget,
		interval: cfg.Interval,
		recheck:  cfg.BudgetRecheck,
		sleep:    sleepCtx,
		logger:   logger.With(slog.String("component", "supervisor")),
	}
}

// Run loops until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("trading loop started", slog.Duration("interval", s.interval))
	for {
		if err := s.waitForBudget(ctx); err != nil {
			return nil
		}
		s.Tick(ctx)
		if err := s.sleep(ctx, s.interval); err != nil {
			s.logger.Info("trading loop stopped")
			return nil
		}
	}
}

// Tick runs one cycle with fallback. It never panics.
func (s *Supervisor) Tick(ctx context.Context) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("trading cycle panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			report = Report{}
		}
	}()

	report, err := s.primary.RunCycle(ctx)
	if err == nil {
		return report
	}
	s.logger.Error("unified cycle failed, running fallback", slog.String("error", err.Error()))
	if err := s.runFallback(ctx); err != nil {
		s.logger.Error("fallback failed", slog.String("error", err.Error()))
	}
	return Report{}
}

func (s *Supervisor) runFallback(ctx context.Context) error {
	if s.fallback == nil || s.markets == nil {
		return nil
	}
	markets, err := s.markets.EligibleMarkets(ctx, s.filter)
	if err != nil {
		return fmt.Errorf("fallback markets: %w", err)
	}
	res, err := s.fallback.Execute(ctx, markets, 0)
	if err != nil {
		return err
	}
	s.logger.Info("fallback complete",
		slog.String("strategy", s.fallback.Name()),
		slog.Int("opened", res.PositionsOpened),
	)
	return nil
}

// waitForBudget blocks while the AI budget is exhausted.
func (s *Supervisor) waitForBudget(ctx context.Context) error {
	if s.budget == nil {
		return nil
	}
	logged := false
	for s.budget.Exhausted(ctx) {
		if !logged {
			s.logger.Warn("ai budget exhausted, pausing trading",
				slog.Duration("until_rollover", s.budget.UntilRollover()),
			)
			logged = true
		}
		wait := s.recheck
		if until := s.budget.UntilRollover(); until > 0 && until < wait {
			wait = until
		}
		if wait <= 0 {
			wait = time.Second
		}
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
	if logged {
		s.logger.Info("ai budget available again, resuming trading")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
