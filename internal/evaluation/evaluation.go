// Package evaluation analyses AI spend and trading performance and renders
// both as console tables.
package evaluation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const window = 7 * 24 * time.Hour

// Store is the slice of persistence the evaluator reads.
type Store interface {
	UsageHistory(ctx context.Context, limit int) ([]domain.DailyUsage, error)
	AllTradeLogs(ctx context.Context) ([]domain.TradeLog, error)
	OpenPositions(ctx context.Context) ([]domain.Position, error)
}

// CostReport summarises AI spend.
type CostReport struct {
	Today             domain.DailyUsage
	Yesterday         domain.DailyUsage
	WeekCost          float64
	WeekRequests      int
	CostPerRequest    float64
	BudgetUtilization float64
	Recommendations   []string
}

// ReasonStats aggregates closed trades for one exit reason.
type ReasonStats struct {
	Count  int
	PnL    float64
	AvgPnL float64
}

// PerformanceReport summarises trades closed in the last week plus the open
// book.
type PerformanceReport struct {
	Trades        int
	Wins          int
	TotalPnL      float64
	AvgPnL        float64
	WinRate       float64
	ByReason      map[domain.ExitReason]ReasonStats
	ByStrategy    map[string]ReasonStats
	OpenPositions int
	OpenCost      float64
	AvgHoursHeld  float64
}

// Evaluator produces the reports.
type Evaluator struct {
	store       Store
	dailyBudget float64
	interval    time.Duration
	out         io.Writer
	now         func() time.Time
	logger      *slog.Logger
}

// Option customises an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the evaluator's clock.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithOutput renders tables to w on every loop iteration.
func WithOutput(w io.Writer) Option {
	return func(e *Evaluator) { e.out = w }
}

// New creates an Evaluator.
func New(store Store, dailyBudget float64, interval time.Duration, logger *slog.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:       store,
		dailyBudget: dailyBudget,
		interval:    interval,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "evaluation")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Costs analyses the last week of AI usage.
func (e *Evaluator) Costs(ctx context.Context) (CostReport, error) {
	history, err := e.store.UsageHistory(ctx, 7)
	if err != nil {
		return CostReport{}, fmt.Errorf("evaluation: usage history: %w", err)
	}
	now := e.now().UTC()
	today := now.Format("2006-01-02")
	yesterday := now.Add(-24 * time.Hour).Format("2006-01-02")
	weekAgo := now.Add(-window).Format("2006-01-02")

	var r CostReport
	week := decimal.Zero
	for _, u := range history {
		switch u.Date {
		case today:
			r.Today = u
		case yesterday:
			r.Yesterday = u
		}
		if u.Date >= weekAgo {
			week = week.Add(decimal.NewFromFloat(u.TotalCost))
			r.WeekRequests += u.RequestCount
		}
	}
	r.WeekCost = week.Round(4).InexactFloat64()
	if r.Today.RequestCount > 0 {
		r.CostPerRequest = r.Today.TotalCost / float64(r.Today.RequestCount)
	}
	if e.dailyBudget > 0 {
		r.BudgetUtilization = r.Today.TotalCost / e.dailyBudget
	}

	if r.BudgetUtilization >= 0.8 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("near daily budget: $%.3f of $%.2f", r.Today.TotalCost, e.dailyBudget))
	}
	if e.dailyBudget > 0 && r.WeekCost > e.dailyBudget*5 {
		r.Recommendations = append(r.Recommendations, "weekly spend above five days of budget; tighten market filters")
	}
	return r, nil
}

// Performance analyses trades closed in the last week and the open book.
func (e *Evaluator) Performance(ctx context.Context) (PerformanceReport, error) {
	logs, err := e.store.AllTradeLogs(ctx)
	if err != nil {
		return PerformanceReport{}, fmt.Errorf("evaluation: trade logs: %w", err)
	}
	open, err := e.store.OpenPositions(ctx)
	if err != nil {
		return PerformanceReport{}, fmt.Errorf("evaluation: open positions: %w", err)
	}

	now := e.now()
	since := now.Add(-window)
	r := PerformanceReport{
		ByReason:   make(map[domain.ExitReason]ReasonStats),
		ByStrategy: make(map[string]ReasonStats),
	}
	total := decimal.Zero
	for _, l := range logs {
		if l.ExitAt.Before(since) {
			continue
		}
		r.Trades++
		if l.PnL > 0 {
			r.Wins++
		}
		total = total.Add(decimal.NewFromFloat(l.PnL))
		r.ByReason[l.ExitReason] = addTrade(r.ByReason[l.ExitReason], l.PnL)
		r.ByStrategy[l.Strategy] = addTrade(r.ByStrategy[l.Strategy], l.PnL)
	}
	r.TotalPnL = total.Round(2).InexactFloat64()
	if r.Trades > 0 {
		r.AvgPnL = total.Div(decimal.NewFromInt(int64(r.Trades))).Round(4).InexactFloat64()
		r.WinRate = float64(r.Wins) / float64(r.Trades)
	}

	r.OpenPositions = len(open)
	var hours float64
	for _, p := range open {
		r.OpenCost += p.Cost()
		hours += now.Sub(p.CreatedAt).Hours()
	}
	if len(open) > 0 {
		r.AvgHoursHeld = hours / float64(len(open))
	}
	return r, nil
}

func addTrade(s ReasonStats, pnl float64) ReasonStats {
	s.Count++
	s.PnL = decimal.NewFromFloat(s.PnL).Add(decimal.NewFromFloat(pnl)).Round(2).InexactFloat64()
	s.AvgPnL = s.PnL / float64(s.Count)
	return s
}

// Evaluate runs both analyses, logs them and renders them to w when w is not
// nil.
func (e *Evaluator) Evaluate(ctx context.Context, w io.Writer) error {
	costs, err := e.Costs(ctx)
	if err != nil {
		return err
	}
	perf, err := e.Performance(ctx)
	if err != nil {
		return err
	}

	e.logger.Info("ai cost analysis",
		slog.Float64("today_cost", costs.Today.TotalCost),
		slog.Float64("yesterday_cost", costs.Yesterday.TotalCost),
		slog.Float64("week_cost", costs.WeekCost),
		slog.Int("week_requests", costs.WeekRequests),
		slog.Float64("budget_utilization", costs.BudgetUtilization),
	)
	for _, rec := range costs.Recommendations {
		e.logger.Warn("cost recommendation", slog.String("recommendation", rec))
	}
	e.logger.Info("trading performance",
		slog.Int("trades", perf.Trades),
		slog.Float64("total_pnl", perf.TotalPnL),
		slog.Float64("win_rate", perf.WinRate),
		slog.Int("open_positions", perf.OpenPositions),
		slog.Float64("avg_hours_held", perf.AvgHoursHeld),
	)

	if w != nil {
		RenderCosts(w, costs)
		RenderPerformance(w, perf)
	}
	return nil
}

// RunLoop evaluates immediately and then every interval until ctx is
// cancelled. Failures are logged and retried on the next tick.
func (e *Evaluator) RunLoop(ctx context.Context) error {
	interval := e.interval
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := e.Evaluate(ctx, e.out); err != nil && ctx.Err() == nil {
			e.logger.Error("evaluation failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func sortedReasons(m map[domain.ExitReason]ReasonStats) []domain.ExitReason {
	out := make([]domain.ExitReason, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedStrategies(m map[string]ReasonStats) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
