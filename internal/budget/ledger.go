// Package budget tracks daily AI spend and decides when the oracle must stop
// calling the model.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const dateLayout = "2006-01-02"

// Ledger is the process-wide daily usage tracker. Every increment-and-check
// happens under one mutex, and the running totals are persisted through the
// UsageStore so a restart on the same day resumes where it left off.
type Ledger struct {
	mu             sync.Mutex
	store          domain.UsageStore
	limit          float64
	costPerMillion float64
	usage          domain.DailyUsage
	now            func() time.Time
	logger         *slog.Logger
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger and loads today's usage from store.
func New(ctx context.Context, store domain.UsageStore, dailyLimit, costPerMillion float64, logger *slog.Logger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:          store,
		limit:          dailyLimit,
		costPerMillion: costPerMillion,
		now:            time.Now,
		logger:         logger.With(slog.String("component", "budget")),
	}
	for _, opt := range opts {
		opt(l)
	}

	usage, err := l.load(ctx, l.today())
	if err != nil {
		return nil, err
	}
	l.usage = usage
	return l, nil
}

// CostForTokens converts a token count into dollars.
func (l *Ledger) CostForTokens(tokens int) float64 {
	return float64(tokens) / 1_000_000 * l.costPerMillion
}

// Exhausted reports whether today's budget is used up. A date change resets
// the tracker first.
func (l *Ledger) Exhausted(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover(ctx)
	return l.usage.Exhausted
}

// Charge adds cost to today's total and counts one request. It returns the
// updated usage; the exhausted flag flips once total cost reaches the limit.
func (l *Ledger) Charge(ctx context.Context, cost float64) domain.DailyUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover(ctx)

	l.usage.TotalCost += cost
	l.usage.RequestCount++

	if !l.usage.Exhausted && l.usage.TotalCost >= l.usage.DailyLimit {
		l.usage.Exhausted = true
		l.logger.Warn("daily ai budget exhausted",
			slog.String("date", l.usage.Date),
			slog.Float64("total_cost", l.usage.TotalCost),
			slog.Float64("daily_limit", l.usage.DailyLimit),
			slog.Int("requests", l.usage.RequestCount),
		)
	}

	l.persist(ctx)
	return l.usage
}

// ChargeTokens is Charge with the cost derived from a token count.
func (l *Ledger) ChargeTokens(ctx context.Context, tokens int) domain.DailyUsage {
	return l.Charge(ctx, l.CostForTokens(tokens))
}

// Usage returns a snapshot of today's usage.
func (l *Ledger) Usage() domain.DailyUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage
}

// UntilRollover returns the time left until the next UTC day starts.
func (l *Ledger) UntilRollover() time.Duration {
	now := l.now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}

func (l *Ledger) today() string {
	return l.now().UTC().Format(dateLayout)
}

// rollover resets the tracker when the date has moved on. Caller holds mu.
func (l *Ledger) rollover(ctx context.Context) {
	today := l.today()
	if l.usage.Date == today {
		return
	}
	usage, err := l.load(ctx, today)
	if err != nil {
		l.logger.Error("load usage after rollover failed",
			slog.String("date", today),
			slog.String("error", err.Error()),
		)
		usage = l.fresh(today)
	}
	l.logger.Info("ai budget rolled over",
		slog.String("previous_date", l.usage.Date),
		slog.String("date", today),
	)
	l.usage = usage
}

func (l *Ledger) load(ctx context.Context, date string) (domain.DailyUsage, error) {
	usage, err := l.store.LoadUsage(ctx, date)
	if errors.Is(err, domain.ErrNotFound) {
		return l.fresh(date), nil
	}
	if err != nil {
		return domain.DailyUsage{}, fmt.Errorf("budget: load usage %s: %w", date, err)
	}
	// The configured limit wins over whatever was stored.
	usage.DailyLimit = l.limit
	usage.Exhausted = usage.TotalCost >= l.limit
	return usage, nil
}

func (l *Ledger) fresh(date string) domain.DailyUsage {
	return domain.DailyUsage{Date: date, DailyLimit: l.limit}
}

// persist saves the current usage. Caller holds mu.
func (l *Ledger) persist(ctx context.Context) {
	if err := l.store.SaveUsage(ctx, l.usage); err != nil {
		l.logger.Error("persist usage failed",
			slog.String("date", l.usage.Date),
			slog.String("error", err.Error()),
		)
	}
}
