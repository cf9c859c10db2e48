// Package oracle turns a market snapshot into a structured trade decision by
// asking the AI model, guarded by the daily budget ledger.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/platform/xai"
)

const systemPrompt = `You are a prediction-market trader. Reply with exactly one JSON object:
{"action": "BUY"|"SELL"|"SKIP", "side": "YES"|"NO", "confidence": 0.0-1.0, "limit_price": 1-99, "reasoning": "..."}`

// Model is the chat-completion capability the oracle needs.
type Model interface {
	Complete(ctx context.Context, system, user string) (xai.Completion, error)
}

// Budget is the slice of the ledger the oracle consults and charges.
type Budget interface {
	Exhausted(ctx context.Context) bool
	ChargeTokens(ctx context.Context, tokens int) domain.DailyUsage
}

// Option customises an Oracle.
type Option func(*Oracle)

// WithRetry sets the attempt count and the base of the exponential backoff.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(o *Oracle) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		o.backoff = backoff
	}
}

// WithSleep replaces the backoff sleep, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Oracle) { o.sleep = sleep }
}

// WithExhaustedHook is called once when a charge exhausts the budget.
func WithExhaustedHook(fn func(domain.DailyUsage)) Option {
	return func(o *Oracle) { o.onExhausted = fn }
}

// Oracle implements domain.Oracle. It never returns an error for upstream
// failures; those become SKIP decisions. Only context cancellation is
// reported as an error.
type Oracle struct {
	model       Model
	budget      Budget
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	onExhausted func(domain.DailyUsage)
	logger      *slog.Logger

	mu            sync.Mutex
	exhaustedDate string
}

// New creates an Oracle with two attempts and a one second backoff base.
func New(model Model, budget Budget, logger *slog.Logger, opts ...Option) *Oracle {
	o := &Oracle{
		model:       model,
		budget:      budget,
		maxAttempts: 2,
		backoff:     time.Second,
		sleep:       sleepCtx,
		logger:      logger.With(slog.String("component", "oracle")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Decide returns the model's decision for market.
func (o *Oracle) Decide(ctx context.Context, market domain.Market) (domain.Decision, error) {
	if o.budget.Exhausted(ctx) {
		o.logger.Debug("decision skipped, daily budget exhausted", slog.String("market", market.ID))
		return domain.SkipDecision("Daily AI cost limit reached."), nil
	}

	completion, err := o.call(ctx, buildPrompt(market))
	if err != nil {
		if ctx.Err() != nil {
			return domain.SkipDecision("cancelled"), ctx.Err()
		}
		o.logger.Warn("model call failed",
			slog.String("market", market.ID),
			slog.String("error", err.Error()),
		)
		return domain.SkipDecision("API call failed after retries."), nil
	}

	usage := o.budget.ChargeTokens(ctx, completion.TotalTokens)
	if usage.Exhausted {
		o.notifyExhausted(usage)
	}

	decision, err := ParseDecision(completion.Content)
	if err != nil {
		o.logger.Warn("unparseable model reply",
			slog.String("market", market.ID),
			slog.String("error", err.Error()),
			slog.String("reply", truncate(completion.Content, 300)),
		)
		return domain.SkipDecision("Failed to parse AI response."), nil
	}
	return decision, nil
}

// notifyExhausted fires the hook at most once per usage date.
func (o *Oracle) notifyExhausted(usage domain.DailyUsage) {
	if o.onExhausted == nil {
		return
	}
	o.mu.Lock()
	if o.exhaustedDate == usage.Date {
		o.mu.Unlock()
		return
	}
	o.exhaustedDate = usage.Date
	o.mu.Unlock()
	o.onExhausted(usage)
}

// call runs the model with retries. Rate-limit and resource-exhausted errors
// are not retried.
func (o *Oracle) call(ctx context.Context, prompt string) (xai.Completion, error) {
	var lastErr error
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		c, err := o.model.Complete(ctx, systemPrompt, prompt)
		if err == nil {
			return c, nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrResourceExhausted) || ctx.Err() != nil {
			return xai.Completion{}, err
		}
		if attempt < o.maxAttempts-1 {
			if err := o.sleep(ctx, o.backoff<<attempt); err != nil {
				return xai.Completion{}, err
			}
		}
	}
	return xai.Completion{}, fmt.Errorf("oracle: %d attempts: %w", o.maxAttempts, lastErr)
}

func buildPrompt(m domain.Market) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\n", m.Title)
	fmt.Fprintf(&b, "Ticker: %s\n", m.ID)
	if m.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", m.Category)
	}
	fmt.Fprintf(&b, "YES price: %dc  NO price: %dc\n", cents(m.YesPrice), cents(m.PriceFor(domain.SideNo)))
	if m.YesBid > 0 || m.YesAsk > 0 {
		fmt.Fprintf(&b, "YES bid/ask: %dc / %dc\n", cents(m.YesBid), cents(m.YesAsk))
	}
	fmt.Fprintf(&b, "Volume: %.0f\n", m.Volume)
	if !m.ExpiresAt.IsZero() {
		days := time.Until(m.ExpiresAt).Hours() / 24
		fmt.Fprintf(&b, "Days to expiry: %.1f\n", days)
	}
	b.WriteString("Estimate the probability the market resolves YES and decide whether to trade.")
	return b.String()
}

func cents(p float64) int { return int(p*100 + 0.5) }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

var _ domain.Oracle = (*Oracle)(nil)
