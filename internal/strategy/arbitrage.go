package strategy

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Arbitrage is the extension point for cross-market arbitrage. It has a sub-pool
// in the scheduler's split (zero by default) and runs after the concurrent
// executors.
//
// An implementation would look for related markets whose YES prices sum
// outside [1−fee, 1+fee] (mutually exclusive outcomes of one event series),
// or a market whose yes ask plus no ask is below one dollar, and open the
// hedged legs through the opener. Until then Execute reports
// domain.ErrNotImplemented and an empty result.
type Arbitrage struct {
	logger *slog.Logger
}

// NewArbitrage creates the arbitrage extension point.
func NewArbitrage(logger *slog.Logger) *Arbitrage {
	return &Arbitrage{logger: logger.With(slog.String("strategy", NameArbitrage))}
}

// Name returns the executor identifier.
func (a *Arbitrage) Name() string { return NameArbitrage }

// Execute returns domain.ErrNotImplemented.
func (a *Arbitrage) Execute(_ context.Context, markets []domain.Market, capital float64) (Result, error) {
	a.logger.Debug("arbitrage not implemented",
		slog.Int("markets", len(markets)),
		slog.Float64("capital", capital),
	)
	return Result{Strategy: NameArbitrage}, domain.ErrNotImplemented
}
