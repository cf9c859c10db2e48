package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
)

// OpportunitySource scores markets into filtered opportunities.
type OpportunitySource interface {
	Build(ctx context.Context, markets []domain.Market, capital float64) ([]domain.Opportunity, error)
}

// Allocator sizes opportunities into an allocation.
type Allocator interface {
	Optimize(opps []domain.Opportunity, capital float64) domain.Allocation
}

// Directional builds opportunities, allocates the sub-pool across them and
// opens a market-order position for every allocated market.
type Directional struct {
	source    OpportunitySource
	allocator Allocator
	opener    Opener
	logger    *slog.Logger
}

// NewDirectional creates a Directional executor.
func NewDirectional(source OpportunitySource, allocator Allocator, opener Opener, logger *slog.Logger) *Directional {
	return &Directional{
		source:    source,
		allocator: allocator,
		opener:    opener,
		logger:    logger.With(slog.String("strategy", NameDirectional)),
	}
}

// Name returns the executor identifier.
func (d *Directional) Name() string { return NameDirectional }

// Execute runs one directional pass.
func (d *Directional) Execute(ctx context.Context, markets []domain.Market, capital float64) (Result, error) {
	res := Result{Strategy: NameDirectional}

	opps, err := d.source.Build(ctx, markets, capital)
	if err != nil {
		return res, fmt.Errorf("strategy: build opportunities: %w", err)
	}
	alloc := d.allocator.Optimize(opps, capital)
	res.Allocation = &alloc
	if alloc.IsEmpty() {
		d.logger.Info("no allocation this cycle", slog.Int("opportunities", len(opps)))
		return res, nil
	}

	for _, opp := range alloc.Opportunities {
		fraction := alloc.Fractions[opp.MarketID]
		entry := opp.EntryPrice()
		if entry <= 0 || entry >= 1 {
			continue
		}
		value := decimal.NewFromFloat(fraction).Mul(decimal.NewFromFloat(capital))
		qty := int(value.Div(decimal.NewFromFloat(entry)).Floor().IntPart())
		if qty < 1 {
			qty = 1
		}

		_, ok, err := open(ctx, d.opener, executor.OpenRequest{
			MarketID:   opp.MarketID,
			Side:       opp.Side,
			Quantity:   qty,
			EntryPrice: entry,
			Strategy:   domain.StrategyPortfolio,
			Rationale:  fmt.Sprintf("Portfolio allocation: %.1f%% of capital. %s", fraction*100, opp.Rationale),
			Confidence: opp.Confidence,
		})
		if err != nil {
			d.logger.Warn("allocation entry failed", slog.String("market", opp.MarketID), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		res.PositionsOpened++
		res.OrdersPlaced++
		res.CapitalUsed += entry * float64(qty)
		res.ExpectedProfit += opp.ExpectedReturn * entry * float64(qty)
	}

	d.logger.Info("directional complete",
		slog.Int("allocated", len(alloc.Fractions)),
		slog.Int("opened", res.PositionsOpened),
		slog.Float64("capital_used", res.CapitalUsed),
		slog.Float64("sharpe", alloc.Metrics.SharpeRatio),
	)
	return res, nil
}
