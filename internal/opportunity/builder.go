// Package opportunity turns market snapshots into scored trading candidates by
// asking the oracle for a view on each market and measuring the edge against
// the market price.
package opportunity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
)

// Opener opens positions through the at-most-one-open-position path.
type Opener interface {
	Open(ctx context.Context, req executor.OpenRequest) (executor.Opened, error)
}

// Builder scores markets into opportunities.
type Builder struct {
	exchange  domain.Exchange
	oracle    domain.Oracle
	opener    Opener
	cfg       config.OpportunityConfig
	filter    EdgeFilter
	maxSingle float64
	logger    *slog.Logger
}

// NewBuilder creates a Builder. opener may be nil, which disables immediate
// trades regardless of configuration.
func NewBuilder(exchange domain.Exchange, oracle domain.Oracle, opener Opener, cfg config.OpportunityConfig, maxSingle float64, logger *slog.Logger) *Builder {
	return &Builder{
		exchange: exchange,
		oracle:   oracle,
		opener:   opener,
		cfg:      cfg,
		filter: EdgeFilter{
			Eligible: Thresholds{
				MinEdge:           cfg.MinEdge,
				MinConfidence:     cfg.MinConfidence,
				MinExpectedReturn: cfg.MinExpectedReturn,
			},
			Immediate: Thresholds{
				MinEdge:           cfg.ImmediateEdge,
				MinConfidence:     cfg.ImmediateConfidence,
				MinExpectedReturn: cfg.ImmediateReturn,
			},
		},
		maxSingle: maxSingle,
		logger:    logger.With(slog.String("component", "opportunity")),
	}
}

// Filter returns the edge filter in use.
func (b *Builder) Filter() EdgeFilter { return b.filter }

// Build scores the top markets by volume and returns the opportunities that
// passed the edge filter. capital is the sub-pool used to size immediate
// trades. Per-market failures are logged and skipped; only context
// cancellation aborts the scan.
func (b *Builder) Build(ctx context.Context, markets []domain.Market, capital float64) ([]domain.Opportunity, error) {
	candidates := TopByVolume(markets, b.cfg.TopN)

	var out []domain.Opportunity
	for _, m := range candidates {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		fresh, err := b.exchange.Market(ctx, m.ID)
		if err != nil {
			b.logger.Warn("market detail unavailable",
				slog.String("market", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		p := fresh.YesPrice
		if p < b.cfg.MinProbability || p > b.cfg.MaxProbability {
			continue
		}

		decision, err := b.oracle.Decide(ctx, fresh)
		if err != nil {
			return out, fmt.Errorf("opportunity: decide %s: %w", m.ID, err)
		}
		if decision.IsSkip() {
			continue
		}

		opp := Score(fresh, decision)
		opp.Passed = b.filter.Passes(opp.Edge, opp.Confidence, opp.ExpectedReturn)
		if !opp.Passed {
			b.logger.Debug("opportunity filtered",
				slog.String("market", m.ID),
				slog.Float64("edge", opp.Edge),
				slog.Float64("confidence", opp.Confidence),
				slog.Float64("expected_return", opp.ExpectedReturn),
			)
			continue
		}
		out = append(out, opp)

		if b.filter.Strong(opp.Edge, opp.Confidence, opp.ExpectedReturn) {
			b.tradeNow(ctx, opp, capital)
		}
	}

	b.logger.Info("opportunities built",
		slog.Int("scanned", len(candidates)),
		slog.Int("passed", len(out)),
	)
	return out, nil
}

// Score derives an opportunity from a market snapshot and an oracle decision.
// The decision's confidence is read as the probability of the side it
// recommends.
func Score(m domain.Market, d domain.Decision) domain.Opportunity {
	p := m.YesPrice
	predicted := d.Confidence
	if d.Side == domain.SideNo {
		predicted = 1 - d.Confidence
	}
	edge := predicted - p

	side := domain.SideYes
	maxLoss := p
	if edge <= 0 {
		side = domain.SideNo
		maxLoss = 1 - p
	}

	return domain.Opportunity{
		MarketID:       m.ID,
		Title:          m.Title,
		Volume:         m.Volume,
		PredictedProb:  predicted,
		MarketProb:     p,
		Confidence:     d.Confidence,
		Edge:           edge,
		Volatility:     math.Sqrt(p * (1 - p)),
		ExpectedReturn: math.Abs(edge) * d.Confidence,
		MaxLoss:        maxLoss,
		Side:           side,
		Rationale:      d.Reasoning,
	}
}

// TopByVolume returns up to n markets ordered by descending volume. The input
// slice is not modified.
func TopByVolume(markets []domain.Market, n int) []domain.Market {
	sorted := make([]domain.Market, len(markets))
	copy(sorted, markets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Volume > sorted[j].Volume })
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// ImmediateQuantity sizes an out-of-band trade: the smaller of the capital
// cap and the cash cap, divided by the entry price, never below one contract.
func ImmediateQuantity(capital, maxSingle, cash, cashFraction, entry float64) int {
	if entry <= 0 {
		return 0
	}
	byCapital := decimal.NewFromFloat(capital).Mul(decimal.NewFromFloat(maxSingle))
	byCash := decimal.NewFromFloat(cash).Mul(decimal.NewFromFloat(cashFraction))
	size := decimal.Min(byCapital, byCash)
	qty := size.Div(decimal.NewFromFloat(entry)).Floor().IntPart()
	if qty < 1 {
		return 1
	}
	return int(qty)
}

func (b *Builder) tradeNow(ctx context.Context, opp domain.Opportunity, capital float64) {
	if !b.cfg.ImmediateTradesEnabled || b.opener == nil {
		return
	}
	cash, err := b.exchange.Balance(ctx)
	if err != nil {
		b.logger.Warn("immediate trade skipped: balance unavailable",
			slog.String("market", opp.MarketID),
			slog.String("error", err.Error()),
		)
		return
	}

	entry := opp.EntryPrice()
	qty := ImmediateQuantity(capital, b.maxSingle, cash, b.cfg.ImmediateCashFraction, entry)
	if qty < 1 {
		return
	}
	rationale := fmt.Sprintf("IMMEDIATE TRADE: Edge=%.1f%%, Conf=%.1f%%", opp.Edge*100, opp.Confidence*100)

	_, err = b.opener.Open(ctx, executor.OpenRequest{
		MarketID:   opp.MarketID,
		Side:       opp.Side,
		Quantity:   qty,
		EntryPrice: entry,
		Strategy:   domain.StrategyImmediateTrade,
		Rationale:  rationale,
		Confidence: opp.Confidence,
	})
	switch {
	case errors.Is(err, executor.ErrPositionExists):
	case err != nil:
		b.logger.Error("immediate trade failed",
			slog.String("market", opp.MarketID),
			slog.String("error", err.Error()),
		)
	default:
		b.logger.Info("immediate trade placed",
			slog.String("market", opp.MarketID),
			slog.String("side", string(opp.Side)),
			slog.Int("quantity", qty),
			slog.Float64("entry_price", entry),
		)
	}
}
