package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
	"github.com/alanyoungcy/kalshibot/internal/opportunity"
)

// Legacy is the simple per-market decision loop the scheduler falls back to
// when the unified cycle cannot run: ask the oracle about the busiest markets
// and buy a small fixed size at its limit price.
type Legacy struct {
	cfg    config.LegacyConfig
	oracle domain.Oracle
	opener Opener
	logger *slog.Logger
}

// NewLegacy creates a Legacy executor.
func NewLegacy(cfg config.LegacyConfig, oracle domain.Oracle, opener Opener, logger *slog.Logger) *Legacy {
	return &Legacy{
		cfg:    cfg,
		oracle: oracle,
		opener: opener,
		logger: logger.With(slog.String("strategy", NameLegacy)),
	}
}

// Name returns the executor identifier.
func (l *Legacy) Name() string { return NameLegacy }

// Execute runs one legacy pass. capital is ignored; sizing is fixed.
func (l *Legacy) Execute(ctx context.Context, markets []domain.Market, _ float64) (Result, error) {
	res := Result{Strategy: NameLegacy}

	var busy []domain.Market
	for _, m := range markets {
		if m.Volume >= l.cfg.VolumeMin {
			busy = append(busy, m)
		}
	}
	qty := l.cfg.Quantity
	if qty < 1 {
		qty = 1
	}

	for _, m := range opportunity.TopByVolume(busy, l.cfg.TopN) {
		d, err := l.oracle.Decide(ctx, m)
		if err != nil {
			return res, fmt.Errorf("strategy: legacy decide %s: %w", m.ID, err)
		}
		if d.Action != domain.ActionBuy || d.Confidence < l.cfg.MinConfidence {
			continue
		}
		price := cents(d.LimitPrice)
		if price <= 0 || price >= 1 {
			continue
		}
		_, ok, err := open(ctx, l.opener, executor.OpenRequest{
			MarketID:   m.ID,
			Side:       d.Side,
			Quantity:   qty,
			EntryPrice: price,
			Strategy:   domain.StrategyLegacy,
			Rationale:  d.Reasoning,
			Confidence: d.Confidence,
			OrderType:  domain.OrderTypeLimit,
			LimitPrice: &price,
		})
		if err != nil {
			l.logger.Warn("legacy entry failed", slog.String("market", m.ID), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		res.PositionsOpened++
		res.OrdersPlaced++
		res.CapitalUsed += price * float64(qty)
	}

	l.logger.Info("legacy pass complete", slog.Int("opened", res.PositionsOpened))
	return res, nil
}
