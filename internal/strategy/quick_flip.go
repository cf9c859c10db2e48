package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
)

// QuickFlip buys very cheap contracts and immediately rests a sell at the
// oracle's target, hoping for a short-term move. The tracker closes anything
// still open after the maximum hold.
type QuickFlip struct {
	cfg    config.QuickFlipConfig
	oracle domain.Oracle
	opener Opener
	logger *slog.Logger
}

// NewQuickFlip creates a QuickFlip executor.
func NewQuickFlip(cfg config.QuickFlipConfig, oracle domain.Oracle, opener Opener, logger *slog.Logger) *QuickFlip {
	return &QuickFlip{
		cfg:    cfg,
		oracle: oracle,
		opener: opener,
		logger: logger.With(slog.String("strategy", NameQuickFlip)),
	}
}

// Name returns the executor identifier.
func (qf *QuickFlip) Name() string { return NameQuickFlip }

// Flip is a planned quick-flip entry. Prices are in cents.
type Flip struct {
	MarketID       string
	Side           domain.Side
	EntryCents     int
	TargetCents    int
	Quantity       int
	Confidence     float64
	ExpectedProfit float64
	Reasoning      string
}

// Target returns the exit price for an entry given the oracle's limit price:
// at least one cent above entry and never above maxTarget.
func Target(entryCents, oracleCents, maxTarget int) int {
	t := oracleCents
	if t > maxTarget {
		t = maxTarget
	}
	if t < entryCents+1 {
		t = entryCents + 1
	}
	return t
}

// Plan asks the oracle about cheap markets and returns the flips worth taking,
// best first.
func (qf *QuickFlip) Plan(ctx context.Context, markets []domain.Market, capital float64) ([]Flip, error) {
	var flips []Flip
	asked := 0
	for _, m := range markets {
		if qf.cfg.MaxCandidates > 0 && asked >= qf.cfg.MaxCandidates {
			break
		}
		if !qf.cheapSide(m) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		asked++
		d, err := qf.oracle.Decide(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("strategy: quick flip decide %s: %w", m.ID, err)
		}
		if d.Action != domain.ActionBuy || d.Confidence < qf.cfg.ConfidenceThreshold {
			continue
		}
		if f, ok := qf.evaluate(m, d); ok {
			flips = append(flips, f)
		}
	}

	sort.SliceStable(flips, func(i, j int) bool {
		return flips[i].ExpectedProfit*flips[i].Confidence > flips[j].ExpectedProfit*flips[j].Confidence
	})
	limit := int(math.Floor(capital / qf.cfg.CapitalPerTrade))
	if qf.cfg.MaxConcurrent > 0 && qf.cfg.MaxConcurrent < limit {
		limit = qf.cfg.MaxConcurrent
	}
	if limit < 0 {
		limit = 0
	}
	if len(flips) > limit {
		flips = flips[:limit]
	}
	return flips, nil
}

func (qf *QuickFlip) inRange(c int) bool {
	return c >= qf.cfg.MinEntryCents && c <= qf.cfg.MaxEntryCents
}

func (qf *QuickFlip) cheapSide(m domain.Market) bool {
	return (m.YesAsk > 0 && qf.inRange(toCents(m.YesAsk))) || (m.NoAsk > 0 && qf.inRange(toCents(m.NoAsk)))
}

func (qf *QuickFlip) evaluate(m domain.Market, d domain.Decision) (Flip, bool) {
	ask := m.YesAsk
	if d.Side == domain.SideNo {
		ask = m.NoAsk
	}
	entry := toCents(ask)
	if ask <= 0 || !qf.inRange(entry) {
		return Flip{}, false
	}
	target := Target(entry, d.LimitPrice, qf.cfg.MaxTargetCents)
	if float64(target-entry)/float64(entry) < qf.cfg.MinProfitMargin {
		return Flip{}, false
	}
	qty := int(math.Floor(qf.cfg.CapitalPerTrade / cents(entry)))
	if qf.cfg.MaxPositionSize > 0 && qty > qf.cfg.MaxPositionSize {
		qty = qf.cfg.MaxPositionSize
	}
	if qty < 1 {
		return Flip{}, false
	}
	return Flip{
		MarketID:       m.ID,
		Side:           d.Side,
		EntryCents:     entry,
		TargetCents:    target,
		Quantity:       qty,
		Confidence:     d.Confidence,
		ExpectedProfit: float64(qty) * cents(target-entry),
		Reasoning:      d.Reasoning,
	}, true
}

// Execute opens the planned flips with a resting exit at the target.
func (qf *QuickFlip) Execute(ctx context.Context, markets []domain.Market, capital float64) (Result, error) {
	res := Result{Strategy: NameQuickFlip}
	flips, err := qf.Plan(ctx, markets, capital)
	if err != nil {
		return res, err
	}

	for _, f := range flips {
		entry, target := cents(f.EntryCents), cents(f.TargetCents)
		out, ok, err := open(ctx, qf.opener, executor.OpenRequest{
			MarketID:   f.MarketID,
			Side:       f.Side,
			Quantity:   f.Quantity,
			EntryPrice: entry,
			Strategy:   domain.StrategyQuickFlip,
			Rationale:  fmt.Sprintf("Quick flip %d¢ -> %d¢: %s", f.EntryCents, f.TargetCents, f.Reasoning),
			Confidence: f.Confidence,
			OrderType:  domain.OrderTypeLimit,
			LimitPrice: &entry,
			ExitPrice:  &target,
		})
		if err != nil {
			qf.logger.Warn("flip entry failed", slog.String("market", f.MarketID), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		res.PositionsOpened++
		res.OrdersPlaced++
		if out.ExitOrderID != "" {
			res.OrdersPlaced++
		}
		res.CapitalUsed += entry * float64(f.Quantity)
		res.ExpectedProfit += f.ExpectedProfit
	}

	qf.logger.Info("quick flip complete",
		slog.Int("planned", len(flips)),
		slog.Int("opened", res.PositionsOpened),
	)
	return res, nil
}
