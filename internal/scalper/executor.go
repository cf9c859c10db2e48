package scalper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
)

// Opener opens a position through the store-backed entry path.
type Opener interface {
	Open(ctx context.Context, req executor.OpenRequest) (executor.Opened, error)
}

// Executor watches one market. It reads every update from its mailbox and
// opens a position with a market order whenever the route's trigger fires for
// a game the market is priced on.
type Executor struct {
	market   domain.Market
	route    Route
	trigger  Trigger
	exchange domain.Exchange
	opener   Opener
	dedup    *executor.Dedup
	quantity int
	logger   *slog.Logger
}

// NewExecutor creates an Executor. dedup may be nil.
func NewExecutor(market domain.Market, route Route, trigger Trigger, exchange domain.Exchange,
	opener Opener, dedup *executor.Dedup, quantity int, logger *slog.Logger) *Executor {
	if quantity < 1 {
		quantity = 1
	}
	return &Executor{
		market:   market,
		route:    route,
		trigger:  trigger,
		exchange: exchange,
		opener:   opener,
		dedup:    dedup,
		quantity: quantity,
		logger: logger.With(
			slog.String("component", "scalp_executor"),
			slog.String("market", market.ID),
		),
	}
}

// Run consumes the mailbox until it is closed or ctx is cancelled. A failed
// or panicking update is logged and the executor keeps listening.
func (e *Executor) Run(ctx context.Context, mailbox <-chan domain.LiveEvent) {
	e.logger.Info("executor armed", slog.String("route", e.route.Name), slog.String("title", e.market.Title))
	defer e.logger.Info("executor stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-mailbox:
			if !ok {
				return
			}
			e.safeHandle(ctx, ev)
		}
	}
}

func (e *Executor) safeHandle(ctx context.Context, ev domain.LiveEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("executor panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	if _, err := e.Handle(ctx, ev); err != nil {
		e.logger.Error("scalp order failed", slog.String("event", ev.ID), slog.String("error", err.Error()))
	}
}

// Handle processes one update and returns the entry order id when a position
// was opened. Updates for games not named in the market title are ignored, and
// a trigger on a market that already holds an open position is skipped.
func (e *Executor) Handle(ctx context.Context, ev domain.LiveEvent) (string, error) {
	if !Relevant(ev, e.market.Title) {
		return "", nil
	}
	e.logger.Debug("score update",
		slog.String("event", ev.ID),
		slog.String("home", ev.HomeTeam),
		slog.Int("home_score", ev.HomeScore),
		slog.String("away", ev.AwayTeam),
		slog.Int("away_score", ev.AwayScore),
		slog.Int("period", ev.Period),
	)

	sig, fired := e.trigger.Evaluate(ev)
	if !fired {
		return "", nil
	}
	if e.dedup != nil && e.dedup.IsDuplicate(fmt.Sprintf("%s|%s|%s", e.market.ID, ev.ID, sig.Leader)) {
		return "", nil
	}

	side := SideFor(ev, e.market.Title, sig.Leader)
	e.logger.Info("trigger fired",
		slog.String("trigger", e.trigger.Name()),
		slog.String("reason", sig.Reason),
		slog.String("side", string(side)),
	)

	price := entryPrice(e.quote(ctx), side)
	if price <= 0 || price >= 1 {
		return "", fmt.Errorf("scalper: no usable %s price on %s", side, e.market.ID)
	}
	opened, err := e.opener.Open(ctx, executor.OpenRequest{
		MarketID:   e.market.ID,
		Side:       side,
		Quantity:   e.quantity,
		EntryPrice: price,
		Strategy:   domain.StrategyScalper,
		Rationale:  fmt.Sprintf("%s: %s", e.trigger.Name(), sig.Reason),
	})
	if errors.Is(err, executor.ErrPositionExists) {
		e.logger.Info("already in market, trigger skipped", slog.String("event", ev.ID))
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scalper: open %s: %w", e.market.ID, err)
	}
	return opened.OrderID, nil
}

// quote refreshes the market snapshot, keeping the armed one when the
// exchange cannot be asked.
func (e *Executor) quote(ctx context.Context) domain.Market {
	m, err := e.exchange.Market(ctx, e.market.ID)
	if err != nil {
		e.logger.Debug("quote unavailable, using armed snapshot", slog.String("error", err.Error()))
		return e.market
	}
	return m
}

// entryPrice is the ask for side, or its last price when no ask is quoted.
func entryPrice(m domain.Market, side domain.Side) float64 {
	ask := m.YesAsk
	if side == domain.SideNo {
		ask = m.NoAsk
	}
	if ask > 0 {
		return ask
	}
	return m.PriceFor(side)
}
