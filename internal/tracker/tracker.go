// Package tracker watches open positions and closes them when an exit rule
// fires.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
)

const lockKey = "tracking-pass"

// Summary reports one tracking pass.
type Summary struct {
	Checked     int
	Closed      int
	Kept        int
	Discarded   int
	Errors      int
	RealizedPnL float64
	ByReason    map[domain.ExitReason]int
}

// Tracker evaluates every open position once per pass.
type Tracker struct {
	store    domain.PositionStore
	exchange domain.Exchange
	events   *executor.Events
	policy   Policy
	locks    domain.LockManager
	lockTTL  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLock makes each pass hold a distributed lock so two processes never
// close the same positions.
func WithLock(locks domain.LockManager, ttl time.Duration) Option {
	return func(t *Tracker) {
		t.locks = locks
		t.lockTTL = ttl
	}
}

// New creates a Tracker. events may be nil.
func New(store domain.PositionStore, exchange domain.Exchange, events *executor.Events, policy Policy, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		exchange: exchange,
		events:   events,
		policy:   policy,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "tracker")),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Pass checks every open position. Per-position failures are counted and
// logged; the error return is reserved for failures that stop the pass.
func (t *Tracker) Pass(ctx context.Context) (Summary, error) {
	sum := Summary{ByReason: make(map[domain.ExitReason]int)}

	if t.locks != nil {
		unlock, err := t.locks.Acquire(ctx, lockKey, t.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			t.logger.Info("tracking pass skipped: lock held elsewhere")
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("tracker: lock: %w", err)
		}
		defer unlock()
	}

	positions, err := t.store.OpenPositions(ctx)
	if err != nil {
		return sum, fmt.Errorf("tracker: open positions: %w", err)
	}
	held := t.holdings(ctx)

	for _, pos := range positions {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Checked++

		m, err := t.exchange.Market(ctx, pos.MarketID)
		if err != nil {
			sum.Errors++
			t.logger.Warn("market unavailable", slog.String("market", pos.MarketID), slog.String("error", err.Error()))
			continue
		}

		exit, ok := t.policy.Evaluate(pos, m, t.now())
		if !ok {
			sum.Kept++
			continue
		}
		if exit.Reason != domain.ExitResolution && held != nil && held[holdingKey(pos)] == 0 {
			// The entry never filled, so there is nothing to sell and no
			// realized P&L to book.
			if err := t.discard(ctx, pos, exit); err != nil {
				sum.Errors++
				t.logger.Error("discard position failed",
					slog.Int64("position_id", pos.ID),
					slog.String("market", pos.MarketID),
					slog.String("error", err.Error()),
				)
				continue
			}
			sum.Discarded++
			continue
		}
		if err := t.close(ctx, pos, exit); err != nil {
			sum.Errors++
			t.logger.Error("close position failed",
				slog.Int64("position_id", pos.ID),
				slog.String("market", pos.MarketID),
				slog.String("reason", string(exit.Reason)),
				slog.String("error", err.Error()),
			)
			continue
		}
		sum.Closed++
		sum.ByReason[exit.Reason]++
		sum.RealizedPnL += PnL(pos.EntryPrice, exit.Price, pos.Quantity)
	}

	t.logger.Info("tracking pass complete",
		slog.Int("checked", sum.Checked),
		slog.Int("closed", sum.Closed),
		slog.Int("discarded", sum.Discarded),
		slog.Int("errors", sum.Errors),
		slog.Float64("realized_pnl", sum.RealizedPnL),
	)
	return sum, nil
}

// holdings returns the exchange's held quantity per market and side, or nil
// when the exchange cannot be asked.
func (t *Tracker) holdings(ctx context.Context) map[string]int {
	positions, err := t.exchange.Positions(ctx)
	if err != nil {
		t.logger.Warn("exchange positions unavailable", slog.String("error", err.Error()))
		return nil
	}
	out := make(map[string]int, len(positions))
	for _, p := range positions {
		out[p.MarketID+"/"+string(p.Side)] += p.Quantity
	}
	return out
}

func holdingKey(pos domain.Position) string { return pos.MarketID + "/" + string(pos.Side) }

// discard drops a position the exchange does not hold. Its resting orders are
// cancelled and no trade log is written.
func (t *Tracker) discard(ctx context.Context, pos domain.Position, exit Exit) error {
	t.cancelResting(ctx, pos.MarketID)
	if err := t.store.CancelPosition(ctx, pos.ID); err != nil {
		return err
	}

	t.logger.Info("unfilled position discarded",
		slog.Int64("position_id", pos.ID),
		slog.String("market", pos.MarketID),
		slog.String("strategy", pos.Strategy),
		slog.String("trigger", string(exit.Reason)),
	)
	t.events.Emit(ctx, domain.LifecycleEvent{
		Kind:     domain.EventPositionClosed,
		MarketID: pos.MarketID,
		Strategy: pos.Strategy,
		Message:  "discarded: entry never filled",
		Detail: map[string]any{
			"position_id": pos.ID,
			"discarded":   true,
			"trigger":     string(exit.Reason),
		},
	})
	return nil
}

func (t *Tracker) close(ctx context.Context, pos domain.Position, exit Exit) error {
	reason := exit.Reason
	if reason != domain.ExitResolution {
		t.cancelResting(ctx, pos.MarketID)
		if _, err := t.exchange.PlaceOrder(ctx, domain.OrderRequest{
			MarketID:      pos.MarketID,
			Side:          pos.Side,
			Action:        domain.OrderActionSell,
			Quantity:      pos.Quantity,
			Type:          domain.OrderTypeMarket,
			ClientOrderID: uuid.NewString(),
		}); err != nil {
			return fmt.Errorf("closing order: %w", err)
		}
	}

	now := t.now().UTC()
	pnl := PnL(pos.EntryPrice, exit.Price, pos.Quantity)
	log := domain.TradeLog{
		PositionID: pos.ID,
		MarketID:   pos.MarketID,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exit.Price,
		PnL:        pnl,
		EntryAt:    pos.CreatedAt,
		ExitAt:     now,
		ExitReason: reason,
		Rationale:  pos.Rationale,
		Strategy:   pos.Strategy,
	}
	if err := t.store.ClosePosition(ctx, pos.ID, log); err != nil {
		return err
	}

	t.logger.Info("position closed",
		slog.Int64("position_id", pos.ID),
		slog.String("market", pos.MarketID),
		slog.String("reason", string(reason)),
		slog.Float64("exit_price", exit.Price),
		slog.Float64("pnl", pnl),
	)
	t.events.Emit(ctx, domain.LifecycleEvent{
		Kind:     domain.EventPositionClosed,
		MarketID: pos.MarketID,
		Strategy: pos.Strategy,
		Message:  fmt.Sprintf("%s exit @ %.2f, pnl %.2f", reason, exit.Price, pnl),
		Detail: map[string]any{
			"position_id": pos.ID,
			"reason":      string(reason),
			"pnl":         pnl,
		},
	})
	return nil
}

// cancelResting cancels any resting orders on the market so a stale exit
// cannot fill after the position is closed.
func (t *Tracker) cancelResting(ctx context.Context, marketID string) {
	orders, err := t.exchange.Orders(ctx)
	if err != nil {
		t.logger.Warn("resting orders unavailable", slog.String("market", marketID), slog.String("error", err.Error()))
		return
	}
	for _, o := range orders {
		if o.MarketID != marketID {
			continue
		}
		if err := t.exchange.CancelOrder(ctx, o.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			t.logger.Warn("cancel resting order failed",
				slog.String("market", marketID),
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
