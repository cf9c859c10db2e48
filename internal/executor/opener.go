// Package executor owns the single path through which every strategy opens a
// position: reserve the market in the store, submit the order, undo the
// reservation when the order fails, and announce the result.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// ErrPositionExists is returned by Open when the market already has an open
// position. It is a normal outcome, not a failure.
var ErrPositionExists = errors.New("executor: open position already exists")

// OpenRequest describes a position to open.
type OpenRequest struct {
	MarketID   string
	Side       domain.Side
	Quantity   int
	EntryPrice float64
	Strategy   string
	Rationale  string
	Confidence float64

	// OrderType defaults to market. LimitPrice is required for limit orders.
	OrderType  domain.OrderType
	LimitPrice *float64

	// ExitPrice, when set, rests a sell at that price right after the entry.
	ExitPrice *float64
}

// Opened is the result of a successful Open.
type Opened struct {
	Position    domain.Position
	OrderID     string
	ExitOrderID string
}

// Opener implements the at-most-one-open-position entry path.
type Opener struct {
	store    domain.PositionStore
	exchange domain.Exchange
	events   *Events
	logger   *slog.Logger
	now      func() time.Time
}

// NewOpener creates an Opener. events may be nil.
func NewOpener(store domain.PositionStore, exchange domain.Exchange, events *Events, logger *slog.Logger) *Opener {
	return &Opener{
		store:    store,
		exchange: exchange,
		events:   events,
		logger:   logger.With(slog.String("component", "opener")),
		now:      time.Now,
	}
}

// Open reserves the market, places the entry order and, if requested, the
// resting exit order. It returns ErrPositionExists when the store already
// holds an open position for the market.
func (o *Opener) Open(ctx context.Context, req OpenRequest) (Opened, error) {
	if req.Quantity < 1 {
		return Opened{}, fmt.Errorf("executor: quantity %d: %w", req.Quantity, domain.ErrInvalidOrder)
	}
	if req.EntryPrice <= 0 || req.EntryPrice >= 1 {
		return Opened{}, fmt.Errorf("executor: entry price %.4f: %w", req.EntryPrice, domain.ErrInvalidOrder)
	}

	pos := domain.Position{
		MarketID:   req.MarketID,
		Side:       req.Side,
		Quantity:   req.Quantity,
		EntryPrice: req.EntryPrice,
		Live:       o.exchange.Live(),
		CreatedAt:  o.now().UTC(),
		Rationale:  req.Rationale,
		Strategy:   req.Strategy,
		Confidence: req.Confidence,
		Status:     domain.PositionStatusOpen,
	}
	id, ok, err := o.store.AddPosition(ctx, pos)
	if err != nil {
		return Opened{}, fmt.Errorf("executor: reserve %s: %w", req.MarketID, err)
	}
	if !ok {
		o.logger.Debug("position already open", slog.String("market", req.MarketID), slog.String("strategy", req.Strategy))
		return Opened{}, ErrPositionExists
	}
	pos.ID = id

	orderType := req.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}
	orderID, err := o.exchange.PlaceOrder(ctx, domain.OrderRequest{
		MarketID:      req.MarketID,
		Side:          req.Side,
		Action:        domain.OrderActionBuy,
		Quantity:      req.Quantity,
		Type:          orderType,
		LimitPrice:    req.LimitPrice,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		if cerr := o.store.CancelPosition(ctx, id); cerr != nil {
			o.logger.Error("cancel reserved position failed",
				slog.Int64("position_id", id),
				slog.String("error", cerr.Error()),
			)
		}
		o.events.Emit(ctx, domain.LifecycleEvent{
			Kind:     domain.EventError,
			MarketID: req.MarketID,
			Strategy: req.Strategy,
			Message:  "entry order failed: " + err.Error(),
		})
		return Opened{}, fmt.Errorf("executor: place entry %s: %w", req.MarketID, err)
	}

	out := Opened{Position: pos, OrderID: orderID}
	if req.ExitPrice != nil {
		exitID, err := o.exchange.PlaceOrder(ctx, domain.OrderRequest{
			MarketID:      req.MarketID,
			Side:          req.Side,
			Action:        domain.OrderActionSell,
			Quantity:      req.Quantity,
			Type:          domain.OrderTypeLimit,
			LimitPrice:    req.ExitPrice,
			ClientOrderID: uuid.NewString(),
		})
		if err != nil {
			o.logger.Warn("resting exit order failed",
				slog.String("market", req.MarketID),
				slog.Float64("exit_price", *req.ExitPrice),
				slog.String("error", err.Error()),
			)
		} else {
			out.ExitOrderID = exitID
		}
	}

	o.logger.Info("position opened",
		slog.Int64("position_id", id),
		slog.String("market", req.MarketID),
		slog.String("side", string(req.Side)),
		slog.Int("quantity", req.Quantity),
		slog.Float64("entry_price", req.EntryPrice),
		slog.String("strategy", req.Strategy),
		slog.Bool("live", pos.Live),
		slog.String("order_id", orderID),
	)
	o.events.Emit(ctx, domain.LifecycleEvent{
		Kind:     domain.EventPositionOpened,
		MarketID: req.MarketID,
		Strategy: req.Strategy,
		Message:  fmt.Sprintf("%s %d @ %.2f", req.Side, req.Quantity, req.EntryPrice),
		Detail: map[string]any{
			"position_id": id,
			"order_id":    orderID,
			"confidence":  req.Confidence,
			"live":        pos.Live,
		},
	})
	return out, nil
}
