// Package paper is a simulated exchange. Market data comes from a real source;
// orders fill against the quoted prices and cash is tracked in memory.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// MarketSource supplies live market data.
type MarketSource interface {
	Markets(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error)
	Market(ctx context.Context, id string) (domain.Market, error)
}

type positionKey struct {
	market string
	side   domain.Side
}

// Exchange implements domain.Exchange without touching real money.
//
// Market buys and limit buys at or above the ask fill immediately at the
// ask. Limit orders that do not cross rest until cancelled and never
// fill. Sells fill at the bid or rest the same way; only an executing sell
// needs a holding.
type Exchange struct {
	source MarketSource
	now    func() time.Time

	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[positionKey]int
	orders    map[string]domain.Order
}

// New creates a paper exchange with the given starting cash in dollars.
func New(source MarketSource, startingCash float64) *Exchange {
	return &Exchange{
		source:    source,
		now:       time.Now,
		cash:      decimal.NewFromFloat(startingCash),
		positions: make(map[positionKey]int),
		orders:    make(map[string]domain.Order),
	}
}

// Live reports that orders never reach the real exchange.
func (e *Exchange) Live() bool { return false }

// Balance returns simulated cash.
func (e *Exchange) Balance(context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash.InexactFloat64(), nil
}

// Positions returns simulated holdings sorted by market id.
func (e *Exchange) Positions(context.Context) ([]domain.ExchangePosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ExchangePosition, 0, len(e.positions))
	for k, qty := range e.positions {
		if qty > 0 {
			out = append(out, domain.ExchangePosition{MarketID: k.market, Side: k.side, Quantity: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// Markets delegates to the market source.
func (e *Exchange) Markets(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error) {
	return e.source.Markets(ctx, status)
}

// Market delegates to the market source.
func (e *Exchange) Market(ctx context.Context, id string) (domain.Market, error) {
	return e.source.Market(ctx, id)
}

// Orders returns resting simulated orders.
func (e *Exchange) Orders(context.Context) ([]domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CancelOrder removes a resting order.
func (e *Exchange) CancelOrder(_ context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.orders[orderID]; !ok {
		return fmt.Errorf("paper: cancel %s: %w", orderID, domain.ErrNotFound)
	}
	delete(e.orders, orderID)
	return nil
}

// PlaceOrder simulates an order against the current quote.
func (e *Exchange) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if req.Quantity < 1 {
		return "", fmt.Errorf("paper: quantity %d: %w", req.Quantity, domain.ErrInvalidOrder)
	}
	if req.Type == domain.OrderTypeLimit && req.LimitPrice == nil {
		return "", fmt.Errorf("paper: limit order without price: %w", domain.ErrInvalidOrder)
	}
	m, err := e.source.Market(ctx, req.MarketID)
	if err != nil {
		return "", fmt.Errorf("paper: quote %s: %w", req.MarketID, err)
	}

	action := req.Action
	if action == "" {
		action = domain.OrderActionBuy
	}
	id := uuid.NewString()
	order := domain.Order{
		ID:        id,
		MarketID:  req.MarketID,
		Side:      req.Side,
		Action:    action,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Remaining: req.Quantity,
		CreatedAt: e.now().UTC(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := positionKey{market: req.MarketID, side: req.Side}
	if action == domain.OrderActionBuy {
		fill, crosses := buyPrice(m, req)
		if !crosses {
			order.Price = *req.LimitPrice
			order.Status = "resting"
			e.orders[id] = order
			return id, nil
		}
		cost := decimal.NewFromFloat(fill).Mul(decimal.NewFromInt(int64(req.Quantity)))
		if cost.GreaterThan(e.cash) {
			return "", fmt.Errorf("paper: insufficient cash %s for %s: %w", e.cash.StringFixed(2), cost.StringFixed(2), domain.ErrInvalidOrder)
		}
		e.cash = e.cash.Sub(cost)
		e.positions[key] += req.Quantity
		return id, nil
	}

	fill, crosses := sellPrice(m, req)
	if !crosses {
		order.Price = *req.LimitPrice
		order.Status = "resting"
		e.orders[id] = order
		return id, nil
	}
	held := e.positions[key]
	if held < req.Quantity {
		return "", fmt.Errorf("paper: sell %d of %s %s, holding %d: %w", req.Quantity, req.MarketID, req.Side, held, domain.ErrInvalidOrder)
	}
	e.cash = e.cash.Add(decimal.NewFromFloat(fill).Mul(decimal.NewFromInt(int64(req.Quantity))))
	e.positions[key] = held - req.Quantity
	return id, nil
}

// buyPrice returns the fill price and whether the order executes now.
func buyPrice(m domain.Market, req domain.OrderRequest) (float64, bool) {
	ask := m.YesAsk
	if req.Side == domain.SideNo {
		ask = m.NoAsk
	}
	if ask <= 0 {
		ask = m.PriceFor(req.Side)
	}
	if req.Type != domain.OrderTypeLimit {
		return ask, true
	}
	limit := *req.LimitPrice
	if limit >= ask {
		return ask, true
	}
	return limit, false
}

func sellPrice(m domain.Market, req domain.OrderRequest) (float64, bool) {
	bid := m.YesBid
	if req.Side == domain.SideNo {
		bid = m.NoBid
	}
	if bid <= 0 {
		bid = m.PriceFor(req.Side)
	}
	if req.Type != domain.OrderTypeLimit {
		return bid, true
	}
	limit := *req.LimitPrice
	if limit <= bid {
		return bid, true
	}
	return limit, false
}

var _ domain.Exchange = (*Exchange)(nil)
