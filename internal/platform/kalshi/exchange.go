package kalshi

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// marketPageSize is the largest page GET /markets accepts.
const marketPageSize = 1000

// Exchange adapts Client to domain.Exchange. Prices cross the boundary as
// probabilities; the wire format uses integer cents.
type Exchange struct {
	client   *Client
	maxPages int
}

// NewExchange wraps a client. maxPages bounds market pagination (0 means
// unbounded).
func NewExchange(client *Client, maxPages int) *Exchange {
	return &Exchange{client: client, maxPages: maxPages}
}

// Live reports that orders reach the real exchange.
func (e *Exchange) Live() bool { return true }

// Balance returns the available cash in dollars.
func (e *Exchange) Balance(ctx context.Context) (float64, error) {
	cents, err := e.client.GetBalance(ctx)
	if err != nil {
		return 0, err
	}
	return float64(cents) / 100, nil
}

// Positions returns held positions; the sign of the exchange position gives
// the side.
func (e *Exchange) Positions(ctx context.Context) ([]domain.ExchangePosition, error) {
	raw, err := e.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ExchangePosition, 0, len(raw))
	for _, p := range raw {
		side := domain.SideYes
		qty := p.Position
		if qty < 0 {
			side = domain.SideNo
			qty = -qty
		}
		out = append(out, domain.ExchangePosition{MarketID: p.Ticker, Quantity: int(qty), Side: side})
	}
	return out, nil
}

// Markets returns every market in the given status, following cursors up to
// the configured page limit.
func (e *Exchange) Markets(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error) {
	var (
		out    []domain.Market
		cursor string
	)
	for page := 0; e.maxPages <= 0 || page < e.maxPages; page++ {
		resp, err := e.client.GetMarkets(ctx, string(status), marketPageSize, cursor)
		if err != nil {
			return out, err
		}
		now := time.Now().UTC()
		for _, m := range resp.Markets {
			out = append(out, toDomainMarket(m, now))
		}
		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return out, nil
}

// Market returns a fresh snapshot of a single market.
func (e *Exchange) Market(ctx context.Context, id string) (domain.Market, error) {
	m, err := e.client.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	return toDomainMarket(m, time.Now().UTC()), nil
}

// PlaceOrder submits an order and returns the exchange order id.
func (e *Exchange) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	order, err := toKalshiOrder(req)
	if err != nil {
		return "", err
	}
	state, err := e.client.CreateOrder(ctx, order)
	if err != nil {
		return "", err
	}
	return state.OrderID, nil
}

// CancelOrder cancels a resting order.
func (e *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	return e.client.CancelOrder(ctx, orderID)
}

// Orders returns resting orders.
func (e *Exchange) Orders(ctx context.Context) ([]domain.Order, error) {
	raw, err := e.client.GetOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(raw))
	for _, o := range raw {
		side := domain.Side(o.Side)
		price := o.YesPrice
		if side == domain.SideNo {
			price = o.NoPrice
		}
		created, _ := time.Parse(time.RFC3339, o.CreatedTime)
		out = append(out, domain.Order{
			ID:        o.OrderID,
			MarketID:  o.Ticker,
			Side:      side,
			Action:    domain.OrderAction(o.Action),
			Type:      domain.OrderType(o.Type),
			Quantity:  int(o.PlaceCount),
			Remaining: int(o.RemainingCount),
			Price:     centsToProb(float64(price)),
			Status:    o.Status,
			CreatedAt: created,
		})
	}
	return out, nil
}

// toKalshiOrder converts a domain request into the wire body. Limit prices
// are rounded to whole cents in [1, 99]; market buys carry a max cost so the
// exchange accepts them.
func toKalshiOrder(req domain.OrderRequest) (KalshiOrder, error) {
	if req.Quantity < 1 {
		return KalshiOrder{}, fmt.Errorf("kalshi: quantity %d: %w", req.Quantity, domain.ErrInvalidOrder)
	}
	if req.Side != domain.SideYes && req.Side != domain.SideNo {
		return KalshiOrder{}, fmt.Errorf("kalshi: side %q: %w", req.Side, domain.ErrInvalidOrder)
	}

	order := KalshiOrder{
		Ticker:        req.MarketID,
		ClientOrderID: req.ClientOrderID,
		Action:        string(req.Action),
		Side:          string(req.Side),
		Type:          string(req.Type),
		Count:         int64(req.Quantity),
	}
	if order.Action == "" {
		order.Action = string(domain.OrderActionBuy)
	}
	if order.Type == "" {
		order.Type = string(domain.OrderTypeMarket)
	}

	switch domain.OrderType(order.Type) {
	case domain.OrderTypeLimit:
		if req.LimitPrice == nil {
			return KalshiOrder{}, fmt.Errorf("kalshi: limit order without price: %w", domain.ErrInvalidOrder)
		}
		cents := probToCents(*req.LimitPrice)
		if req.Side == domain.SideYes {
			order.YesPrice = &cents
		} else {
			order.NoPrice = &cents
		}
	case domain.OrderTypeMarket:
		if order.Action == string(domain.OrderActionBuy) {
			maxCost := int64(req.Quantity) * 99
			order.BuyMaxCost = &maxCost
		}
	}
	return order, nil
}

func toDomainMarket(m KalshiMarket, now time.Time) domain.Market {
	yes := m.LastPrice
	if m.YesBid > 0 && m.YesAsk > 0 {
		yes = (m.YesBid + m.YesAsk) / 2
	} else if yes == 0 {
		yes = m.YesAsk
	}
	no := 100 - yes
	if m.NoBid > 0 && m.NoAsk > 0 {
		no = (m.NoBid + m.NoAsk) / 2
	}

	expires := parseTime(m.ExpirationTime)
	if expires.IsZero() {
		expires = parseTime(m.CloseTime)
	}

	return domain.Market{
		ID:          m.Ticker,
		Title:       m.Title,
		YesPrice:    centsToProb(yes),
		NoPrice:     centsToProb(no),
		YesBid:      centsToProb(m.YesBid),
		YesAsk:      centsToProb(m.YesAsk),
		NoBid:       centsToProb(m.NoBid),
		NoAsk:       centsToProb(m.NoAsk),
		Volume:      float64(m.Volume),
		ExpiresAt:   expires,
		Category:    m.Category,
		Status:      mapStatus(m.Status),
		Result:      mapResult(m.Result),
		LastUpdated: now,
	}
}

func mapStatus(s string) domain.MarketStatus {
	switch s {
	case "active", "open", "initialized":
		return domain.MarketStatusOpen
	case "settled", "determined", "finalized":
		return domain.MarketStatusSettled
	default:
		return domain.MarketStatusClosed
	}
}

func mapResult(r string) domain.MarketResult {
	switch r {
	case "yes":
		return domain.MarketResultYes
	case "no":
		return domain.MarketResultNo
	default:
		return domain.MarketResultNone
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func centsToProb(c float64) float64 { return c / 100 }

func probToCents(p float64) int64 {
	c := int64(math.Round(p * 100))
	if c < 1 {
		return 1
	}
	if c > 99 {
		return 99
	}
	return c
}

var _ domain.Exchange = (*Exchange)(nil)
