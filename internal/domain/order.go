package domain

import "time"

// Side is the contract side of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other side of the contract.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// OrderAction indicates whether this is a buy or sell.
type OrderAction string

const (
	OrderActionBuy  OrderAction = "buy"
	OrderActionSell OrderAction = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderRequest describes an order to submit through the Exchange.
// LimitPrice is a probability in [0, 1] and is required for limit orders.
type OrderRequest struct {
	MarketID      string
	Side          Side
	Action        OrderAction
	Quantity      int
	Type          OrderType
	LimitPrice    *float64
	ClientOrderID string
}

// Order is an order as reported by the exchange.
type Order struct {
	ID        string
	MarketID  string
	Side      Side
	Action    OrderAction
	Type      OrderType
	Quantity  int
	Remaining int
	Price     float64
	Status    string
	CreatedAt time.Time
}

// ExchangePosition is the exchange's view of a held position.
type ExchangePosition struct {
	MarketID string
	Quantity int
	Side     Side
}
