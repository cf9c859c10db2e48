package domain

import "context"

// Exchange is the narrow trading capability the core consumes. Prices cross
// this boundary as probabilities in [0, 1].
type Exchange interface {
	Balance(ctx context.Context) (float64, error)
	Positions(ctx context.Context) ([]ExchangePosition, error)
	Markets(ctx context.Context, status MarketStatus) ([]Market, error)
	Market(ctx context.Context, id string) (Market, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	Orders(ctx context.Context) ([]Order, error)
	// Live reports whether orders reach the real exchange.
	Live() bool
}

// Oracle returns a structured trade decision for a market. Implementations
// fail soft: malformed upstream output becomes a SKIP decision.
type Oracle interface {
	Decide(ctx context.Context, market Market) (Decision, error)
}
