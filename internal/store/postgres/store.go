package postgres

import "github.com/alanyoungcy/kalshibot/internal/domain"

// Store bundles the per-table stores behind domain.Store.
type Store struct {
	*MarketStore
	*PositionStore
	*TradeLogStore
	*UsageStore

	client *Client
}

// NewStore wires every table store onto the client's pool.
func NewStore(c *Client) *Store {
	pool := c.Pool()
	return &Store{
		MarketStore:   NewMarketStore(pool),
		PositionStore: NewPositionStore(pool),
		TradeLogStore: NewTradeLogStore(pool),
		UsageStore:    NewUsageStore(pool),
		client:        c,
	}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

var _ domain.Store = (*Store)(nil)
