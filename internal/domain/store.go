package domain

import (
	"context"
	"time"
)

// MarketStore persists market snapshots.
type MarketStore interface {
	UpsertMarkets(ctx context.Context, markets []Market) error
	// EligibleMarkets returns open markets meeting the volume and expiry
	// filters that have no open position.
	EligibleMarkets(ctx context.Context, filter EligibilityFilter) ([]Market, error)
}

// PositionStore persists positions. AddPosition performs check-and-insert
// atomically per market id: ok is false (and no row is written) when an
// open position already exists for the market.
type PositionStore interface {
	AddPosition(ctx context.Context, pos Position) (id int64, ok bool, err error)
	// CancelPosition removes an open position whose opening order never
	// reached the exchange.
	CancelPosition(ctx context.Context, id int64) error
	OpenPositions(ctx context.Context) ([]Position, error)
	OpenPositionByMarket(ctx context.Context, marketID string) (Position, error)
	// ClosePosition writes the trade log and flips the position to closed in
	// one transaction.
	ClosePosition(ctx context.Context, id int64, log TradeLog) error
}

// TradeLogStore reads the append-only trade log.
type TradeLogStore interface {
	AllTradeLogs(ctx context.Context) ([]TradeLog, error)
	TradeLogsBefore(ctx context.Context, before time.Time) ([]TradeLog, error)
}

// UsageStore persists the daily AI usage tracker keyed by date.
type UsageStore interface {
	LoadUsage(ctx context.Context, date string) (DailyUsage, error)
	SaveUsage(ctx context.Context, usage DailyUsage) error
	UsageHistory(ctx context.Context, limit int) ([]DailyUsage, error)
}

// Store bundles every persistence capability.
type Store interface {
	MarketStore
	PositionStore
	TradeLogStore
	UsageStore
	Close() error
}
