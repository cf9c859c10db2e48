package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Strategy tags recorded on positions.
const (
	StrategyImmediateTrade = "immediate_trade"
	StrategyPortfolio      = "portfolio_optimization"
	StrategyMarketMaking   = "market_making"
	StrategyQuickFlip      = "quick_flip_scalping"
	StrategyLegacy         = "legacy_directional"
	StrategyScalper        = "live_scalper"
)

// Position is a persisted holding in one market. At most one open position
// may exist per market id.
type Position struct {
	ID         int64
	MarketID   string
	Side       Side
	Quantity   int
	EntryPrice float64
	Live       bool
	CreatedAt  time.Time
	Rationale  string
	Strategy   string
	Confidence float64
	Status     PositionStatus
}

// Cost returns the capital committed at entry.
func (p Position) Cost() float64 {
	return p.EntryPrice * float64(p.Quantity)
}
