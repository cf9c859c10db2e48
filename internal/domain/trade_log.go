package domain

import "time"

// ExitReason categorises why a position was closed.
type ExitReason string

const (
	ExitResolution ExitReason = "resolution"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTimeBased  ExitReason = "time_based"
	ExitOther      ExitReason = "other"
)

// TradeLog is the immutable record written when a position closes.
type TradeLog struct {
	ID         int64
	PositionID int64
	MarketID   string
	Side       Side
	Quantity   int
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	EntryAt    time.Time
	ExitAt     time.Time
	ExitReason ExitReason
	Rationale  string
	Strategy   string
}
