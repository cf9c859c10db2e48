package domain

import "time"

// Lifecycle event kinds published on the signal bus.
const (
	EventPositionOpened  = "position_opened"
	EventPositionClosed  = "position_closed"
	EventCycleCompleted  = "cycle_completed"
	EventBudgetExhausted = "budget_exhausted"
	EventCashEmergency   = "cash_emergency"
	EventError           = "error"
)

// Signal bus channel and stream names.
const (
	ChannelLifecycle = "kalshibot:lifecycle"
	StreamLifecycle  = "kalshibot:lifecycle:stream"
)

// LifecycleEvent is the JSON payload published for every position or cycle
// transition.
type LifecycleEvent struct {
	Kind      string         `json:"kind"`
	MarketID  string         `json:"market_id,omitempty"`
	Strategy  string         `json:"strategy,omitempty"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
