package domain

// DecisionAction is the oracle's recommended action.
type DecisionAction string

const (
	ActionBuy  DecisionAction = "BUY"
	ActionSell DecisionAction = "SELL"
	ActionSkip DecisionAction = "SKIP"
)

// Decision is the structured answer returned by the oracle.
// LimitPrice is expressed in cents (0-100).
type Decision struct {
	Action     DecisionAction
	Side       Side
	Confidence float64
	LimitPrice int
	Reasoning  string
}

// IsSkip reports whether the decision recommends no trade.
func (d Decision) IsSkip() bool {
	return d.Action != ActionBuy && d.Action != ActionSell
}

// SkipDecision returns the "no trade" sentinel with the given reason.
func SkipDecision(reason string) Decision {
	return Decision{
		Action:     ActionSkip,
		Side:       SideYes,
		LimitPrice: 50,
		Reasoning:  reason,
	}
}
