package domain

// Opportunity is a scored trading candidate derived from a market snapshot
// and an oracle decision. It lives for one optimisation cycle.
type Opportunity struct {
	MarketID       string
	Title          string
	Volume         float64
	PredictedProb  float64
	MarketProb     float64
	Confidence     float64
	Edge           float64
	Volatility     float64
	ExpectedReturn float64
	MaxLoss        float64

	// CorrelationScore is reserved for a future cross-market model and is
	// always zero today.
	CorrelationScore float64
	KellyFraction    float64
	RiskAdjustedFrac float64
	Side             Side
	Passed           bool
	Rationale        string
}

// EntryPrice returns the price paid per contract on the recommended side.
func (o Opportunity) EntryPrice() float64 {
	if o.Side == SideNo {
		return 1 - o.MarketProb
	}
	return o.MarketProb
}
