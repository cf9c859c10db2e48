package domain

// PortfolioMetrics summarise the risk profile of an Allocation.
type PortfolioMetrics struct {
	ExpectedReturn       float64
	Volatility           float64
	SharpeRatio          float64
	MaxDrawdown          float64
	VaR95                float64
	CVaR95               float64
	DiversificationRatio float64
}

// Allocation maps market ids to a fraction of a strategy's capital sub-pool.
// Fractions never exceed the configured single-position cap and need not sum
// to one.
type Allocation struct {
	Fractions     map[string]float64
	Opportunities []Opportunity
	Capital       float64
	Metrics       PortfolioMetrics

	// CorrelationModel names the estimator used for cross-market correlation so
	// reports can tell a placeholder from a fitted model.
	CorrelationModel string
}

// EmptyAllocation is the explicit result for degenerate input.
func EmptyAllocation(capital float64) Allocation {
	return Allocation{
		Fractions: map[string]float64{},
		Capital:   capital,
	}
}

// TotalFraction returns the sum of all allocated fractions.
func (a Allocation) TotalFraction() float64 {
	var sum float64
	for _, f := range a.Fractions {
		sum += f
	}
	return sum
}

// CapitalUsed returns the dollar amount the allocation commits.
func (a Allocation) CapitalUsed() float64 {
	return a.TotalFraction() * a.Capital
}

// IsEmpty reports whether nothing was allocated.
func (a Allocation) IsEmpty() bool {
	return len(a.Fractions) == 0
}
