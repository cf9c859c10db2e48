package opportunity

import "math"

// Thresholds are the three gates an opportunity must clear.
type Thresholds struct {
	MinEdge           float64
	MinConfidence     float64
	MinExpectedReturn float64
}

// Clears reports whether edge, confidence and expected return all meet t.
// Edge is compared by magnitude so NO-side opportunities qualify the same way.
func (t Thresholds) Clears(edge, confidence, expectedReturn float64) bool {
	return math.Abs(edge) >= t.MinEdge &&
		confidence >= t.MinConfidence &&
		expectedReturn >= t.MinExpectedReturn
}

// EdgeFilter decides which opportunities are eligible for allocation and
// which are strong enough to trade immediately.
type EdgeFilter struct {
	Eligible  Thresholds
	Immediate Thresholds
}

// Passes reports whether the opportunity may enter allocation.
func (f EdgeFilter) Passes(edge, confidence, expectedReturn float64) bool {
	return f.Eligible.Clears(edge, confidence, expectedReturn)
}

// Strong reports whether the signal warrants an out-of-band trade.
func (f EdgeFilter) Strong(edge, confidence, expectedReturn float64) bool {
	return f.Immediate.Clears(edge, confidence, expectedReturn)
}
