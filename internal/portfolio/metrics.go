package portfolio

import (
	"math"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// One-sided normal quantile and expected shortfall multiplier at 95%.
const (
	z95  = 1.6449
	es95 = 2.0627
)

// Volatility returns the portfolio standard deviation sqrt(wᵀΣw) where
// Σij = ρij·σi·σj.
func Volatility(weights, sigmas []float64, corr [][]float64) float64 {
	var v float64
	for i := range weights {
		for j := range weights {
			v += weights[i] * weights[j] * corr[i][j] * sigmas[i] * sigmas[j]
		}
	}
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// Metrics computes the risk summary of a weighted set of opportunities under
// a normal approximation. All inputs are index-aligned.
func Metrics(opps []domain.Opportunity, weights []float64, corr [][]float64) domain.PortfolioMetrics {
	if len(opps) == 0 {
		return domain.PortfolioMetrics{}
	}
	sigmas := make([]float64, len(opps))
	var er, maxDD, weightedVol float64
	for i, o := range opps {
		sigmas[i] = o.Volatility
		er += weights[i] * o.ExpectedReturn
		maxDD += weights[i] * o.MaxLoss
		weightedVol += weights[i] * o.Volatility
	}
	vol := Volatility(weights, sigmas, corr)

	m := domain.PortfolioMetrics{
		ExpectedReturn: er,
		Volatility:     vol,
		MaxDrawdown:    maxDD,
		VaR95:          math.Max(0, z95*vol-er),
		CVaR95:         math.Max(0, es95*vol-er),
	}
	if vol > 0 {
		m.SharpeRatio = er / vol
		m.DiversificationRatio = weightedVol / vol
	}
	return m
}
