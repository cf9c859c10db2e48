package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Kelly returns the full-Kelly fraction for buying a binary contract at price
// with win probability win: (win − price) / (1 − price). Non-positive edges
// return zero.
func Kelly(win, price float64) float64 {
	if price <= 0 || price >= 1 || win <= price {
		return 0
	}
	w := decimal.NewFromFloat(win)
	c := decimal.NewFromFloat(price)
	return w.Sub(c).Div(decimal.NewFromInt(1).Sub(c)).InexactFloat64()
}

// KellyFor applies Kelly to the opportunity's recommended side and scales by
// the fractional-Kelly multiplier and the oracle's confidence.
func KellyFor(o domain.Opportunity, multiplier float64) float64 {
	win := o.PredictedProb
	if o.Side == domain.SideNo {
		win = 1 - o.PredictedProb
	}
	return Kelly(win, o.EntryPrice()) * multiplier * o.Confidence
}
