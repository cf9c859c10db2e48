package portfolio

import (
	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// CorrelationModel estimates pairwise return correlation between
// opportunities. Matrix must return a symmetric n×n matrix with ones on the
// diagonal for n opportunities, in input order.
type CorrelationModel interface {
	Name() string
	Matrix(opps []domain.Opportunity) [][]float64
}

// ModelFor returns the correlation model named by cfg.CorrelationModel.
// Anything other than "grouped" falls back to IndependentModel.
func ModelFor(cfg config.PortfolioConfig) CorrelationModel {
	if cfg.CorrelationModel == "grouped" {
		return GroupModel{Key: SeriesKey, Correlation: cfg.GroupCorrelation}
	}
	return IndependentModel{}
}

// IndependentModel treats every market as uncorrelated with every other.
//
// It is the extension point for a fitted model: a replacement would estimate
// correlation from co-movement of stored price history or shared event
// series, and fill Opportunity.CorrelationScore with each market's mean
// correlation to the rest of the book. Allocations produced with this model
// report CorrelationModel "independent" so reports can tell the difference.
type IndependentModel struct{}

// Name identifies the estimator.
func (IndependentModel) Name() string { return "independent" }

// Matrix returns the identity matrix.
func (IndependentModel) Matrix(opps []domain.Opportunity) [][]float64 {
	m := make([][]float64, len(opps))
	for i := range m {
		m[i] = make([]float64, len(opps))
		m[i][i] = 1
	}
	return m
}

// GroupModel assigns a fixed correlation to opportunities that share a group
// key and zero to everything else. Grouping by event series (the ticker
// prefix before the first '-') catches markets that settle on the same
// underlying.
type GroupModel struct {
	Key         func(domain.Opportunity) string
	Correlation float64
}

// Name identifies the estimator.
func (GroupModel) Name() string { return "grouped" }

// Matrix returns the grouped correlation matrix.
func (g GroupModel) Matrix(opps []domain.Opportunity) [][]float64 {
	keys := make([]string, len(opps))
	for i, o := range opps {
		keys[i] = g.Key(o)
	}
	m := make([][]float64, len(opps))
	for i := range m {
		m[i] = make([]float64, len(opps))
		for j := range m[i] {
			switch {
			case i == j:
				m[i][j] = 1
			case keys[i] != "" && keys[i] == keys[j]:
				m[i][j] = g.Correlation
			}
		}
	}
	return m
}

// SeriesKey returns the event series of a Kalshi ticker, e.g. "KXBTC" for
// "KXBTC-25DEC31-B100000".
func SeriesKey(o domain.Opportunity) string {
	for i := 0; i < len(o.MarketID); i++ {
		if o.MarketID[i] == '-' {
			return o.MarketID[:i]
		}
	}
	return o.MarketID
}
