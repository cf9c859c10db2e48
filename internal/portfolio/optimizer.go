// Package portfolio sizes a set of scored opportunities into an allocation
// that respects per-position and whole-portfolio risk limits.
package portfolio

import (
	"log/slog"
	"math"
	"sort"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const bisectSteps = 30

// Optimizer turns opportunities into an Allocation.
//
// Candidates are ranked by expected return per unit of volatility. Each one is
// offered its capped fractional-Kelly size; if adding it would push portfolio
// volatility over the limit its fraction is bisected down to the largest size
// that fits, and it is dropped when that falls below the minimum fraction.
// The fractions never sum past MaxTotalAllocation (1.0 when unset), so the
// book cannot commit more than the capital it was given.
type Optimizer struct {
	cfg    config.PortfolioConfig
	corr   CorrelationModel
	logger *slog.Logger
}

// NewOptimizer creates an Optimizer. A nil model means IndependentModel.
func NewOptimizer(cfg config.PortfolioConfig, model CorrelationModel, logger *slog.Logger) *Optimizer {
	if model == nil {
		model = IndependentModel{}
	}
	return &Optimizer{
		cfg:    cfg,
		corr:   model,
		logger: logger.With(slog.String("component", "portfolio")),
	}
}

// Optimize allocates fractions of capital across the passed opportunities.
// Empty or fully filtered input yields EmptyAllocation with zero metrics.
func (o *Optimizer) Optimize(opps []domain.Opportunity, capital float64) domain.Allocation {
	ranked := o.candidates(opps)
	if len(ranked) == 0 || capital <= 0 {
		alloc := domain.EmptyAllocation(capital)
		alloc.CorrelationModel = o.corr.Name()
		return alloc
	}

	corr := o.corr.Matrix(ranked)
	sigmas := make([]float64, len(ranked))
	for i, c := range ranked {
		sigmas[i] = c.Volatility
	}

	// weights is index-aligned with ranked; zero means not chosen.
	weights := make([]float64, len(ranked))
	var chosen []int
	var total float64
	maxTotal := o.maxTotal()
	for i := range ranked {
		room := maxTotal - total
		if room < o.cfg.MinFraction || room <= 0 {
			break
		}
		if o.tooCorrelated(corr, chosen, i) {
			continue
		}
		w := o.fit(weights, sigmas, corr, i, math.Min(ranked[i].RiskAdjustedFrac, room))
		if w < o.cfg.MinFraction || w <= 0 {
			continue
		}
		weights[i] = w
		total += w
		ranked[i].RiskAdjustedFrac = w
		chosen = append(chosen, i)
	}

	alloc := domain.EmptyAllocation(capital)
	alloc.CorrelationModel = o.corr.Name()
	if len(chosen) == 0 {
		return alloc
	}

	picked := make([]domain.Opportunity, 0, len(chosen))
	pickedW := make([]float64, 0, len(chosen))
	pickedCorr := make([][]float64, len(chosen))
	for a, i := range chosen {
		picked = append(picked, ranked[i])
		pickedW = append(pickedW, weights[i])
		alloc.Fractions[ranked[i].MarketID] = weights[i]
		pickedCorr[a] = make([]float64, len(chosen))
		for b, j := range chosen {
			pickedCorr[a][b] = corr[i][j]
		}
	}
	alloc.Opportunities = picked
	alloc.Metrics = Metrics(picked, pickedW, pickedCorr)

	o.logger.Info("allocation computed",
		slog.Int("candidates", len(ranked)),
		slog.Int("allocated", len(chosen)),
		slog.Float64("total_fraction", alloc.TotalFraction()),
		slog.Float64("expected_return", alloc.Metrics.ExpectedReturn),
		slog.Float64("volatility", alloc.Metrics.Volatility),
		slog.Float64("sharpe", alloc.Metrics.SharpeRatio),
	)
	if o.cfg.MaxDrawdown > 0 && alloc.Metrics.MaxDrawdown > o.cfg.MaxDrawdown {
		o.logger.Warn("allocation exceeds drawdown budget",
			slog.Float64("max_drawdown", alloc.Metrics.MaxDrawdown),
			slog.Float64("limit", o.cfg.MaxDrawdown),
		)
	}
	if o.cfg.TargetSharpe > 0 && alloc.Metrics.SharpeRatio < o.cfg.TargetSharpe {
		o.logger.Warn("allocation below target sharpe",
			slog.Float64("sharpe", alloc.Metrics.SharpeRatio),
			slog.Float64("target", o.cfg.TargetSharpe),
		)
	}
	return alloc
}

func (o *Optimizer) maxTotal() float64 {
	if o.cfg.MaxTotalAllocation <= 0 || o.cfg.MaxTotalAllocation > 1 {
		return 1
	}
	return o.cfg.MaxTotalAllocation
}

// candidates keeps passed opportunities with a positive capped Kelly size,
// ranked by expected return per unit of volatility.
func (o *Optimizer) candidates(opps []domain.Opportunity) []domain.Opportunity {
	var out []domain.Opportunity
	for _, opp := range opps {
		if !opp.Passed {
			continue
		}
		k := KellyFor(opp, o.cfg.KellyFraction)
		if k <= 0 {
			continue
		}
		opp.KellyFraction = k
		opp.RiskAdjustedFrac = math.Min(k, o.cfg.MaxSinglePosition)
		out = append(out, opp)
	}
	sort.SliceStable(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	return out
}

func score(o domain.Opportunity) float64 {
	if o.Volatility <= 0 {
		return o.ExpectedReturn
	}
	return o.ExpectedReturn / o.Volatility
}

func (o *Optimizer) tooCorrelated(corr [][]float64, chosen []int, i int) bool {
	if o.cfg.MaxCorrelation <= 0 {
		return false
	}
	for _, j := range chosen {
		if corr[i][j] > o.cfg.MaxCorrelation {
			return true
		}
	}
	return false
}

// fit returns the largest weight ≤ want for candidate i that keeps portfolio
// volatility within the limit. weights is restored before returning.
func (o *Optimizer) fit(weights, sigmas []float64, corr [][]float64, i int, want float64) float64 {
	want = math.Min(want, o.cfg.MaxSinglePosition)
	limit := o.cfg.MaxPortfolioVolatility
	defer func() { weights[i] = 0 }()

	weights[i] = want
	if limit <= 0 || Volatility(weights, sigmas, corr) <= limit {
		return want
	}
	lo, hi := 0.0, want
	for step := 0; step < bisectSteps; step++ {
		mid := (lo + hi) / 2
		weights[i] = mid
		if Volatility(weights, sigmas, corr) <= limit {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
