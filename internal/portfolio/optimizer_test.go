package portfolio_test

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/portfolio"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func opp(id string, p, predicted, conf float64) domain.Opportunity {
	edge := predicted - p
	side := domain.SideYes
	maxLoss := p
	if edge <= 0 {
		side = domain.SideNo
		maxLoss = 1 - p
	}
	return domain.Opportunity{
		MarketID:       id,
		PredictedProb:  predicted,
		MarketProb:     p,
		Confidence:     conf,
		Edge:           edge,
		Volatility:     math.Sqrt(p * (1 - p)),
		ExpectedReturn: math.Abs(edge) * conf,
		MaxLoss:        maxLoss,
		Side:           side,
		Passed:         true,
	}
}

func TestOptimize_EmptyInput(t *testing.T) {
	o := portfolio.NewOptimizer(config.Defaults().Portfolio, nil, discard())

	for _, in := range [][]domain.Opportunity{nil, {}, {func() domain.Opportunity {
		x := opp("A", 0.5, 0.9, 0.9)
		x.Passed = false
		return x
	}()}} {
		alloc := o.Optimize(in, 1000)
		assert.True(t, alloc.IsEmpty())
		assert.Zero(t, alloc.TotalFraction())
		assert.Equal(t, domain.PortfolioMetrics{}, alloc.Metrics)
		assert.Equal(t, "independent", alloc.CorrelationModel)
	}
}

func TestOptimize_NeverExceedsMaxSinglePosition(t *testing.T) {
	cfg := config.Defaults().Portfolio
	cfg.MaxPortfolioVolatility = 10
	o := portfolio.NewOptimizer(cfg, nil, discard())
	r := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		var opps []domain.Opportunity
		for i := 0; i < 12; i++ {
			p := 0.05 + r.Float64()*0.9
			opps = append(opps, opp(fmt.Sprintf("M%d", i), p, r.Float64(), 0.5+r.Float64()/2))
		}
		alloc := o.Optimize(opps, 1000)
		for id, f := range alloc.Fractions {
			assert.LessOrEqual(t, f, cfg.MaxSinglePosition, "market %s", id)
			assert.Positive(t, f)
		}
	}
}

func TestOptimize_RespectsPortfolioVolatility(t *testing.T) {
	cfg := config.Defaults().Portfolio
	cfg.MaxPortfolioVolatility = 0.16
	o := portfolio.NewOptimizer(cfg, nil, discard())

	var opps []domain.Opportunity
	for i := 0; i < 10; i++ {
		opps = append(opps, opp(fmt.Sprintf("M%d", i), 0.5, 0.95, 0.95))
	}
	alloc := o.Optimize(opps, 1000)

	// Four full 0.15 positions use 0.0225 of the 0.0256 variance budget; the
	// fifth is bisected to sqrt(0.0124) and the rest no longer fit.
	require.Len(t, alloc.Fractions, 5)
	assert.InDelta(t, 0.16, alloc.Metrics.Volatility, 1e-6)

	var full, partial int
	for _, f := range alloc.Fractions {
		switch {
		case math.Abs(f-0.15) < 1e-12:
			full++
		default:
			partial++
			assert.InDelta(t, math.Sqrt(0.0124), f, 1e-6)
		}
	}
	assert.Equal(t, 4, full)
	assert.Equal(t, 1, partial)
}

func TestOptimize_TotalFractionNeverExceedsCapital(t *testing.T) {
	o := portfolio.NewOptimizer(config.Defaults().Portfolio, nil, discard())

	var opps []domain.Opportunity
	for i := 0; i < 10; i++ {
		opps = append(opps, opp(fmt.Sprintf("M%d", i), 0.5, 0.95, 0.95))
	}
	alloc := o.Optimize(opps, 1000)

	// Six full positions fill 0.90; the seventh only gets the last 0.10.
	require.Len(t, alloc.Fractions, 7)
	assert.InDelta(t, 1.0, alloc.TotalFraction(), 1e-9)
	assert.LessOrEqual(t, alloc.CapitalUsed(), 1000+1e-9)
	assert.LessOrEqual(t, alloc.Metrics.Volatility, 0.20+1e-9)
}

func TestOptimize_TotalFractionBoundedForRandomBooks(t *testing.T) {
	cfg := config.Defaults().Portfolio
	cfg.MaxPortfolioVolatility = 10
	r := rand.New(rand.NewSource(11))

	for _, maxTotal := range []float64{0, 1, 0.5} {
		cfg.MaxTotalAllocation = maxTotal
		o := portfolio.NewOptimizer(cfg, nil, discard())
		limit := maxTotal
		if limit == 0 {
			limit = 1
		}
		for round := 0; round < 50; round++ {
			var opps []domain.Opportunity
			for i := 0; i < 20; i++ {
				p := 0.05 + r.Float64()*0.9
				opps = append(opps, opp(fmt.Sprintf("M%d", i), p, r.Float64(), 0.5+r.Float64()/2))
			}
			alloc := o.Optimize(opps, 1000)
			assert.LessOrEqual(t, alloc.TotalFraction(), limit+1e-9, "max total %v round %d", maxTotal, round)
			for id, f := range alloc.Fractions {
				assert.GreaterOrEqual(t, f, cfg.MinFraction, "market %s", id)
			}
		}
	}
}

func TestOptimize_RanksByReturnPerVolatility(t *testing.T) {
	cfg := config.Defaults().Portfolio
	cfg.MaxPortfolioVolatility = 0.05
	o := portfolio.NewOptimizer(cfg, nil, discard())

	low := opp("LOW", 0.5, 0.7, 0.7)  // er .14 / vol .5
	high := opp("HIGH", 0.2, 0.6, 0.9) // er .36 / vol .4
	alloc := o.Optimize([]domain.Opportunity{low, high}, 500)

	require.NotEmpty(t, alloc.Opportunities)
	assert.Equal(t, "HIGH", alloc.Opportunities[0].MarketID)
	assert.InDelta(t, 500*alloc.TotalFraction(), alloc.CapitalUsed(), 1e-9)
}

func TestOptimize_SkipsHighlyCorrelated(t *testing.T) {
	cfg := config.Defaults().Portfolio
	cfg.MaxPortfolioVolatility = 10
	model := portfolio.GroupModel{Key: portfolio.SeriesKey, Correlation: 0.9}
	o := portfolio.NewOptimizer(cfg, model, discard())

	alloc := o.Optimize([]domain.Opportunity{
		opp("KXBTC-A", 0.4, 0.8, 0.9),
		opp("KXBTC-B", 0.4, 0.75, 0.9),
		opp("KXFED-A", 0.4, 0.7, 0.9),
	}, 1000)

	assert.Contains(t, alloc.Fractions, "KXBTC-A")
	assert.NotContains(t, alloc.Fractions, "KXBTC-B")
	assert.Contains(t, alloc.Fractions, "KXFED-A")
	assert.Equal(t, "grouped", alloc.CorrelationModel)
}

func TestOptimize_WarnsBelowTargetSharpe(t *testing.T) {
	cfg := config.Defaults().Portfolio
	var buf bytes.Buffer
	o := portfolio.NewOptimizer(cfg, nil, slog.New(slog.NewTextHandler(&buf, nil)))

	// One coin-flip position: Sharpe is far below the 2.0 target.
	o.Optimize([]domain.Opportunity{opp("A", 0.5, 0.6, 0.7)}, 1000)
	assert.Contains(t, buf.String(), "allocation below target sharpe")

	buf.Reset()
	cfg.TargetSharpe = 0
	portfolio.NewOptimizer(cfg, nil, slog.New(slog.NewTextHandler(&buf, nil))).
		Optimize([]domain.Opportunity{opp("A", 0.5, 0.6, 0.7)}, 1000)
	assert.NotContains(t, buf.String(), "target sharpe")
}

func TestModelFor(t *testing.T) {
	cfg := config.Defaults().Portfolio
	cfg.CorrelationModel = "grouped"
	cfg.GroupCorrelation = 0.8
	model := portfolio.ModelFor(cfg)
	assert.Equal(t, "grouped", model.Name())

	m := model.Matrix([]domain.Opportunity{
		opp("KXBTC-A", 0.4, 0.8, 0.9),
		opp("KXBTC-B", 0.4, 0.8, 0.9),
		opp("KXFED-A", 0.4, 0.8, 0.9),
	})
	assert.Equal(t, 0.8, m[0][1])
	assert.Zero(t, m[0][2])

	cfg.CorrelationModel = "independent"
	assert.Equal(t, "independent", portfolio.ModelFor(cfg).Name())
}

// Default config groups same-series markets above max_correlation, so only
// one market per series makes the book.
func TestOptimize_DefaultModelLimitsOnePerSeries(t *testing.T) {
	cfg := config.Defaults().Portfolio
	o := portfolio.NewOptimizer(cfg, portfolio.ModelFor(cfg), discard())

	alloc := o.Optimize([]domain.Opportunity{
		opp("KXNBA-26-LAL", 0.4, 0.8, 0.9),
		opp("KXNBA-26-BOS", 0.4, 0.8, 0.9),
		opp("KXCPI-26-HI", 0.4, 0.8, 0.9),
	}, 1000)

	assert.Len(t, alloc.Fractions, 2)
	assert.Contains(t, alloc.Fractions, "KXCPI-26-HI")
}

func TestKelly(t *testing.T) {
	assert.InDelta(t, 0.5, portfolio.Kelly(0.7, 0.4), 1e-9)
	assert.Zero(t, portfolio.Kelly(0.3, 0.4))
	assert.Zero(t, portfolio.Kelly(0.9, 1))

	no := opp("A", 0.6, 0.2, 1) // buy NO at 0.40 with win 0.80
	assert.InDelta(t, 0.6667*0.25, portfolio.KellyFor(no, 0.25), 1e-3)
}

func TestMetrics(t *testing.T) {
	a := opp("A", 0.5, 0.9, 1) // er .4, vol .5, max loss .5
	b := opp("B", 0.2, 0.5, 1) // er .3, vol .4, max loss .2
	corr := portfolio.IndependentModel{}.Matrix([]domain.Opportunity{a, b})
	m := portfolio.Metrics([]domain.Opportunity{a, b}, []float64{0.1, 0.1}, corr)

	vol := math.Sqrt(0.01*0.25 + 0.01*0.16)
	assert.InDelta(t, 0.07, m.ExpectedReturn, 1e-9)
	assert.InDelta(t, vol, m.Volatility, 1e-9)
	assert.InDelta(t, 0.07/vol, m.SharpeRatio, 1e-9)
	assert.InDelta(t, 0.07, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 0.09/vol, m.DiversificationRatio, 1e-9)
	assert.InDelta(t, math.Max(0, 1.6449*vol-0.07), m.VaR95, 1e-9)
	assert.GreaterOrEqual(t, m.CVaR95, m.VaR95)
}
