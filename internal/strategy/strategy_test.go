package strategy_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
)

// --- mocks ---

type recordingOpener struct {
	mu     sync.Mutex
	reqs   []executor.OpenRequest
	exists map[string]bool
}

func (r *recordingOpener) Open(_ context.Context, req executor.OpenRequest) (executor.Opened, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exists[req.MarketID] {
		return executor.Opened{}, executor.ErrPositionExists
	}
	r.reqs = append(r.reqs, req)
	out := executor.Opened{OrderID: "buy-" + req.MarketID}
	if req.ExitPrice != nil {
		out.ExitOrderID = "sell-" + req.MarketID
	}
	return out, nil
}

type mapOracle struct {
	mu        sync.Mutex
	decisions map[string]domain.Decision
	calls     int
}

func (o *mapOracle) Decide(_ context.Context, m domain.Market) (domain.Decision, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if d, ok := o.decisions[m.ID]; ok {
		return d, nil
	}
	return domain.SkipDecision("none"), nil
}

type fixedSource struct{ opps []domain.Opportunity }

func (s fixedSource) Build(context.Context, []domain.Market, float64) ([]domain.Opportunity, error) {
	return s.opps, nil
}

type fixedAllocator struct{ alloc domain.Allocation }

func (a fixedAllocator) Optimize([]domain.Opportunity, float64) domain.Allocation { return a.alloc }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// --- tests ---

func TestMarketMaker_PlanSelectsWideSpreads(t *testing.T) {
	mm := strategy.NewMarketMaker(config.Defaults().MarketMaker, &recordingOpener{}, discard())
	markets := []domain.Market{
		{ID: "wide", YesBid: 0.30, YesAsk: 0.40, Volume: 5000},
		{ID: "narrow", YesBid: 0.49, YesAsk: 0.50, Volume: 5000},
		{ID: "quiet", YesBid: 0.20, YesAsk: 0.40, Volume: 10},
		{ID: "mid", YesBid: 0.50, YesAsk: 0.55, Volume: 5000},
	}

	quotes := mm.Plan(markets, 250)
	require.Len(t, quotes, 2)
	assert.Equal(t, "wide", quotes[0].Market.ID)
	assert.Equal(t, 31, quotes[0].BuyCents)
	assert.Equal(t, 39, quotes[0].SellCents)
	assert.Equal(t, 100, quotes[0].Quantity) // 100/0.31 = 322, capped at 100
	assert.InDelta(t, 8.0, quotes[0].ExpectedProfit, 1e-9)
	assert.Equal(t, "mid", quotes[1].Market.ID)

	assert.Empty(t, mm.Plan(markets, 99), "less than one market's worth of capital")
}

func TestMarketMaker_ExecuteRestsExit(t *testing.T) {
	op := &recordingOpener{}
	mm := strategy.NewMarketMaker(config.Defaults().MarketMaker, op, discard())

	res, err := mm.Execute(context.Background(), []domain.Market{
		{ID: "wide", YesBid: 0.30, YesAsk: 0.40, Volume: 5000},
	}, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, res.OrdersPlaced)
	assert.Equal(t, 1, res.PositionsOpened)
	require.Len(t, op.reqs, 1)
	assert.Equal(t, domain.OrderTypeLimit, op.reqs[0].OrderType)
	assert.InDelta(t, 0.31, *op.reqs[0].LimitPrice, 1e-9)
	assert.InDelta(t, 0.39, *op.reqs[0].ExitPrice, 1e-9)
	assert.Equal(t, domain.StrategyMarketMaking, op.reqs[0].Strategy)
}

func TestQuickFlip_Target(t *testing.T) {
	assert.Equal(t, 30, strategy.Target(10, 30, 95))
	assert.Equal(t, 95, strategy.Target(10, 99, 95))
	assert.Equal(t, 11, strategy.Target(10, 5, 95))
}

func TestQuickFlip_PlanAndExecute(t *testing.T) {
	cfg := config.Defaults().QuickFlip
	or := &mapOracle{decisions: map[string]domain.Decision{
		"cheap":   {Action: domain.ActionBuy, Side: domain.SideYes, Confidence: 0.7, LimitPrice: 12},
		"thin":    {Action: domain.ActionBuy, Side: domain.SideYes, Confidence: 0.7, LimitPrice: 7},
		"unsure":  {Action: domain.ActionBuy, Side: domain.SideYes, Confidence: 0.5, LimitPrice: 40},
		"nocheap": {Action: domain.ActionBuy, Side: domain.SideNo, Confidence: 0.8, LimitPrice: 20},
	}}
	op := &recordingOpener{}
	qf := strategy.NewQuickFlip(cfg, or, op, discard())
	markets := []domain.Market{
		{ID: "cheap", YesAsk: 0.05, NoAsk: 0.96},
		{ID: "thin", YesAsk: 0.05, NoAsk: 0.96},
		{ID: "unsure", YesAsk: 0.05, NoAsk: 0.96},
		{ID: "nocheap", YesAsk: 0.90, NoAsk: 0.08},
		{ID: "pricey", YesAsk: 0.50, NoAsk: 0.51},
	}

	flips, err := qf.Plan(context.Background(), markets, 1000)
	require.NoError(t, err)
	assert.Equal(t, 4, or.calls, "markets without a cheap side never reach the oracle")
	require.Len(t, flips, 2)
	// nocheap: 100 contracts (50/0.08=625 capped) x 12c = 12.00 * 0.8
	// cheap:   100 contracts x 7c = 7.00 * 0.7
	assert.Equal(t, "nocheap", flips[0].MarketID)
	assert.Equal(t, domain.SideNo, flips[0].Side)
	assert.Equal(t, 20, flips[0].TargetCents)
	assert.Equal(t, "cheap", flips[1].MarketID)
	assert.Equal(t, 100, flips[1].Quantity)

	limited, err := qf.Plan(context.Background(), markets, 60)
	require.NoError(t, err)
	assert.Len(t, limited, 1, "capital covers one trade")

	res, err := qf.Execute(context.Background(), markets, 1000)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PositionsOpened)
	assert.Equal(t, 4, res.OrdersPlaced)
	assert.InDelta(t, 0.20, *op.reqs[0].ExitPrice, 1e-9)
}

func TestDirectional_OpensAllocatedMarkets(t *testing.T) {
	opps := []domain.Opportunity{
		{MarketID: "A", MarketProb: 0.40, Side: domain.SideYes, Confidence: 0.8, ExpectedReturn: 0.2, Passed: true},
		{MarketID: "B", MarketProb: 0.70, Side: domain.SideNo, Confidence: 0.8, ExpectedReturn: 0.2, Passed: true},
	}
	alloc := domain.EmptyAllocation(1000)
	alloc.Fractions["A"] = 0.10
	alloc.Fractions["B"] = 0.05
	alloc.Opportunities = opps
	op := &recordingOpener{exists: map[string]bool{"B": true}}

	d := strategy.NewDirectional(fixedSource{opps: opps}, fixedAllocator{alloc: alloc}, op, discard())
	res, err := d.Execute(context.Background(), nil, 1000)
	require.NoError(t, err)

	require.NotNil(t, res.Allocation)
	assert.Equal(t, 1, res.PositionsOpened)
	require.Len(t, op.reqs, 1)
	assert.Equal(t, "A", op.reqs[0].MarketID)
	assert.Equal(t, 250, op.reqs[0].Quantity) // 100 / 0.40
	assert.Equal(t, domain.StrategyPortfolio, op.reqs[0].Strategy)
	assert.InDelta(t, 100, res.CapitalUsed, 1e-9)
}

func TestDirectional_EmptyAllocationOpensNothing(t *testing.T) {
	op := &recordingOpener{}
	d := strategy.NewDirectional(fixedSource{}, fixedAllocator{alloc: domain.EmptyAllocation(10)}, op, discard())
	res, err := d.Execute(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Zero(t, res.PositionsOpened)
	assert.Empty(t, op.reqs)
}

func TestLegacy_BuysConfidentDecisions(t *testing.T) {
	or := &mapOracle{decisions: map[string]domain.Decision{
		"big":  {Action: domain.ActionBuy, Side: domain.SideYes, Confidence: 0.65, LimitPrice: 42},
		"meh":  {Action: domain.ActionBuy, Side: domain.SideYes, Confidence: 0.55, LimitPrice: 42},
		"tiny": {Action: domain.ActionBuy, Side: domain.SideYes, Confidence: 0.99, LimitPrice: 42},
	}}
	op := &recordingOpener{}
	l := strategy.NewLegacy(config.Defaults().Legacy, or, op, discard())

	res, err := l.Execute(context.Background(), []domain.Market{
		{ID: "big", Volume: 50000},
		{ID: "meh", Volume: 40000},
		{ID: "tiny", Volume: 100},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, or.calls)
	assert.Equal(t, 1, res.PositionsOpened)
	require.Len(t, op.reqs, 1)
	assert.Equal(t, 1, op.reqs[0].Quantity)
	assert.InDelta(t, 0.42, op.reqs[0].EntryPrice, 1e-9)
}

func TestArbitrage_NotImplemented(t *testing.T) {
	res, err := strategy.NewArbitrage(discard()).Execute(context.Background(), nil, 100)
	assert.ErrorIs(t, err, domain.ErrNotImplemented)
	assert.Equal(t, strategy.Result{Strategy: strategy.NameArbitrage}, res)
}

func TestRegistry(t *testing.T) {
	r := strategy.NewRegistry()
	r.Register(strategy.NewArbitrage(discard()))
	r.Register(strategy.NewLegacy(config.Defaults().Legacy, &mapOracle{}, &recordingOpener{}, discard()))

	assert.Equal(t, []string{strategy.NameArbitrage, strategy.NameLegacy}, r.List())
	_, err := r.Get("nope")
	assert.Error(t, err)
}
