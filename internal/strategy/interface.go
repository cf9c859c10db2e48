// Package strategy holds the executors the unified scheduler runs each cycle.
// Every executor receives the same market list and a read-only capital
// sub-pool, and opens positions only through the shared opener.
package strategy

import (
	"context"
	"errors"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
)

// Executor names, also used as scheduler sub-pool keys.
const (
	NameMarketMaking = "market_making"
	NameDirectional  = "directional"
	NameQuickFlip    = "quick_flip"
	NameArbitrage    = "arbitrage"
	NameLegacy       = "legacy"
)

// Executor runs one strategy over its capital sub-pool for one cycle.
type Executor interface {
	Name() string
	Execute(ctx context.Context, markets []domain.Market, capital float64) (Result, error)
}

// Opener opens positions through the at-most-one-open-position path.
type Opener interface {
	Open(ctx context.Context, req executor.OpenRequest) (executor.Opened, error)
}

// Result summarises one executor run.
type Result struct {
	Strategy        string
	OrdersPlaced    int
	PositionsOpened int
	CapitalUsed     float64
	ExpectedProfit  float64

	// Allocation is set by the directional executor.
	Allocation *domain.Allocation
}

// Add folds other into r.
func (r *Result) Add(other Result) {
	r.OrdersPlaced += other.OrdersPlaced
	r.PositionsOpened += other.PositionsOpened
	r.CapitalUsed += other.CapitalUsed
	r.ExpectedProfit += other.ExpectedProfit
}

// open wraps Opener.Open and treats ErrPositionExists as a skip.
func open(ctx context.Context, o Opener, req executor.OpenRequest) (executor.Opened, bool, error) {
	out, err := o.Open(ctx, req)
	if errors.Is(err, executor.ErrPositionExists) {
		return executor.Opened{}, false, nil
	}
	if err != nil {
		return executor.Opened{}, false, err
	}
	return out, true, nil
}

func cents(c int) float64 { return float64(c) / 100 }

func toCents(p float64) int { return int(p*100 + 0.5) }
