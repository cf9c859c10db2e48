package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/store/sqlite"
)

func openMem(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func position(market string) domain.Position {
	return domain.Position{
		MarketID:   market,
		Side:       domain.SideYes,
		Quantity:   5,
		EntryPrice: 0.40,
		Strategy:   domain.StrategyPortfolio,
		Confidence: 0.8,
		Rationale:  "edge",
	}
}

func TestAddPosition_RejectsSecondOpenForSameMarket(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)

	id, ok, err := s.AddPosition(ctx, position("KXTEST-A"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Positive(t, id)

	id2, ok, err := s.AddPosition(ctx, position("KXTEST-A"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, id2)

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// A different market is unaffected.
	_, ok, err = s.AddPosition(ctx, position("KXTEST-B"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddPosition_AllowedAgainAfterClose(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)

	id, ok, err := s.AddPosition(ctx, position("KXTEST-A"))
	require.NoError(t, err)
	require.True(t, ok)

	now := time.Now().UTC()
	require.NoError(t, s.ClosePosition(ctx, id, domain.TradeLog{
		PositionID: id,
		MarketID:   "KXTEST-A",
		Side:       domain.SideYes,
		Quantity:   5,
		EntryPrice: 0.40,
		ExitPrice:  1.0,
		PnL:        3.0,
		EntryAt:    now.Add(-time.Hour),
		ExitAt:     now,
		ExitReason: domain.ExitResolution,
	}))

	newID, ok, err := s.AddPosition(ctx, position("KXTEST-A"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, id, newID)

	logs, err := s.AllTradeLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ExitResolution, logs[0].ExitReason)
	assert.InDelta(t, 3.0, logs[0].PnL, 1e-9)
}

func TestAddPosition_ConcurrentSameMarket(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.AddPosition(ctx, position("KXRACE"))
			if err == nil && ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestClosePosition_UnknownID(t *testing.T) {
	err := openMem(t).ClosePosition(context.Background(), 999, domain.TradeLog{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelPosition(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)

	id, ok, err := s.AddPosition(ctx, position("KXTEST-A"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.CancelPosition(ctx, id))
	_, err = s.OpenPositionByMarket(ctx, "KXTEST-A")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.CancelPosition(ctx, id), domain.ErrNotFound)
}

func TestEligibleMarkets_Filters(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)
	now := time.Now().UTC()

	require.NoError(t, s.UpsertMarkets(ctx, []domain.Market{
		{ID: "BIG", Volume: 5000, ExpiresAt: now.Add(48 * time.Hour), Status: domain.MarketStatusOpen},
		{ID: "SMALL", Volume: 50, ExpiresAt: now.Add(48 * time.Hour), Status: domain.MarketStatusOpen},
		{ID: "FAR", Volume: 9000, ExpiresAt: now.Add(400 * 24 * time.Hour), Status: domain.MarketStatusOpen},
		{ID: "EXPIRED", Volume: 9000, ExpiresAt: now.Add(-time.Hour), Status: domain.MarketStatusOpen},
		{ID: "CLOSED", Volume: 9000, ExpiresAt: now.Add(48 * time.Hour), Status: domain.MarketStatusClosed},
		{ID: "HELD", Volume: 7000, ExpiresAt: now.Add(48 * time.Hour), Status: domain.MarketStatusOpen},
	}))
	_, ok, err := s.AddPosition(ctx, position("HELD"))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.EligibleMarkets(ctx, domain.EligibilityFilter{VolumeMin: 200, MaxDaysToExpiry: 365})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BIG", got[0].ID)
}

func TestUpsertMarkets_Supersedes(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)
	exp := time.Now().Add(24 * time.Hour)

	require.NoError(t, s.UpsertMarkets(ctx, []domain.Market{
		{ID: "M", Title: "old", YesPrice: 0.3, Volume: 1000, ExpiresAt: exp, Status: domain.MarketStatusOpen},
	}))
	require.NoError(t, s.UpsertMarkets(ctx, []domain.Market{
		{ID: "M", Title: "new", YesPrice: 0.6, Volume: 1000, ExpiresAt: exp, Status: domain.MarketStatusOpen},
	}))

	got, err := s.EligibleMarkets(ctx, domain.EligibilityFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Title)
	assert.InDelta(t, 0.6, got[0].YesPrice, 1e-9)
}

func TestUsage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)

	_, err := s.LoadUsage(ctx, "2026-03-01")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SaveUsage(ctx, domain.DailyUsage{Date: "2026-03-01", TotalCost: 12.5, RequestCount: 3, DailyLimit: 50}))
	require.NoError(t, s.SaveUsage(ctx, domain.DailyUsage{Date: "2026-03-02", TotalCost: 55, RequestCount: 9, DailyLimit: 50, Exhausted: true}))

	u, err := s.LoadUsage(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.True(t, u.Exhausted)
	assert.Equal(t, 9, u.RequestCount)

	hist, err := s.UsageHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2026-03-02", hist[0].Date)
}

func TestTradeLogsBefore(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, market := range []string{"A", "B"} {
		id, ok, err := s.AddPosition(ctx, position(market))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.ClosePosition(ctx, id, domain.TradeLog{
			MarketID:   market,
			Side:       domain.SideYes,
			Quantity:   1,
			EntryAt:    base,
			ExitAt:     base.Add(time.Duration(i+1) * 24 * time.Hour),
			ExitReason: domain.ExitOther,
		}))
	}

	old, err := s.TradeLogsBefore(ctx, base.Add(36*time.Hour))
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "A", old[0].MarketID)
}
