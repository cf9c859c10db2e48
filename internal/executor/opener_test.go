package executor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
	"github.com/alanyoungcy/kalshibot/internal/store/sqlite"
)

// --- mocks ---

type fakeExchange struct {
	mu       sync.Mutex
	orders   []domain.OrderRequest
	failWhen func(domain.OrderRequest) error
}

func (f *fakeExchange) Balance(context.Context) (float64, error) { return 1000, nil }
func (f *fakeExchange) Positions(context.Context) ([]domain.ExchangePosition, error) {
	return nil, nil
}
func (f *fakeExchange) Markets(context.Context, domain.MarketStatus) ([]domain.Market, error) {
	return nil, nil
}
func (f *fakeExchange) Market(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (f *fakeExchange) CancelOrder(context.Context, string) error { return nil }
func (f *fakeExchange) Orders(context.Context) ([]domain.Order, error) { return nil, nil }
func (f *fakeExchange) Live() bool { return false }

func (f *fakeExchange) PlaceOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWhen != nil {
		if err := f.failWhen(req); err != nil {
			return "", err
		}
	}
	f.orders = append(f.orders, req)
	return "ord-" + req.MarketID + "-" + string(req.Action), nil
}

type memBus struct {
	mu        sync.Mutex
	published [][]byte
	streamed  [][]byte
}

func (b *memBus) Publish(_ context.Context, _ string, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, p)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(_ context.Context, _ string, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed = append(b.streamed, p)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memBus) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, p := range b.published {
		var ev domain.LifecycleEvent
		_ = json.Unmarshal(p, &ev)
		out = append(out, ev.Kind)
	}
	return out
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(f float64) *float64 { return &f }

// --- tests ---

func TestOpen_ReservesAndPlaces(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	ex := &fakeExchange{}
	bus := &memBus{}
	o := executor.NewOpener(store, ex, executor.NewEvents(bus, nil, discard()), discard())

	out, err := o.Open(ctx, executor.OpenRequest{
		MarketID: "A", Side: domain.SideYes, Quantity: 5, EntryPrice: 0.40,
		Strategy: domain.StrategyImmediateTrade, Confidence: 0.8,
	})
	require.NoError(t, err)
	assert.Positive(t, out.Position.ID)
	assert.Equal(t, "ord-A-buy", out.OrderID)
	assert.Empty(t, out.ExitOrderID)

	open, err := store.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.StrategyImmediateTrade, open[0].Strategy)

	require.Len(t, ex.orders, 1)
	assert.Equal(t, domain.OrderTypeMarket, ex.orders[0].Type)
	assert.NotEmpty(t, ex.orders[0].ClientOrderID)
	assert.Equal(t, []string{domain.EventPositionOpened}, bus.kinds())
	assert.Len(t, bus.streamed, 1)
}

func TestOpen_SecondOpenForMarketIsRejected(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	o := executor.NewOpener(newStore(t), ex, nil, discard())
	req := executor.OpenRequest{MarketID: "A", Side: domain.SideYes, Quantity: 1, EntryPrice: 0.5}

	_, err := o.Open(ctx, req)
	require.NoError(t, err)
	_, err = o.Open(ctx, req)
	assert.ErrorIs(t, err, executor.ErrPositionExists)
	assert.Len(t, ex.orders, 1)
}

func TestOpen_FailedOrderReleasesReservation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	ex := &fakeExchange{failWhen: func(domain.OrderRequest) error { return domain.ErrRateLimited }}
	bus := &memBus{}
	o := executor.NewOpener(store, ex, executor.NewEvents(bus, nil, discard()), discard())

	_, err := o.Open(ctx, executor.OpenRequest{MarketID: "A", Side: domain.SideNo, Quantity: 2, EntryPrice: 0.3})
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	open, err := store.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, []string{domain.EventError}, bus.kinds())

	ex.failWhen = nil
	_, err = o.Open(ctx, executor.OpenRequest{MarketID: "A", Side: domain.SideNo, Quantity: 2, EntryPrice: 0.3})
	assert.NoError(t, err)
}

func TestOpen_RestsExitOrder(t *testing.T) {
	ex := &fakeExchange{}
	o := executor.NewOpener(newStore(t), ex, nil, discard())

	out, err := o.Open(context.Background(), executor.OpenRequest{
		MarketID: "A", Side: domain.SideYes, Quantity: 10, EntryPrice: 0.41,
		OrderType: domain.OrderTypeLimit, LimitPrice: ptr(0.41), ExitPrice: ptr(0.47),
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-A-sell", out.ExitOrderID)
	require.Len(t, ex.orders, 2)
	assert.Equal(t, domain.OrderActionSell, ex.orders[1].Action)
	assert.InDelta(t, 0.47, *ex.orders[1].LimitPrice, 1e-9)
}

func TestOpen_ExitFailureKeepsPosition(t *testing.T) {
	ex := &fakeExchange{failWhen: func(r domain.OrderRequest) error {
		if r.Action == domain.OrderActionSell {
			return errors.New("rejected")
		}
		return nil
	}}
	store := newStore(t)
	o := executor.NewOpener(store, ex, nil, discard())

	out, err := o.Open(context.Background(), executor.OpenRequest{
		MarketID: "A", Side: domain.SideYes, Quantity: 1, EntryPrice: 0.1, ExitPrice: ptr(0.2),
	})
	require.NoError(t, err)
	assert.Empty(t, out.ExitOrderID)
	open, _ := store.OpenPositions(context.Background())
	assert.Len(t, open, 1)
}

func TestOpen_ValidatesInput(t *testing.T) {
	o := executor.NewOpener(newStore(t), &fakeExchange{}, nil, discard())
	_, err := o.Open(context.Background(), executor.OpenRequest{MarketID: "A", Quantity: 0, EntryPrice: 0.5})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	_, err = o.Open(context.Background(), executor.OpenRequest{MarketID: "A", Quantity: 1, EntryPrice: 1.2})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestDedup_SuppressesWithinTTL(t *testing.T) {
	d := executor.NewDedup(50 * time.Millisecond)
	assert.False(t, d.IsDuplicate("k"))
	assert.True(t, d.IsDuplicate("k"))
	time.Sleep(60 * time.Millisecond)
	assert.False(t, d.IsDuplicate("k"))
	d.Cleanup()
	assert.Equal(t, 1, d.Len())
}
