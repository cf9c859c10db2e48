package scalper_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
	"github.com/alanyoungcy/kalshibot/internal/scalper"
	"github.com/alanyoungcy/kalshibot/internal/store/sqlite"
)

// --- mocks ---

type fakeExchange struct {
	mu      sync.Mutex
	markets []domain.Market
	placed  []domain.OrderRequest
}

func (f *fakeExchange) Balance(context.Context) (float64, error) { return 0, nil }
func (f *fakeExchange) Positions(context.Context) ([]domain.ExchangePosition, error) {
	return nil, nil
}
func (f *fakeExchange) Markets(context.Context, domain.MarketStatus) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Market(nil), f.markets...), nil
}
func (f *fakeExchange) Market(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (f *fakeExchange) PlaceOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	return "ord-" + req.MarketID, nil
}
func (f *fakeExchange) CancelOrder(context.Context, string) error { return nil }
func (f *fakeExchange) Orders(context.Context) ([]domain.Order, error) { return nil, nil }
func (f *fakeExchange) Live() bool { return false }

func (f *fakeExchange) setMarkets(m ...domain.Market) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = m
}

func (f *fakeExchange) orders() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRequest(nil), f.placed...)
}

type flakySource struct {
	calls atomic.Int32
	after func()
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Stream(_ context.Context, emit func(domain.LiveEvent)) error {
	n := f.calls.Add(1)
	if n == 1 {
		return errors.New("connection refused")
	}
	emit(domain.LiveEvent{ID: "g1"})
	f.after()
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var chiefsBills = domain.Market{
	ID:     "KXNFL-KCBUF",
	Title:  "Will Chiefs beat Bills in the match?",
	YesAsk: 0.56,
	NoAsk:  0.46,
}

func game(id, home string, hs int, away string, as, period int) domain.LiveEvent {
	return domain.LiveEvent{ID: id, HomeTeam: home, HomeScore: hs, AwayTeam: away, AwayScore: as, Period: period}
}

func route() scalper.Route {
	return scalper.Route{Name: "sports_play_by_play", Trigger: scalper.TriggerLateLeadChange, Enabled: true}
}

// --- tests ---

func TestExecutor_IgnoresGamesNotInTitle(t *testing.T) {
	ex := &fakeExchange{}
	opener := executor.NewOpener(newStore(t), ex, nil, discard())
	e := scalper.NewExecutor(chiefsBills, route(), scalper.NewLateLeadChange(4), ex, opener, nil, 1, discard())
	ctx := context.Background()

	for _, ev := range []domain.LiveEvent{
		game("g9", "Lakers", 80, "Celtics", 70, 3),
		game("g9", "Lakers", 90, "Celtics", 95, 4),
		game("g9", "Lakers", 99, "Celtics", 95, 4),
	} {
		id, err := e.Handle(ctx, ev)
		require.NoError(t, err)
		assert.Empty(t, id)
	}
	assert.Empty(t, ex.orders())
}

func TestExecutor_LateLeadChangeOpensScalperPosition(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	store := newStore(t)
	e := scalper.NewExecutor(chiefsBills, route(), scalper.NewLateLeadChange(4), ex,
		executor.NewOpener(store, ex, nil, discard()), executor.NewDedup(time.Hour), 1, discard())

	id, err := e.Handle(ctx, game("g1", "Bills", 10, "Chiefs", 14, 3))
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = e.Handle(ctx, game("g1", "Bills", 17, "Chiefs", 14, 4))
	require.NoError(t, err)
	assert.Equal(t, "ord-KXNFL-KCBUF", id)

	orders := ex.orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.SideNo, orders[0].Side, "Bills leading backs NO on a Chiefs market")
	assert.Equal(t, 1, orders[0].Quantity)
	assert.Equal(t, domain.OrderTypeMarket, orders[0].Type)
	assert.Equal(t, domain.OrderActionBuy, orders[0].Action)
	assert.Len(t, orders[0].ClientOrderID, 36)

	pos, err := store.OpenPositionByMarket(ctx, chiefsBills.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyScalper, pos.Strategy)
	assert.Equal(t, domain.SideNo, pos.Side)
	assert.InDelta(t, 0.46, pos.EntryPrice, 1e-9)
	assert.Equal(t, 1, pos.Quantity)
}

func TestExecutor_SkipsTriggerWhileAlreadyIn(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	store := newStore(t)
	e := scalper.NewExecutor(chiefsBills, route(), scalper.NewLateLeadChange(4), ex,
		executor.NewOpener(store, ex, nil, discard()), executor.NewDedup(time.Hour), 1, discard())

	for _, ev := range []domain.LiveEvent{
		game("g1", "Bills", 10, "Chiefs", 14, 3),
		game("g1", "Bills", 17, "Chiefs", 14, 4),
	} {
		_, err := e.Handle(ctx, ev)
		require.NoError(t, err)
	}

	// Chiefs retake the lead: the trigger fires again but the market is held.
	id, err := e.Handle(ctx, game("g1", "Bills", 17, "Chiefs", 21, 4))
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Len(t, ex.orders(), 1)

	open, err := store.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestExecutor_UnpricedMarketIsAnError(t *testing.T) {
	ex := &fakeExchange{}
	unpriced := domain.Market{ID: chiefsBills.ID, Title: chiefsBills.Title}
	e := scalper.NewExecutor(unpriced, route(), scalper.NewLateLeadChange(4), ex,
		executor.NewOpener(newStore(t), ex, nil, discard()), nil, 1, discard())
	ctx := context.Background()

	_, err := e.Handle(ctx, game("g1", "Bills", 10, "Chiefs", 14, 3))
	require.NoError(t, err)
	_, err = e.Handle(ctx, game("g1", "Bills", 17, "Chiefs", 14, 4))
	require.Error(t, err)
	assert.Empty(t, ex.orders())
}

func TestLateLeadChange(t *testing.T) {
	trig := scalper.NewLateLeadChange(4)

	_, fired := trig.Evaluate(game("g", "A", 1, "B", 0, 1))
	assert.False(t, fired, "first leader is not a change")
	_, fired = trig.Evaluate(game("g", "A", 1, "B", 2, 2))
	assert.False(t, fired, "early lead change")
	_, fired = trig.Evaluate(game("g", "A", 2, "B", 2, 4))
	assert.False(t, fired, "tie")
	sig, fired := trig.Evaluate(game("g", "A", 3, "B", 2, 4))
	assert.True(t, fired)
	assert.Equal(t, "A", sig.Leader)

	_, fired = trig.Evaluate(game("other", "C", 0, "D", 1, 4))
	assert.False(t, fired, "games are tracked separately")
}

func TestRelevantAndSide(t *testing.T) {
	ev := game("g", "Bills", 0, "Chiefs", 0, 1)
	assert.True(t, scalper.Relevant(ev, "chiefs vs BILLS match"))
	assert.False(t, scalper.Relevant(ev, "Chiefs win the division?"))
	assert.False(t, scalper.Relevant(domain.LiveEvent{}, "anything"))

	assert.Equal(t, domain.SideYes, scalper.SideFor(ev, chiefsBills.Title, "Chiefs"))
	assert.Equal(t, domain.SideNo, scalper.SideFor(ev, chiefsBills.Title, "Bills"))
}

func TestNewRouter_Validation(t *testing.T) {
	_, err := scalper.NewRouter(config.Defaults().Scalper.Routes)
	require.NoError(t, err)

	_, err = scalper.NewRouter([]config.RouteConfig{
		{Name: "a", Keywords: []string{"x"}, Trigger: scalper.TriggerLateLeadChange, Enabled: true},
		{Name: "a", Keywords: []string{"y"}},
		{Name: "b", Keywords: []string{"z"}, Trigger: "moon_phase", Enabled: true},
		{Name: "c", Keywords: []string{" "}},
		{Keywords: []string{"w"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a": duplicate name`)
	assert.Contains(t, err.Error(), `unknown trigger "moon_phase"`)
	assert.Contains(t, err.Error(), `"c": no keywords`)
	assert.Contains(t, err.Error(), "missing name")
}

func TestRouter_Match(t *testing.T) {
	r, err := scalper.NewRouter(config.Defaults().Scalper.Routes)
	require.NoError(t, err)

	got, ok := r.Match("Chiefs vs Bills: Who Wins By Over 7?")
	require.True(t, ok)
	assert.Equal(t, "sports_play_by_play", got.Name)

	got, ok = r.Match("Costco earnings call mentions tariffs?")
	require.True(t, ok)
	assert.False(t, got.Enabled)

	_, ok = r.Match("Fed cuts rates in December?")
	assert.False(t, ok)
}

func TestBroadcaster_FanOutInOrder(t *testing.T) {
	b := scalper.NewBroadcaster(2, discard())
	a, cancelA := b.Subscribe("a")
	c, cancelC := b.Subscribe("c")
	defer cancelC()

	b.Publish(domain.LiveEvent{ID: "1"})
	b.Publish(domain.LiveEvent{ID: "2"})
	b.Publish(domain.LiveEvent{ID: "3"})

	assert.Equal(t, "1", (<-a).ID)
	assert.Equal(t, "2", (<-a).ID)
	assert.Equal(t, "1", (<-c).ID)
	assert.Equal(t, "2", (<-c).ID)
	assert.Equal(t, int64(2), b.Dropped())

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())
}

func TestStreamer_ReconnectsAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := scalper.NewBroadcaster(4, discard())
	mailbox, unsub := b.Subscribe("m")
	defer unsub()

	src := &flakySource{after: cancel}
	done := make(chan struct{})
	go func() {
		scalper.NewStreamer(src, b, time.Millisecond, discard()).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("streamer did not stop")
	}
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, "g1", (<-mailbox).ID)
}

func TestScalper_ScanStartsStopsAndReaps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := &fakeExchange{}
	ex.setMarkets(
		chiefsBills,
		domain.Market{ID: "COST", Title: "Costco earnings call mentions tariffs?"},
		domain.Market{ID: "FED", Title: "Fed cuts rates in December?"},
	)
	s, err := scalper.New(config.Defaults().Scalper, ex, executor.NewOpener(newStore(t), ex, nil, discard()), nil, discard())
	require.NoError(t, err)

	res, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Open)
	assert.Equal(t, 1, res.Started)
	assert.Equal(t, 1, res.Gaps)
	assert.Equal(t, 1, res.Active)

	res, err = s.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Started, "running executors are not restarted")

	s.Broadcaster().Publish(game("g1", "Bills", 10, "Chiefs", 14, 3))
	s.Broadcaster().Publish(game("g1", "Bills", 17, "Chiefs", 14, 4))
	require.Eventually(t, func() bool { return len(ex.orders()) == 1 }, 5*time.Second, 5*time.Millisecond)

	ex.setMarkets()
	res, err = s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stopped)

	require.Eventually(t, func() bool {
		r, err := s.Scan(ctx)
		return err == nil && r.Active == 0
	}, 5*time.Second, 5*time.Millisecond)
	assert.Zero(t, s.Broadcaster().Subscribers())
}

func TestNew_RejectsBadRoutingTable(t *testing.T) {
	cfg := config.Defaults().Scalper
	cfg.Routes = append(cfg.Routes, config.RouteConfig{Name: "sports_play_by_play", Keywords: []string{"x"}})
	_, err := scalper.New(cfg, &fakeExchange{}, nil, nil, discard())
	assert.Error(t, err)
}
