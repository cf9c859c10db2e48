package oracle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/budget"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/oracle"
	"github.com/alanyoungcy/kalshibot/internal/platform/xai"
)

// --- mocks ---

type scriptedModel struct {
	mu      sync.Mutex
	calls   int
	replies []reply
}

type reply struct {
	content string
	tokens  int
	err     error
}

func (m *scriptedModel) Complete(_ context.Context, _, _ string) (xai.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	r := m.replies[i]
	if r.err != nil {
		return xai.Completion{}, r.err
	}
	return xai.Completion{Content: r.content, TotalTokens: r.tokens}, nil
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type memUsage struct {
	mu   sync.Mutex
	rows map[string]domain.DailyUsage
}

func (s *memUsage) LoadUsage(_ context.Context, date string) (domain.DailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[date]
	if !ok {
		return domain.DailyUsage{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *memUsage) SaveUsage(_ context.Context, u domain.DailyUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = map[string]domain.DailyUsage{}
	}
	s.rows[u.Date] = u
	return nil
}

func (s *memUsage) UsageHistory(context.Context, int) ([]domain.DailyUsage, error) { return nil, nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newLedger(t *testing.T, limit float64) *budget.Ledger {
	t.Helper()
	l, err := budget.New(context.Background(), &memUsage{}, limit, 10.0, discard())
	require.NoError(t, err)
	return l
}

func noSleep(context.Context, time.Duration) error { return nil }

var market = domain.Market{ID: "KXTEST-1", Title: "Will it rain?", YesPrice: 0.40, Volume: 5000}

// --- tests ---

func TestDecide_ParsesModelReply(t *testing.T) {
	model := &scriptedModel{replies: []reply{{
		content: "Sure. {\"action\":\"buy\",\"side\":\"no\",\"confidence\":0.8,\"limit_price\":35,\"reasoning\":\"x\"}",
		tokens:  1000,
	}}}
	ledger := newLedger(t, 50)
	o := oracle.New(model, ledger, discard())

	d, err := o.Decide(context.Background(), market)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBuy, d.Action)
	assert.Equal(t, domain.SideNo, d.Side)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
	assert.Equal(t, 35, d.LimitPrice)
	assert.Equal(t, 1, ledger.Usage().RequestCount)
	assert.InDelta(t, 0.01, ledger.Usage().TotalCost, 1e-12)
}

func TestDecide_ExhaustedBudgetNeverCallsModel(t *testing.T) {
	ledger := newLedger(t, 50)
	ledger.Charge(context.Background(), 30)
	ledger.Charge(context.Background(), 25)
	require.True(t, ledger.Exhausted(context.Background()))

	model := &scriptedModel{replies: []reply{{content: `{"action":"BUY"}`, tokens: 10}}}
	o := oracle.New(model, ledger, discard())

	d, err := o.Decide(context.Background(), market)
	require.NoError(t, err)
	assert.True(t, d.IsSkip())
	assert.Zero(t, model.Calls())
}

func TestDecide_RetriesTransientFailureOnce(t *testing.T) {
	model := &scriptedModel{replies: []reply{
		{err: errors.New("connection reset")},
		{content: `{"action":"SKIP"}`, tokens: 10},
	}}
	var slept []time.Duration
	o := oracle.New(model, newLedger(t, 50), discard(),
		oracle.WithRetry(2, time.Second),
		oracle.WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)

	d, err := o.Decide(context.Background(), market)
	require.NoError(t, err)
	assert.True(t, d.IsSkip())
	assert.Equal(t, 2, model.Calls())
	assert.Equal(t, []time.Duration{time.Second}, slept)
}

func TestDecide_GivesUpAfterMaxAttempts(t *testing.T) {
	model := &scriptedModel{replies: []reply{{err: errors.New("boom")}}}
	ledger := newLedger(t, 50)
	o := oracle.New(model, ledger, discard(), oracle.WithSleep(noSleep))

	d, err := o.Decide(context.Background(), market)
	require.NoError(t, err)
	assert.True(t, d.IsSkip())
	assert.Equal(t, 2, model.Calls())
	assert.Zero(t, ledger.Usage().RequestCount)
}

func TestDecide_NoRetryOnRateLimit(t *testing.T) {
	for _, sentinel := range []error{domain.ErrRateLimited, domain.ErrResourceExhausted} {
		model := &scriptedModel{replies: []reply{{err: sentinel}}}
		o := oracle.New(model, newLedger(t, 50), discard(), oracle.WithSleep(noSleep))

		d, err := o.Decide(context.Background(), market)
		require.NoError(t, err)
		assert.True(t, d.IsSkip())
		assert.Equal(t, 1, model.Calls(), sentinel.Error())
	}
}

func TestDecide_MalformedReplyIsSkip(t *testing.T) {
	model := &scriptedModel{replies: []reply{{content: "I think you should buy", tokens: 100}}}
	ledger := newLedger(t, 50)
	o := oracle.New(model, ledger, discard())

	d, err := o.Decide(context.Background(), market)
	require.NoError(t, err)
	assert.True(t, d.IsSkip())
	assert.Equal(t, 1, ledger.Usage().RequestCount)
}

func TestDecide_ExhaustedHookFiresOnce(t *testing.T) {
	model := &scriptedModel{replies: []reply{{content: `{"action":"SKIP"}`, tokens: 1_000_000}}}
	ledger := newLedger(t, 15)
	var fired int
	o := oracle.New(model, ledger, discard(), oracle.WithExhaustedHook(func(domain.DailyUsage) { fired++ }))

	_, _ = o.Decide(context.Background(), market) // 10
	_, _ = o.Decide(context.Background(), market) // 20, exhausted
	_, _ = o.Decide(context.Background(), market) // short-circuited

	assert.Equal(t, 1, fired)
	assert.Equal(t, 2, model.Calls())
}
