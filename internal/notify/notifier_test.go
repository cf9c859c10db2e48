package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/notify"
)

// --- mocks ---

type recordingSender struct {
	mu     sync.Mutex
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// --- tests ---

func TestNotifier_FiltersByKind(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{s}, []string{domain.EventPositionOpened}, discard())

	require.NoError(t, n.Notify(context.Background(), domain.LifecycleEvent{Kind: domain.EventPositionOpened, MarketID: "A"}))
	require.NoError(t, n.Notify(context.Background(), domain.LifecycleEvent{Kind: domain.EventCycleCompleted}))

	assert.Equal(t, []string{"Position opened A"}, s.titles)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{s}, nil, discard())

	require.NoError(t, n.Notify(context.Background(), domain.LifecycleEvent{Kind: "custom"}))
	assert.Equal(t, []string{"custom"}, s.titles)
}

func TestNotifier_OneFailureDoesNotBlockOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := notify.NewNotifier([]notify.Sender{bad, good}, nil, discard())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, good.titles, 1)
}

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *notify.Notifier
	assert.NoError(t, n.Notify(context.Background(), domain.LifecycleEvent{Kind: domain.EventError}))
	assert.False(t, n.Enabled())
}

func TestBody_SortsDetail(t *testing.T) {
	body := notify.Body(domain.LifecycleEvent{
		Message:  "opened",
		Strategy: domain.StrategyQuickFlip,
		Detail:   map[string]any{"qty": 5, "price": 0.1},
	})
	assert.Equal(t, "opened\nstrategy: quick_flip_scalping\nprice: 0.1\nqty: 5", body)
}

func TestDiscordSender_PostsContent(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, notify.NewDiscordSender(srv.URL).Send(context.Background(), "Title", "body"))
	assert.Equal(t, "**Title**\nbody", payload["content"])
	assert.NotContains(t, payload, "embeds")
}

func TestNotifier_DiscordReceivesEventEmbed(t *testing.T) {
	type field struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Inline bool   `json:"inline"`
	}
	var payload struct {
		Content string `json:"content"`
		Embeds  []struct {
			Title       string  `json:"title"`
			Description string  `json:"description"`
			Color       int     `json:"color"`
			Fields      []field `json:"fields"`
			Timestamp   string  `json:"timestamp"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	text := &recordingSender{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{notify.NewDiscordSender(srv.URL), text}, nil, discard())
	require.NoError(t, n.Notify(context.Background(), domain.LifecycleEvent{
		Kind:      domain.EventPositionClosed,
		MarketID:  "KXNBA-26-LAL",
		Strategy:  domain.StrategyMarketMaking,
		Message:   "stop_loss exit @ 0.20, pnl -2.00",
		Detail:    map[string]any{"reason": "stop_loss", "pnl": -2.0},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}))

	assert.Empty(t, payload.Content)
	require.Len(t, payload.Embeds, 1)
	e := payload.Embeds[0]
	assert.Equal(t, "Position closed KXNBA-26-LAL", e.Title)
	assert.Equal(t, "stop_loss exit @ 0.20, pnl -2.00", e.Description)
	assert.Equal(t, 0x3498db, e.Color)
	assert.Equal(t, "2026-03-01T12:00:00Z", e.Timestamp)
	assert.Equal(t, []field{
		{Name: "strategy", Value: "market_making", Inline: true},
		{Name: "pnl", Value: "-2", Inline: true},
		{Name: "reason", Value: "stop_loss", Inline: true},
	}, e.Fields)

	// Text senders still get the title and body rendering.
	assert.Equal(t, []string{"Position closed KXNBA-26-LAL"}, text.titles)
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	assert.Error(t, notify.NewDiscordSender(srv.URL).Send(context.Background(), "t", "m"))
}

func TestTelegramSender_SendsToChat(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			mu.Lock()
			sent = append(sent, r.Form.Get("chat_id")+"|"+r.Form.Get("text"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	api, err := tgbotapi.NewBotAPIWithClient("tok", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	s := notify.NewTelegramSenderWithAPI(api, 42)
	require.NoError(t, s.Send(context.Background(), "Hi", "there"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"42|*Hi*\nthere"}, sent)
}
