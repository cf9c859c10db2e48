package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/app"
	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPrintEvent(t *testing.T) {
	payload, err := json.Marshal(domain.LifecycleEvent{
		Kind:      domain.EventPositionOpened,
		MarketID:  "KXNFL-26-KC",
		Message:   "opened YES x3 @ 0.42",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	app.PrintEvent(&buf, payload)
	out := buf.String()
	assert.Contains(t, out, "position_opened")
	assert.Contains(t, out, "KXNFL-26-KC")
	assert.Contains(t, out, "opened YES x3 @ 0.42")

	buf.Reset()
	app.PrintEvent(&buf, []byte("not json"))
	assert.Contains(t, buf.String(), "not json")
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.SQLitePath = ":memory:"

	store, err := app.OpenStore(context.Background(), &cfg)
	require.NoError(t, err)
	defer store.Close()

	open, err := store.OpenPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRun_DashboardNeedsSignalBus(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "dashboard"
	cfg.Store.SQLitePath = ":memory:"

	a := app.New(&cfg, discard())
	defer a.Close()
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal bus")
}

func TestReport_EmptyStore(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.SQLitePath = ":memory:"

	assert.NoError(t, app.New(&cfg, discard()).Report(context.Background()))
}
