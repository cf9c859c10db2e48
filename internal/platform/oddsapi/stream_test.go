package oddsapi_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/platform/oddsapi"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func feed(t *testing.T, messages ...string) (*httptest.Server, <-chan string) {
	t.Helper()
	query := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query <- r.URL.Path + "?" + r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
	}))
	return srv, query
}

func TestStream_EmitsUpdatesOnly(t *testing.T) {
	srv, query := feed(t,
		`{"type":"heartbeat"}`,
		`{"type":"update","data":{"id":"g1","sport_key":"basketball_nba","home_team":"Lakers","away_team":"Celtics","period":4,
			"scores":[{"name":"Lakers","score":"101"},{"name":"Celtics","score":"99"}]}}`,
		`not json`,
		`{"type":"update","data":{"id":"g1","sport_key":"basketball_nba","home_team":"Lakers","away_team":"Celtics","period":4,"completed":true,
			"scores":[{"name":"Lakers","score":"101"},{"name":"Celtics","score":"104"}]}}`,
	)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v4/live"
	s := oddsapi.NewStream(wsURL, "key 1", "basketball_nba", discard())

	var got []domain.LiveEvent
	err := s.Stream(context.Background(), func(ev domain.LiveEvent) { got = append(got, ev) })
	assert.Error(t, err, "server hang-up ends the session")

	assert.Equal(t, "/v4/live/basketball_nba?apiKey=key+1", <-query)
	require.Len(t, got, 2)
	assert.Equal(t, "g1", got[0].ID)
	assert.Equal(t, 101, got[0].HomeScore)
	assert.Equal(t, 99, got[0].AwayScore)
	assert.Equal(t, "Lakers", got[0].Leader())
	assert.Equal(t, "InProgress", got[0].Status)
	assert.Equal(t, "Celtics", got[1].Leader())
	assert.Equal(t, "Final", got[1].Status)
}

func TestStream_DialFailure(t *testing.T) {
	s := oddsapi.NewStream("ws://127.0.0.1:1/v4/live", "k", "basketball_nba", discard())
	err := s.Stream(context.Background(), func(domain.LiveEvent) {})
	assert.Error(t, err)
}
