// Package oddsapi streams live score updates from The Odds API websocket.
package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const (
	defaultWsURL = "wss://ws.the-odds-api.com/v4/live"

	// readWait bounds the silence tolerated between messages; the feed sends
	// heartbeats well inside it.
	readWait = 60 * time.Second
)

type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type score struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

type update struct {
	ID        string  `json:"id"`
	SportKey  string  `json:"sport_key"`
	HomeTeam  string  `json:"home_team"`
	AwayTeam  string  `json:"away_team"`
	Completed bool    `json:"completed"`
	Period    int     `json:"period"`
	Scores    []score `json:"scores"`
}

// Stream is one sport's live feed.
type Stream struct {
	wsURL  string
	apiKey string
	sport  string
	now    func() time.Time
	logger *slog.Logger
}

// NewStream creates a Stream for sport (an Odds API sport key such as
// "basketball_nba").
func NewStream(wsURL, apiKey, sport string, logger *slog.Logger) *Stream {
	if wsURL == "" {
		wsURL = defaultWsURL
	}
	return &Stream{
		wsURL:  strings.TrimRight(wsURL, "/"),
		apiKey: apiKey,
		sport:  sport,
		now:    time.Now,
		logger: logger.With(slog.String("component", "oddsapi")),
	}
}

// Name identifies the source in logs.
func (s *Stream) Name() string { return "oddsapi" }

// Stream runs one connection, calling emit for every "update" message. It
// returns when the connection drops or ctx is cancelled; reconnecting is the
// caller's job.
func (s *Stream) Stream(ctx context.Context, emit func(domain.LiveEvent)) error {
	u := fmt.Sprintf("%s/%s?apiKey=%s", s.wsURL, s.sport, url.QueryEscape(s.apiKey))
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("oddsapi: connect: %w", err)
	}
	defer conn.Close()
	s.logger.Info("live feed connected", slog.String("sport", s.sport))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("oddsapi: read: %w", err)
		}
		ev, ok, err := s.decode(raw)
		if err != nil {
			s.logger.Debug("skipping malformed message", slog.String("error", err.Error()))
			continue
		}
		if ok {
			emit(ev)
		}
	}
}

// decode turns an "update" message into a LiveEvent. Heartbeats and other
// message types return ok=false.
func (s *Stream) decode(raw []byte) (domain.LiveEvent, bool, error) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.LiveEvent{}, false, fmt.Errorf("decode envelope: %w", err)
	}
	if msg.Type != "update" {
		return domain.LiveEvent{}, false, nil
	}
	var u update
	if err := json.Unmarshal(msg.Data, &u); err != nil {
		return domain.LiveEvent{}, false, fmt.Errorf("decode update: %w", err)
	}
	if u.ID == "" {
		return domain.LiveEvent{}, false, fmt.Errorf("update without id")
	}

	ev := domain.LiveEvent{
		ID:       u.ID,
		Source:   "oddsapi",
		Sport:    u.SportKey,
		HomeTeam: u.HomeTeam,
		AwayTeam: u.AwayTeam,
		Period:   u.Period,
		Status:   "InProgress",
		Received: s.now(),
	}
	if u.Completed {
		ev.Status = "Final"
	}
	for _, sc := range u.Scores {
		n, err := strconv.Atoi(strings.TrimSpace(sc.Score))
		if err != nil {
			continue
		}
		switch sc.Name {
		case u.HomeTeam:
			ev.HomeScore = n
		case u.AwayTeam:
			ev.AwayScore = n
		}
	}
	return ev, true, nil
}
