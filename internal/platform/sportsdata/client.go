// Package sportsdata polls the SportsData.io scores API for in-progress games
// and turns each one into a domain.LiveEvent.
package sportsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const (
	defaultBaseURL = "https://api.sportsdata.io"
	statusLive     = "InProgress"
)

// Game is the subset of a GamesByDate row the scalper reads.
type Game struct {
	GameID    int    `json:"GameID"`
	GameKey   string `json:"GameKey"`
	Status    string `json:"Status"`
	HomeTeam  string `json:"HomeTeam"`
	AwayTeam  string `json:"AwayTeam"`
	HomeScore *int   `json:"HomeScore"`
	AwayScore *int   `json:"AwayScore"`
	Quarter   string `json:"Quarter"`
	Period    string `json:"Period"`
	Inning    *int   `json:"Inning"`
}

// Client is a rate-limited SportsData.io client.
type Client struct {
	baseURL string
	apiKey  string
	sport   string
	poll    time.Duration
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
	logger  *slog.Logger
}

// NewClient creates a Client. poll is both the polling cadence and the
// request budget: at most one request per poll interval.
func NewClient(baseURL, apiKey, sport string, poll time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if poll <= 0 {
		poll = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		sport:   strings.ToLower(sport),
		poll:    poll,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(poll), 1),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "sportsdata")),
	}
}

// Name identifies the source in logs.
func (c *Client) Name() string { return "sportsdata" }

// GamesByDate fetches every game scheduled on date.
func (c *Client) GamesByDate(ctx context.Context, date time.Time) ([]Game, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("sportsdata: rate limiter: %w", err)
	}
	url := fmt.Sprintf("%s/v3/%s/scores/json/GamesByDate/%s", c.baseURL, c.sport, date.Format("2006-01-02"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("sportsdata: %w", domain.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("sportsdata: %w", domain.ErrUnauthorized)
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("sportsdata: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var games []Game
	if err := json.Unmarshal(raw, &games); err != nil {
		return nil, fmt.Errorf("sportsdata: decode games: %w", err)
	}
	return games, nil
}

// LiveGames returns today's in-progress games as live events.
func (c *Client) LiveGames(ctx context.Context) ([]domain.LiveEvent, error) {
	now := c.now()
	games, err := c.GamesByDate(ctx, now)
	if err != nil {
		return nil, err
	}
	events := make([]domain.LiveEvent, 0, len(games))
	for _, g := range games {
		if g.Status != statusLive {
			continue
		}
		events = append(events, g.event(c.sport, now))
	}
	return events, nil
}

// Stream polls until ctx is cancelled, calling emit for every live game on
// every poll. A failed poll ends the stream so the caller can back off.
func (c *Client) Stream(ctx context.Context, emit func(domain.LiveEvent)) error {
	c.logger.Info("polling live games", slog.String("sport", c.sport), slog.Duration("interval", c.poll))
	for {
		events, err := c.LiveGames(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, ev := range events {
			emit(ev)
		}
		c.logger.Debug("poll complete", slog.Int("live_games", len(events)))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.poll):
		}
	}
}

func (g Game) event(sport string, at time.Time) domain.LiveEvent {
	id := g.GameKey
	if id == "" {
		id = fmt.Sprintf("%d", g.GameID)
	}
	return domain.LiveEvent{
		ID:        id,
		Source:    "sportsdata",
		Sport:     sport,
		HomeTeam:  g.HomeTeam,
		AwayTeam:  g.AwayTeam,
		HomeScore: deref(g.HomeScore),
		AwayScore: deref(g.AwayScore),
		Period:    g.period(),
		Status:    g.Status,
		Received:  at,
	}
}

// period normalises the sport-specific period fields. Overtime counts as
// period 5.
func (g Game) period() int {
	if g.Inning != nil {
		return *g.Inning
	}
	p := g.Quarter
	if p == "" {
		p = g.Period
	}
	switch strings.ToUpper(strings.TrimSpace(p)) {
	case "1":
		return 1
	case "2", "HALF":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "OT", "SO":
		return 5
	default:
		return 0
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
