package scalper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
)

// dedupWindow suppresses a repeated trigger for the same game, market and
// leader.
const dedupWindow = 30 * time.Minute

type running struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// ScanResult summarises one rescan.
type ScanResult struct {
	Open    int
	Started int
	Stopped int
	Reaped  int
	Active  int
	Gaps    int
}

// Scalper is the scalp-mode orchestrator.
type Scalper struct {
	cfg      config.ScalperConfig
	exchange domain.Exchange
	opener   Opener
	router   *Router
	bus      *Broadcaster
	sources  []Source
	dedup    *executor.Dedup
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	active  map[string]*running
	gaps    map[string]bool
	wg      sync.WaitGroup
	baseCtx context.Context
}

// New validates the routing table and creates a Scalper.
func New(cfg config.ScalperConfig, exchange domain.Exchange, opener Opener, sources []Source, logger *slog.Logger) (*Scalper, error) {
	router, err := NewRouter(cfg.Routes)
	if err != nil {
		return nil, err
	}
	interval := cfg.RescanInterval.Duration
	if interval <= 0 {
		interval = 60 * time.Second
	}
	logger = logger.With(slog.String("component", "scalper"))
	return &Scalper{
		cfg:      cfg,
		exchange: exchange,
		opener:   opener,
		router:   router,
		bus:      NewBroadcaster(cfg.MailboxSize, logger),
		sources:  sources,
		dedup:    executor.NewDedup(dedupWindow),
		interval: interval,
		logger:   logger,
		active:   make(map[string]*running),
		gaps:     make(map[string]bool),
	}, nil
}

// Broadcaster exposes the update fan-out.
func (s *Scalper) Broadcaster() *Broadcaster { return s.bus }

// Run starts one streamer per source and rescans markets every interval until
// ctx is cancelled. It waits for every executor to stop before returning.
func (s *Scalper) Run(ctx context.Context) error {
	s.logger.Info("scalper started",
		slog.Int("sources", len(s.sources)),
		slog.Duration("rescan", s.interval),
	)

	var streams sync.WaitGroup
	for _, src := range s.sources {
		streamer := NewStreamer(src, s.bus, s.cfg.ReconnectBackoff.Duration, s.logger)
		streams.Add(1)
		go func() {
			defer streams.Done()
			streamer.Run(ctx)
		}()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Scan(ctx); err != nil {
			s.logger.Error("market scan failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			s.stopAll()
			streams.Wait()
			s.logger.Info("scalper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Scan lists open markets, starts an executor for every new scalpable market,
// stops executors whose market is no longer open and reaps finished ones.
func (s *Scalper) Scan(ctx context.Context) (ScanResult, error) {
	s.mu.Lock()
	if s.baseCtx == nil {
		s.baseCtx = ctx
	}
	s.mu.Unlock()

	var res ScanResult
	markets, err := s.exchange.Markets(ctx, domain.MarketStatusOpen)
	if err != nil {
		s.mu.Lock()
		res.Reaped = s.reapLocked()
		res.Active = len(s.active)
		s.mu.Unlock()
		return res, fmt.Errorf("scalper: list markets: %w", err)
	}
	res.Open = len(markets)

	s.mu.Lock()
	defer s.mu.Unlock()

	res.Reaped = s.reapLocked()

	open := make(map[string]bool, len(markets))
	for _, m := range markets {
		open[m.ID] = true
		if _, ok := s.active[m.ID]; ok {
			continue
		}
		route, ok := s.router.Match(m.Title)
		if !ok {
			continue
		}
		if !route.Enabled {
			if !s.gaps[m.ID] {
				s.gaps[m.ID] = true
				s.logger.Info("coverage gap: route disabled",
					slog.String("route", route.Name),
					slog.String("market", m.ID),
					slog.String("title", m.Title),
				)
			}
			continue
		}
		trigger, ok := NewTrigger(route.Trigger, s.cfg)
		if !ok {
			continue
		}
		s.startLocked(m, route, trigger)
		res.Started++
	}

	for id, r := range s.active {
		if !open[id] {
			r.cancel()
			res.Stopped++
		}
	}

	res.Gaps = len(s.gaps)
	res.Active = len(s.active)
	s.logger.Info("scan complete",
		slog.Int("open_markets", res.Open),
		slog.Int("started", res.Started),
		slog.Int("stopped", res.Stopped),
		slog.Int("reaped", res.Reaped),
		slog.Int("active", res.Active),
	)
	return res, nil
}

// Active returns the number of executors not yet reaped.
func (s *Scalper) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scalper) startLocked(m domain.Market, route Route, trigger Trigger) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	mailbox, unsubscribe := s.bus.Subscribe(m.ID)
	r := &running{cancel: cancel, done: make(chan struct{})}
	s.active[m.ID] = r

	exec := NewExecutor(m, route, trigger, s.exchange, s.opener, s.dedup, s.cfg.OrderQuantity, s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(r.done)
		defer unsubscribe()
		exec.Run(ctx, mailbox)
	}()
	s.logger.Info("executor launched", slog.String("market", m.ID), slog.String("route", route.Name))
}

func (s *Scalper) reapLocked() int {
	n := 0
	for id, r := range s.active {
		select {
		case <-r.done:
			r.cancel()
			delete(s.active, id)
			n++
		default:
		}
	}
	return n
}

func (s *Scalper) stopAll() {
	s.mu.Lock()
	for _, r := range s.active {
		r.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
