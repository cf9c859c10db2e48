package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/evaluation"
	"github.com/alanyoungcy/kalshibot/internal/executor"
	"github.com/alanyoungcy/kalshibot/internal/pipeline"
	"github.com/alanyoungcy/kalshibot/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshibot/internal/platform/oddsapi"
	"github.com/alanyoungcy/kalshibot/internal/platform/sportsdata"
	"github.com/alanyoungcy/kalshibot/internal/scalper"
	"github.com/alanyoungcy/kalshibot/internal/tracker"
)

// historyReplay is how many past lifecycle events dashboard mode prints on
// start.
const historyReplay = 20

// TradeMode runs the trading loop, the position tracker and the data pipeline
// side by side. It serves both paper and live mode; the difference is only
// which exchange Wire built.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode", slog.Bool("live", deps.Exchange.Live()))

	stack, err := a.buildTradingStack(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return stack.supervisor.Run(ctx)
	})

	g.Go(func() error {
		return a.runTracker(ctx, stack.tracker)
	})

	orchestrator := a.buildPipeline(deps)
	g.Go(func() error {
		return orchestrator.Run(ctx)
	})

	return g.Wait()
}

// DashboardMode follows the lifecycle events other bot processes publish on
// the signal bus and re-renders the evaluation tables on a cadence.
func (a *App) DashboardMode(ctx context.Context, deps *Dependencies) error {
	if deps.SignalBus == nil {
		return fmt.Errorf("app: dashboard mode needs the redis signal bus")
	}
	a.logger.InfoContext(ctx, "starting dashboard mode")

	history, err := recentEvents(ctx, deps.SignalBus, historyReplay)
	if err != nil {
		a.logger.WarnContext(ctx, "lifecycle history unavailable", slog.String("error", err.Error()))
	}
	for _, msg := range history {
		PrintEvent(os.Stdout, msg.Payload)
	}

	events, err := deps.SignalBus.Subscribe(ctx, domain.ChannelLifecycle)
	if err != nil {
		return fmt.Errorf("app: subscribe lifecycle: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case payload, ok := <-events:
				if !ok {
					return nil
				}
				PrintEvent(os.Stdout, payload)
			}
		}
	})

	evaluator := evaluation.New(deps.Store, a.cfg.XAI.DailyBudget, a.cfg.Pipeline.EvaluationInterval.Duration,
		a.logger, evaluation.WithOutput(os.Stdout))
	g.Go(func() error {
		err := evaluator.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	return g.Wait()
}

// ScalpMode streams live game updates and trades the markets the routing
// table assigns to a trigger. Scalp entries go through the store like every
// other position, so the tracker runs alongside to close them.
func (a *App) ScalpMode(ctx context.Context, deps *Dependencies) error {
	cfg := a.cfg.Scalper

	var source scalper.Source
	switch cfg.Source {
	case "oddsapi":
		source = oddsapi.NewStream(cfg.OddsAPI.WsURL, cfg.OddsAPI.ApiKey, cfg.Sport, a.logger)
	default:
		source = sportsdata.NewClient(cfg.SportsData.BaseURL, cfg.SportsData.ApiKey, cfg.Sport,
			cfg.SportsData.PollInterval.Duration, a.logger)
	}
	a.logger.InfoContext(ctx, "starting scalp mode",
		slog.String("source", source.Name()),
		slog.String("sport", cfg.Sport),
		slog.Bool("live", deps.Exchange.Live()),
	)

	opener := executor.NewOpener(deps.Store, deps.Exchange, deps.Events, a.logger)
	s, err := scalper.New(cfg, deps.Exchange, opener, []scalper.Source{source}, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(ctx)
	})
	g.Go(func() error {
		return a.runTracker(ctx, a.buildTracker(deps))
	})
	return g.Wait()
}

// Report renders one evaluation to stdout and returns. It only needs the
// store.
func (a *App) Report(ctx context.Context) error {
	store, err := OpenStore(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer store.Close()

	evaluator := evaluation.New(store, a.cfg.XAI.DailyBudget, 0, a.logger)
	return evaluator.Evaluate(ctx, os.Stdout)
}

// buildPipeline assembles market ingestion, the ticker feed (when there is a
// price cache to feed), evaluation and archival (when S3 is enabled).
func (a *App) buildPipeline(deps *Dependencies) *pipeline.Orchestrator {
	scraper := pipeline.NewMarketScraper(deps.MarketData, deps.Store, deps.PriceCache, a.logger)

	var feed pipeline.TickerFeed
	if deps.PriceCache != nil && a.cfg.Kalshi.WsURL != "" {
		ws := kalshi.NewWSClient(a.cfg.Kalshi.WsURL, deps.Signer, nil, a.logger)
		recorder := pipeline.NewPriceRecorder(deps.PriceCache, a.logger)
		ws.OnTicker(recorder.OnTicker)
		feed = ws
	}

	evaluator := evaluation.New(deps.Store, a.cfg.XAI.DailyBudget, a.cfg.Pipeline.EvaluationInterval.Duration, a.logger)

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, a.logger)
	}

	return pipeline.NewOrchestrator(scraper, feed, evaluator, archiver, a.cfg.Pipeline, a.logger)
}

// runTracker runs a tracking pass every tracker interval, or after the shorter
// error interval when a pass fails.
func (a *App) runTracker(ctx context.Context, t *tracker.Tracker) error {
	interval := a.cfg.Tracker.Interval.Duration
	errInterval := a.cfg.Tracker.ErrorInterval.Duration

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		sum, err := t.Pass(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Error("tracking pass failed", slog.String("error", err.Error()))
			timer.Reset(errInterval)
			continue
		}
		a.logger.Info("tracking pass complete",
			slog.Int("checked", sum.Checked),
			slog.Int("closed", sum.Closed),
			slog.Int("errors", sum.Errors),
			slog.Float64("realized_pnl", sum.RealizedPnL),
		)
		timer.Reset(interval)
	}
}
