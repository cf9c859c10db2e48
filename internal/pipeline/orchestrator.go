// Package pipeline runs the background loops that keep the bot's view of the
// world current: market ingestion, the exchange ticker feed, evaluation
// reports and cold-storage archival.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshibot/internal/config"
)

// Evaluator renders performance and cost reports on a cadence.
type Evaluator interface {
	RunLoop(ctx context.Context) error
}

// Orchestrator manages all pipeline goroutines. Every sub-system except the
// market scraper is optional.
type Orchestrator struct {
	scraper   *MarketScraper
	feed      TickerFeed
	evaluator Evaluator
	archiver  *Archiver
	cfg       config.PipelineConfig
	logger    *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. feed, evaluator and archiver may
// be nil.
func NewOrchestrator(scraper *MarketScraper, feed TickerFeed, evaluator Evaluator, archiver *Archiver,
	cfg config.PipelineConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		scraper:   scraper,
		feed:      feed,
		evaluator: evaluator,
		archiver:  archiver,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "pipeline")),
	}
}

// Run starts all sub-pipelines as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a non-context
// error, the errgroup cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("ingestion_interval", o.cfg.IngestionInterval.Duration),
		slog.Duration("evaluation_interval", o.cfg.EvaluationInterval.Duration),
		slog.Bool("ticker_feed", o.feed != nil),
		slog.Bool("archiver", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.scraper.RunLoop(ctx, o.cfg.IngestionInterval.Duration, o.cfg.IngestionErrorInterval.Duration)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("market scraper: %w", err)
	})

	if o.feed != nil {
		g.Go(func() error {
			err := o.feed.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ticker feed: %w", err)
		})
	}

	if o.evaluator != nil {
		g.Go(func() error {
			err := o.evaluator.RunLoop(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("evaluator: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunLoop(ctx, o.cfg.ArchiveInterval.Duration)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
