package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// MarketFetcher lists markets from the exchange.
type MarketFetcher interface {
	Markets(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error)
}

// MarketScraper ingests open markets from the exchange into the store and
// refreshes the price cache.
type MarketScraper struct {
	fetcher MarketFetcher
	store   domain.MarketStore
	prices  domain.PriceCache
	logger  *slog.Logger
}

// NewMarketScraper creates a MarketScraper. prices may be nil.
func NewMarketScraper(fetcher MarketFetcher, store domain.MarketStore, prices domain.PriceCache, logger *slog.Logger) *MarketScraper {
	return &MarketScraper{
		fetcher: fetcher,
		store:   store,
		prices:  prices,
		logger:  logger.With(slog.String("component", "market_scraper")),
	}
}

// Run executes a single ingestion and returns the number of markets stored.
// Price cache failures are logged and do not fail the run.
func (s *MarketScraper) Run(ctx context.Context) (int, error) {
	markets, err := s.fetcher.Markets(ctx, domain.MarketStatusOpen)
	if err != nil {
		return 0, fmt.Errorf("fetching markets: %w", err)
	}
	if len(markets) == 0 {
		s.logger.Info("no open markets returned")
		return 0, nil
	}
	if err := s.store.UpsertMarkets(ctx, markets); err != nil {
		return 0, fmt.Errorf("upserting %d markets: %w", len(markets), err)
	}

	if s.prices != nil {
		failed := 0
		for _, m := range markets {
			ts := m.LastUpdated
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			if err := s.prices.SetPrice(ctx, m.ID, m.YesPrice, ts); err != nil {
				failed++
			}
		}
		if failed > 0 {
			s.logger.Warn("price cache refresh incomplete", slog.Int("failed", failed), slog.Int("total", len(markets)))
		}
	}

	s.logger.Info("market ingestion complete", slog.Int("markets", len(markets)))
	return len(markets), nil
}

// RunLoop ingests immediately and then every interval until ctx is cancelled.
// After a failed run the next attempt comes after errInterval instead.
func (s *MarketScraper) RunLoop(ctx context.Context, interval, errInterval time.Duration) error {
	if errInterval <= 0 {
		errInterval = interval
	}
	for {
		wait := interval
		if _, err := s.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("market ingestion failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", errInterval),
			)
			wait = errInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("market scraper loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}
