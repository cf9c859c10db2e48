package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/platform/kalshi"
)

const priceWriteTimeout = 2 * time.Second

// TickerFeed streams exchange tickers until ctx is cancelled.
type TickerFeed interface {
	Run(ctx context.Context) error
}

// PriceRecorder writes streamed tickers into the price cache so capital
// revaluation sees prices fresher than the last ingestion.
type PriceRecorder struct {
	prices  domain.PriceCache
	written atomic.Int64
	failed  atomic.Int64
	logger  *slog.Logger
}

// NewPriceRecorder creates a PriceRecorder.
func NewPriceRecorder(prices domain.PriceCache, logger *slog.Logger) *PriceRecorder {
	return &PriceRecorder{
		prices: prices,
		logger: logger.With(slog.String("component", "price_recorder")),
	}
}

// OnTicker is a kalshi.TickerHandler.
func (r *PriceRecorder) OnTicker(t kalshi.Ticker) {
	if t.MarketID == "" || t.Price <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), priceWriteTimeout)
	defer cancel()
	if err := r.prices.SetPrice(ctx, t.MarketID, t.Price, t.At); err != nil {
		if r.failed.Add(1) == 1 {
			r.logger.Warn("price cache write failed", slog.String("market", t.MarketID), slog.String("error", err.Error()))
		}
		return
	}
	r.written.Add(1)
}

// Written returns how many tickers reached the cache.
func (r *PriceRecorder) Written() int64 { return r.written.Load() }
