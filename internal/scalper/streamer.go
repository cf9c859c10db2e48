package scalper

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Source is a live data feed. Stream delivers updates until the feed fails or
// ctx is cancelled.
type Source interface {
	Name() string
	Stream(ctx context.Context, emit func(domain.LiveEvent)) error
}

// Streamer keeps one Source connected and publishes every update. After any
// disconnect it waits a fixed backoff and reconnects, forever.
type Streamer struct {
	source  Source
	bus     *Broadcaster
	backoff time.Duration
	logger  *slog.Logger
}

// NewStreamer creates a Streamer.
func NewStreamer(source Source, bus *Broadcaster, backoff time.Duration, logger *slog.Logger) *Streamer {
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	return &Streamer{
		source:  source,
		bus:     bus,
		backoff: backoff,
		logger: logger.With(
			slog.String("component", "streamer"),
			slog.String("source", source.Name()),
		),
	}
}

// Run streams until ctx is cancelled.
func (s *Streamer) Run(ctx context.Context) {
	for {
		err := s.source.Stream(ctx, s.bus.Publish)
		if ctx.Err() != nil {
			s.logger.Info("streamer stopped")
			return
		}
		if err != nil {
			s.logger.Error("stream failed", slog.String("error", err.Error()), slog.Duration("retry_in", s.backoff))
		} else {
			s.logger.Warn("stream ended", slog.Duration("retry_in", s.backoff))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("streamer stopped")
			return
		case <-time.After(s.backoff):
		}
	}
}
