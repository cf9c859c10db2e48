package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// EventNotifier forwards lifecycle events to operators.
type EventNotifier interface {
	Notify(ctx context.Context, ev domain.LifecycleEvent) error
}

// Events fans lifecycle events out to the signal bus (pub/sub channel plus
// durable stream) and the operator notifier. Either sink may be nil. Emit
// never fails the caller; sink errors are logged.
type Events struct {
	bus      domain.SignalBus
	notifier EventNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewEvents creates an Events fan-out.
func NewEvents(bus domain.SignalBus, notifier EventNotifier, logger *slog.Logger) *Events {
	return &Events{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "events")),
		now:      time.Now,
	}
}

// Emit publishes ev. A nil *Events is a no-op.
func (e *Events) Emit(ctx context.Context, ev domain.LifecycleEvent) {
	if e == nil {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = e.now().UTC()
	}

	if e.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			e.logger.Error("marshal lifecycle event", slog.String("kind", ev.Kind), slog.String("error", err.Error()))
		} else {
			if err := e.bus.Publish(ctx, domain.ChannelLifecycle, payload); err != nil {
				e.logger.Warn("publish lifecycle event", slog.String("kind", ev.Kind), slog.String("error", err.Error()))
			}
			if err := e.bus.StreamAppend(ctx, domain.StreamLifecycle, payload); err != nil {
				e.logger.Warn("append lifecycle stream", slog.String("kind", ev.Kind), slog.String("error", err.Error()))
			}
		}
	}

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, ev); err != nil {
			e.logger.Warn("notify lifecycle event", slog.String("kind", ev.Kind), slog.String("error", err.Error()))
		}
	}
}
