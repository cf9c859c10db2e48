// Package scalper trades live sports markets from streamed score updates.
//
// One Streamer per data source publishes every update to a Broadcaster. Each
// scalpable market gets its own Executor with a private mailbox, so every
// executor sees every update in arrival order. The Scalper orchestrator
// rescans open markets, starts executors for new ones and reaps finished ones.
package scalper

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Broadcaster fans live events out to per-subscriber mailboxes. Publish never
// blocks: an update for a full mailbox is dropped and counted.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[string]chan domain.LiveEvent
	size    int
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewBroadcaster creates a Broadcaster whose mailboxes hold size events.
func NewBroadcaster(size int, logger *slog.Logger) *Broadcaster {
	if size <= 0 {
		size = 256
	}
	return &Broadcaster{
		subs:   make(map[string]chan domain.LiveEvent),
		size:   size,
		logger: logger.With(slog.String("component", "broadcaster")),
	}
}

// Subscribe opens a mailbox for id. Calling the returned cancel closes the
// mailbox; subscribing an id twice replaces the old mailbox.
func (b *Broadcaster) Subscribe(id string) (<-chan domain.LiveEvent, func()) {
	ch := make(chan domain.LiveEvent, b.size)
	b.mu.Lock()
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if cur, ok := b.subs[id]; ok && cur == ch {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
}

// Publish delivers ev to every mailbox.
func (b *Broadcaster) Publish(ev domain.LiveEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Warn("mailbox full, dropping update",
				slog.String("subscriber", id),
				slog.String("event", ev.ID),
			)
		}
	}
}

// Subscribers returns the number of open mailboxes.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were dropped on full mailboxes.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }
