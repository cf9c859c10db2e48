// Package notify delivers lifecycle events to operators over Telegram and
// Discord. Events are filtered by kind so operators receive only the alerts
// they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// EventSender is implemented by senders that render a lifecycle event in
// their own format instead of the Title/Body text.
type EventSender interface {
	SendEvent(ctx context.Context, ev domain.LifecycleEvent) error
}

// Notifier dispatches lifecycle events to one or more Senders. Only events
// whose kind is in the allowed set are forwarded; an empty set allows all.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify forwards ev if its kind passes the filter. A nil Notifier is a no-op.
func (n *Notifier) Notify(ctx context.Context, ev domain.LifecycleEvent) error {
	if n == nil {
		return nil
	}
	if len(n.events) > 0 && !n.events[ev.Kind] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", ev.Kind))
		return nil
	}
	title, body := Title(ev), Body(ev)
	return n.dispatch(ctx, title, func(s Sender) error {
		if es, ok := s.(EventSender); ok {
			return es.SendEvent(ctx, ev)
		}
		return s.Send(ctx, title, body)
	})
}

// NotifyAll sends a notification to all senders regardless of event kind.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	if n == nil {
		return nil
	}
	return n.dispatch(ctx, title, func(s Sender) error {
		return s.Send(ctx, title, message)
	})
}

// dispatch sends to every sender. A single sender failure does not prevent
// delivery to the rest; failures are returned as one combined error.
func (n *Notifier) dispatch(ctx context.Context, title string, send func(Sender) error) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := send(s); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

var titles = map[string]string{
	domain.EventPositionOpened:  "Position opened",
	domain.EventPositionClosed:  "Position closed",
	domain.EventCycleCompleted:  "Trading cycle completed",
	domain.EventBudgetExhausted: "AI budget exhausted",
	domain.EventCashEmergency:   "Cash reserve emergency",
	domain.EventError:           "Error",
}

// Title returns the headline for an event.
func Title(ev domain.LifecycleEvent) string {
	t, ok := titles[ev.Kind]
	if !ok {
		t = ev.Kind
	}
	if ev.MarketID != "" {
		t += " " + ev.MarketID
	}
	return t
}

// Body renders the message and detail map as sorted key: value lines.
func Body(ev domain.LifecycleEvent) string {
	var b strings.Builder
	b.WriteString(ev.Message)
	if ev.Strategy != "" {
		fmt.Fprintf(&b, "\nstrategy: %s", ev.Strategy)
	}
	keys := make([]string, 0, len(ev.Detail))
	for k := range ev.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, ev.Detail[k])
	}
	return b.String()
}
