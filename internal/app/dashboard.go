package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const streamPage = 100

// recentEvents pages through the lifecycle stream and returns the last n
// entries, oldest first.
func recentEvents(ctx context.Context, bus domain.SignalBus, n int) ([]domain.StreamMessage, error) {
	var tail []domain.StreamMessage
	lastID := "0"
	for {
		page, err := bus.StreamRead(ctx, domain.StreamLifecycle, lastID, streamPage)
		if err != nil {
			return tail, err
		}
		if len(page) == 0 {
			return tail, nil
		}
		tail = append(tail, page...)
		if len(tail) > n {
			tail = tail[len(tail)-n:]
		}
		lastID = page[len(page)-1].ID
		if len(page) < streamPage {
			return tail, nil
		}
	}
}

// PrintEvent writes one lifecycle event as a console line. Payloads that do
// not decode are printed raw.
func PrintEvent(w io.Writer, payload []byte) {
	var ev domain.LifecycleEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		fmt.Fprintf(w, "  ? %s\n", payload)
		return
	}
	market := ev.MarketID
	if market == "" {
		market = "-"
	}
	fmt.Fprintf(w, "  %s  %-16s %-28s %s\n", ev.CreatedAt.Local().Format("15:04:05"), ev.Kind, market, ev.Message)
}
