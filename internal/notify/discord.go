package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Discord webhook limits.
const (
	discordMaxContent    = 2000
	discordMaxFields     = 25
	discordMaxFieldValue = 1024
)

// Embed colours by event kind; anything unlisted is grey.
var discordColors = map[string]int{
	domain.EventPositionOpened:  0x2ecc71,
	domain.EventPositionClosed:  0x3498db,
	domain.EventCycleCompleted:  0x95a5a6,
	domain.EventBudgetExhausted: 0xf1c40f,
	domain.EventCashEmergency:   0xe67e22,
	domain.EventError:           0xe74c3c,
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordMessage struct {
	Username string         `json:"username"`
	Content  string         `json:"content,omitempty"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

// DiscordSender delivers notifications via a Discord webhook. Lifecycle events
// go out as one embed each; plain notifications as bold-titled text.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }

// Send posts a plain text message.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return d.post(ctx, discordMessage{
		Username: "kalshibot",
		Content:  clamp(fmt.Sprintf("**%s**\n%s", title, message), discordMaxContent),
	})
}

// SendEvent posts ev as an embed: the headline as title, the message as
// description, strategy and detail entries as inline fields in key order.
func (d *DiscordSender) SendEvent(ctx context.Context, ev domain.LifecycleEvent) error {
	return d.post(ctx, discordMessage{Username: "kalshibot", Embeds: []discordEmbed{eventEmbed(ev)}})
}

func eventEmbed(ev domain.LifecycleEvent) discordEmbed {
	color, ok := discordColors[ev.Kind]
	if !ok {
		color = 0x7f8c8d
	}
	e := discordEmbed{
		Title:       Title(ev),
		Description: clamp(ev.Message, discordMaxContent),
		Color:       color,
	}
	if !ev.CreatedAt.IsZero() {
		e.Timestamp = ev.CreatedAt.UTC().Format(time.RFC3339)
	}
	if ev.Strategy != "" {
		e.Fields = append(e.Fields, discordField{Name: "strategy", Value: ev.Strategy, Inline: true})
	}
	keys := make([]string, 0, len(ev.Detail))
	for k := range ev.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(e.Fields) == discordMaxFields {
			break
		}
		e.Fields = append(e.Fields, discordField{
			Name:   k,
			Value:  clamp(fmt.Sprint(ev.Detail[k]), discordMaxFieldValue),
			Inline: true,
		})
	}
	return e
}

func (d *DiscordSender) post(ctx context.Context, msg discordMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

func clamp(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
