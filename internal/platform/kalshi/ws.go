package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// kalshiWriteWait is the time allowed to write a message to the peer.
	kalshiWriteWait = 10 * time.Second

	// kalshiPongWait is the time allowed to read the next pong message.
	kalshiPongWait = 30 * time.Second

	// kalshiPingPeriod sends pings at this interval. Must be less than pongWait.
	kalshiPingPeriod = (kalshiPongWait * 9) / 10

	// kalshiReconnectDelay is the base delay before attempting to reconnect.
	kalshiReconnectDelay = 2 * time.Second

	// kalshiMaxReconnectDelay caps the exponential backoff.
	kalshiMaxReconnectDelay = 60 * time.Second
)

// Ticker is a decoded ticker update with prices as probabilities.
type Ticker struct {
	MarketID string
	Price    float64
	YesBid   float64
	YesAsk   float64
	Volume   int64
	At       time.Time
}

// TickerHandler is called for every ticker update.
type TickerHandler func(Ticker)

// WSClient streams the public "ticker" channel over an authenticated
// WebSocket connection.
type WSClient struct {
	wsURL  string
	signer *Signer
	logger *slog.Logger

	mu      sync.Mutex
	tickers []string
	cmdID   int64

	handlerMu sync.RWMutex
	handlers  []TickerHandler
}

// NewWSClient creates a new Kalshi WebSocket client.
//
// wsURL is the WebSocket endpoint, e.g. "wss://api.elections.kalshi.com/trade-api/ws/v2".
// An empty ticker list subscribes to every market.
func NewWSClient(wsURL string, signer *Signer, tickers []string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:   wsURL,
		signer:  signer,
		tickers: tickers,
		logger:  logger.With(slog.String("component", "kalshi_ws")),
	}
}

// OnTicker registers a handler that is called for every ticker update.
func (w *WSClient) OnTicker(handler TickerHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Run connects and streams until ctx is cancelled, reconnecting with
// exponential backoff whenever the connection drops.
func (w *WSClient) Run(ctx context.Context) error {
	delay := kalshiReconnectDelay
	for {
		err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			w.logger.Warn("ticker stream disconnected",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
		} else {
			delay = kalshiReconnectDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > kalshiMaxReconnectDelay {
			delay = kalshiMaxReconnectDelay
		}
	}
}

// session runs one connection until it fails or ctx is cancelled.
func (w *WSClient) session(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
	})

	if err := w.sendSubscribe(conn); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}
	w.logger.Info("ticker stream connected", slog.Int("tickers", len(w.tickers)))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.pingLoop(sessCtx, conn)
	go func() {
		<-sessCtx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kalshi/ws: read: %w", err)
		}
		w.handleMessage(message)
	}
}

// dial opens the connection with signed handshake headers. The signature
// covers the URL path of the WebSocket endpoint.
func (w *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(w.wsURL)
	if err != nil {
		return nil, fmt.Errorf("kalshi/ws: parse url: %w", err)
	}
	headers, err := w.signer.Headers("GET", u.Path)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("kalshi/ws: connect: %w", err)
	}
	return conn, nil
}

func (w *WSClient) sendSubscribe(conn *websocket.Conn) error {
	w.mu.Lock()
	w.cmdID++
	cmd := KalshiWSSubscribeCmd{
		ID:  w.cmdID,
		Cmd: "subscribe",
		Params: KalshiWSSubscribeParams{
			Channels: []string{"ticker"},
			Tickers:  w.tickers,
		},
	}
	w.mu.Unlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(kalshiWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(kalshiPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(kalshiWriteWait)); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw WebSocket message and routes it.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope KalshiWSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.Type {
	case "ticker":
		var t KalshiWSTicker
		if err := json.Unmarshal(envelope.Msg, &t); err != nil {
			return
		}
		update := Ticker{
			MarketID: t.MarketTicker,
			Price:    centsToProb(float64(t.Price)),
			YesBid:   centsToProb(float64(t.YesBid)),
			YesAsk:   centsToProb(float64(t.YesAsk)),
			Volume:   t.Volume,
			At:       time.Unix(t.TS, 0).UTC(),
		}
		if t.TS == 0 {
			update.At = time.Now().UTC()
		}

		w.handlerMu.RLock()
		handlers := w.handlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(update)
		}
	case "error":
		w.logger.Warn("ticker stream error message", slog.String("msg", string(envelope.Msg)))
	}
}
