package kalshi

import "encoding/json"

// --------------------------------------------------------------------------
// REST DTOs. Prices are integer-valued cents (1-99) on the wire.
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
type KalshiMarket struct {
	Ticker         string  `json:"ticker"`
	EventTicker    string  `json:"event_ticker"`
	Title          string  `json:"title"`
	Subtitle       string  `json:"subtitle"`
	Status         string  `json:"status"` // "initialized", "active", "closed", "settled", "determined"
	YesBid         float64 `json:"yes_bid"`
	YesAsk         float64 `json:"yes_ask"`
	NoBid          float64 `json:"no_bid"`
	NoAsk          float64 `json:"no_ask"`
	LastPrice      float64 `json:"last_price"`
	Volume         int64   `json:"volume"`
	Volume24H      int64   `json:"volume_24h"`
	OpenInterest   int64   `json:"open_interest"`
	ExpirationTime string  `json:"expiration_time"`
	CloseTime      string  `json:"close_time"`
	Category       string  `json:"category"`
	Result         string  `json:"result"` // "yes", "no", "" (unsettled)
}

// KalshiMarketsPage is one page of GET /markets.
type KalshiMarketsPage struct {
	Markets []KalshiMarket `json:"markets"`
	Cursor  string         `json:"cursor"`
}

// KalshiBalance is the response of GET /portfolio/balance.
type KalshiBalance struct {
	Balance int64 `json:"balance"` // cents
}

// KalshiMarketPosition is one entry of GET /portfolio/positions. Position is
// signed: positive holds YES contracts, negative holds NO.
type KalshiMarketPosition struct {
	Ticker         string `json:"ticker"`
	Position       int64  `json:"position"`
	MarketExposure int64  `json:"market_exposure"`
	RealizedPnl    int64  `json:"realized_pnl"`
}

// KalshiPositionsPage is one page of GET /portfolio/positions.
type KalshiPositionsPage struct {
	MarketPositions []KalshiMarketPosition `json:"market_positions"`
	Cursor          string                 `json:"cursor"`
}

// KalshiOrder is the body of POST /portfolio/orders.
type KalshiOrder struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "market" or "limit"
	Count         int64  `json:"count"`
	YesPrice      *int64 `json:"yes_price,omitempty"`
	NoPrice       *int64 `json:"no_price,omitempty"`
	BuyMaxCost    *int64 `json:"buy_max_cost,omitempty"` // cents, market buys only
}

// KalshiOrderState is an order as reported by the exchange.
type KalshiOrderState struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	CreatedTime    string `json:"created_time"`
	RemainingCount int64  `json:"remaining_count"`
	PlaceCount     int64  `json:"place_count"`
}

// KalshiOrderResponse wraps a single order.
type KalshiOrderResponse struct {
	Order KalshiOrderState `json:"order"`
}

// KalshiOrdersPage is one page of GET /portfolio/orders.
type KalshiOrdersPage struct {
	Orders []KalshiOrderState `json:"orders"`
	Cursor string             `json:"cursor"`
}

// KalshiErrorResponse represents a Kalshi API error body.
type KalshiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e KalshiErrorResponse) text() string {
	code, msg := e.Code, e.Message
	if e.Error.Code != "" {
		code, msg = e.Error.Code, e.Error.Message
	}
	return msg + " (" + code + ")"
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// KalshiWSMessage is the envelope for Kalshi WebSocket messages.
type KalshiWSMessage struct {
	Type string          `json:"type"` // "ticker", "subscribed", "error", ...
	Msg  json.RawMessage `json:"msg"`
	SID  int64           `json:"sid"`
}

// KalshiWSTicker is the payload of a "ticker" message.
type KalshiWSTicker struct {
	MarketTicker string `json:"market_ticker"`
	Price        int64  `json:"price"`
	YesBid       int64  `json:"yes_bid"`
	YesAsk       int64  `json:"yes_ask"`
	Volume       int64  `json:"volume"`
	TS           int64  `json:"ts"` // unix seconds
}

// KalshiWSSubscribeCmd subscribes to Kalshi WebSocket channels.
type KalshiWSSubscribeCmd struct {
	ID     int64                   `json:"id"`
	Cmd    string                  `json:"cmd"` // "subscribe" or "unsubscribe"
	Params KalshiWSSubscribeParams `json:"params"`
}

// KalshiWSSubscribeParams defines the subscription parameters. An empty
// ticker list subscribes to every market on the channel.
type KalshiWSSubscribeParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers,omitempty"`
}
