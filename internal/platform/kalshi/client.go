package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// rateLimitKey is the shared bucket every process using the same API key
// draws from.
const rateLimitKey = "kalshi:rest"

// Client is the REST client for the Kalshi exchange API.
type Client struct {
	baseURL    string
	basePath   string
	signer     *Signer
	httpClient *http.Client

	limiter   domain.RateLimiter
	rateLimit int
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// WithRateLimiter paces requests through a shared limiter at perSecond
// requests per second.
func WithRateLimiter(l domain.RateLimiter, perSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = l
		c.rateLimit = perSecond
	}
}

// NewClient creates a Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL string, signer *Signer, opts ...ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	basePath := ""
	if u, err := url.Parse(baseURL); err == nil {
		basePath = u.Path
	}
	c := &Client{
		baseURL:    baseURL,
		basePath:   basePath,
		signer:     signer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBalance returns the available cash balance in cents.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	var resp KalshiBalance
	if err := c.getJSON(ctx, "/portfolio/balance", nil, &resp); err != nil {
		return 0, fmt.Errorf("kalshi: get balance: %w", err)
	}
	return resp.Balance, nil
}

// GetPositions returns every non-zero market position, following cursors.
func (c *Client) GetPositions(ctx context.Context) ([]KalshiMarketPosition, error) {
	var out []KalshiMarketPosition
	cursor := ""
	for {
		params := url.Values{"limit": {"200"}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var page KalshiPositionsPage
		if err := c.getJSON(ctx, "/portfolio/positions", params, &page); err != nil {
			return nil, fmt.Errorf("kalshi: get positions: %w", err)
		}
		for _, p := range page.MarketPositions {
			if p.Position != 0 {
				out = append(out, p)
			}
		}
		if page.Cursor == "" || len(page.MarketPositions) == 0 {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// GetMarkets returns one page of markets filtered by status ("open",
// "closed", "settled"; empty for all).
func (c *Client) GetMarkets(ctx context.Context, status string, limit int, cursor string) (KalshiMarketsPage, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var page KalshiMarketsPage
	if err := c.getJSON(ctx, "/markets", params, &page); err != nil {
		return KalshiMarketsPage{}, fmt.Errorf("kalshi: get markets: %w", err)
	}
	return page, nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (KalshiMarket, error) {
	var resp struct {
		Market KalshiMarket `json:"market"`
	}
	if err := c.getJSON(ctx, "/markets/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return KalshiMarket{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}
	return resp.Market, nil
}

// GetOrders returns resting orders.
func (c *Client) GetOrders(ctx context.Context) ([]KalshiOrderState, error) {
	var out []KalshiOrderState
	cursor := ""
	for {
		params := url.Values{"status": {"resting"}, "limit": {"200"}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var page KalshiOrdersPage
		if err := c.getJSON(ctx, "/portfolio/orders", params, &page); err != nil {
			return nil, fmt.Errorf("kalshi: get orders: %w", err)
		}
		out = append(out, page.Orders...)
		if page.Cursor == "" || len(page.Orders) == 0 {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// CreateOrder submits an order and returns the exchange's view of it.
func (c *Client) CreateOrder(ctx context.Context, order KalshiOrder) (KalshiOrderState, error) {
	body, err := c.do(ctx, http.MethodPost, "/portfolio/orders", nil, order)
	if err != nil {
		return KalshiOrderState{}, fmt.Errorf("kalshi: place order %s: %w", order.Ticker, err)
	}
	var resp KalshiOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return KalshiOrderState{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}
	if resp.Order.Status == "canceled" {
		return resp.Order, fmt.Errorf("kalshi: order %s was immediately cancelled: %w", resp.Order.OrderID, domain.ErrInvalidOrder)
	}
	return resp.Order, nil
}

// CancelOrder cancels an existing order by its ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/portfolio/orders/"+url.PathEscape(orderID), nil, nil); err != nil {
		return fmt.Errorf("kalshi: cancel order %s: %w", orderID, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do builds, signs, sends and reads one request. path is relative to the
// base URL; the signature covers the full URL path without the query.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, reqBody any) ([]byte, error) {
	if c.limiter != nil && c.rateLimit > 0 {
		if err := c.limiter.Wait(ctx, rateLimitKey, c.rateLimit, time.Second); err != nil {
			return nil, err
		}
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	auth, err := c.signer.Headers(method, c.basePath+path)
	if err != nil {
		return nil, err
	}
	for k, v := range auth {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx responses onto domain sentinels.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	detail := apiErr.text()

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, detail)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, detail)
	case http.StatusBadRequest, http.StatusConflict:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrInvalidOrder, statusCode, detail)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s", statusCode, detail)
	}
}
