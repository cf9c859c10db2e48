package kalshi_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/platform/kalshi"
)

const apiPrefix = "/trade-api/v2"

func newSigner(t *testing.T) *kalshi.Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return kalshi.NewSigner("key-123", key)
}

func newExchange(t *testing.T, h http.HandlerFunc) (*kalshi.Exchange, *kalshi.Signer) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	signer := newSigner(t)
	client := kalshi.NewClient(srv.URL+apiPrefix, signer, kalshi.WithHTTPClient(srv.Client()))
	return kalshi.NewExchange(client, 5), signer
}

func TestClient_SignsFullPathWithoutQuery(t *testing.T) {
	var verifyErr atomic.Value
	var signer *kalshi.Signer
	ex, s := newExchange(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("KALSHI-ACCESS-KEY"))
		err := signer.Verify(r.Method, r.URL.Path,
			r.Header.Get("KALSHI-ACCESS-TIMESTAMP"), r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		if err != nil {
			verifyErr.Store(err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"markets": []any{}, "cursor": ""})
	})
	signer = s

	_, err := ex.Markets(context.Background(), domain.MarketStatusOpen)
	require.NoError(t, err)
	assert.Nil(t, verifyErr.Load())
}

func TestSigner_VerifyRejectsTamperedPath(t *testing.T) {
	s := newSigner(t)
	h, err := s.Headers("GET", apiPrefix+"/portfolio/balance")
	require.NoError(t, err)

	ts, sig := h.Get("KALSHI-ACCESS-TIMESTAMP"), h.Get("KALSHI-ACCESS-SIGNATURE")
	assert.NoError(t, s.Verify("GET", apiPrefix+"/portfolio/balance", ts, sig))
	assert.Error(t, s.Verify("GET", apiPrefix+"/portfolio/orders", ts, sig))
}

func TestExchange_BalanceInDollars(t *testing.T) {
	ex, _ := newExchange(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, apiPrefix+"/portfolio/balance", r.URL.Path)
		_, _ = w.Write([]byte(`{"balance": 12345}`))
	})

	bal, err := ex.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 123.45, bal, 1e-9)
}

func TestExchange_MarketsConvertsCentsAndPaginates(t *testing.T) {
	var calls atomic.Int32
	ex, _ := newExchange(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		switch n {
		case 1:
			assert.Empty(t, r.URL.Query().Get("cursor"))
			_, _ = w.Write([]byte(`{"markets":[{"ticker":"A","title":"Will A?","status":"active",
				"yes_bid":40,"yes_ask":44,"no_bid":56,"no_ask":60,"volume":5000,
				"expiration_time":"2026-12-01T00:00:00Z"}],"cursor":"next"}`))
		default:
			assert.Equal(t, "next", r.URL.Query().Get("cursor"))
			_, _ = w.Write([]byte(`{"markets":[{"ticker":"B","status":"settled","result":"no","last_price":3}],"cursor":""}`))
		}
	})

	markets, err := ex.Markets(context.Background(), domain.MarketStatusOpen)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, int32(2), calls.Load())

	a := markets[0]
	assert.Equal(t, "A", a.ID)
	assert.Equal(t, domain.MarketStatusOpen, a.Status)
	assert.InDelta(t, 0.42, a.YesPrice, 1e-9)
	assert.InDelta(t, 0.58, a.NoPrice, 1e-9)
	assert.InDelta(t, 0.44, a.YesAsk, 1e-9)
	assert.Equal(t, 5000.0, a.Volume)
	assert.Equal(t, 2026, a.ExpiresAt.Year())

	b := markets[1]
	assert.Equal(t, domain.MarketStatusSettled, b.Status)
	assert.Equal(t, domain.MarketResultNo, b.Result)
	assert.True(t, b.Resolved())
}

func TestExchange_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusBadRequest, domain.ErrInvalidOrder},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			ex, _ := newExchange(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"code":"x","message":"nope"}}`))
			})
			_, err := ex.Market(context.Background(), "A")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestExchange_PlaceLimitOrderInCents(t *testing.T) {
	var body map[string]any
	ex, _ := newExchange(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"order":{"order_id":"ord-1","status":"resting"}}`))
	})

	price := 0.37
	id, err := ex.PlaceOrder(context.Background(), domain.OrderRequest{
		MarketID:      "A",
		Side:          domain.SideNo,
		Action:        domain.OrderActionBuy,
		Type:          domain.OrderTypeLimit,
		Quantity:      3,
		LimitPrice:    &price,
		ClientOrderID: "c-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)
	assert.Equal(t, float64(37), body["no_price"])
	assert.Equal(t, float64(3), body["count"])
	assert.NotContains(t, body, "yes_price")
}

func TestExchange_MarketBuyCarriesMaxCost(t *testing.T) {
	var body map[string]any
	ex, _ := newExchange(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"order":{"order_id":"ord-2","status":"executed"}}`))
	})

	_, err := ex.PlaceOrder(context.Background(), domain.OrderRequest{
		MarketID: "A", Side: domain.SideYes, Action: domain.OrderActionBuy,
		Type: domain.OrderTypeMarket, Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(198), body["buy_max_cost"])
}

func TestExchange_RejectsZeroQuantity(t *testing.T) {
	ex, _ := newExchange(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	})
	_, err := ex.PlaceOrder(context.Background(), domain.OrderRequest{MarketID: "A", Side: domain.SideYes})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestExchange_PositionsSignGivesSide(t *testing.T) {
	ex, _ := newExchange(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"market_positions":[
			{"ticker":"A","position":4},{"ticker":"B","position":-2},{"ticker":"C","position":0}],"cursor":""}`))
	})

	pos, err := ex.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.Equal(t, domain.ExchangePosition{MarketID: "A", Quantity: 4, Side: domain.SideYes}, pos[0])
	assert.Equal(t, domain.ExchangePosition{MarketID: "B", Quantity: 2, Side: domain.SideNo}, pos[1])
}
