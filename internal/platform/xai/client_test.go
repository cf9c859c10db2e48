package xai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/platform/xai"
)

func TestComplete_ReturnsContentAndTokens(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"action\":\"BUY\"}"}}],"usage":{"total_tokens":1500}}`))
	}))
	defer srv.Close()

	c := xai.NewClient(xai.Config{BaseURL: srv.URL + "/v1", APIKey: "secret", Model: "grok-test"})
	out, err := c.Complete(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"BUY"}`, out.Content)
	assert.Equal(t, 1500, out.TotalTokens)
	assert.Equal(t, "grok-test", got["model"])
	assert.Len(t, got["messages"], 2)
}

func TestComplete_MissingUsageFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	out, err := xai.NewClient(xai.Config{BaseURL: srv.URL}).Complete(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, 1000, out.TotalTokens)
}

func TestComplete_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		code int
		body string
		want error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, domain.ErrRateLimited},
		{"resource exhausted", http.StatusTooManyRequests, `{"error":{"message":"RESOURCE_EXHAUSTED: quota"}}`, domain.ErrResourceExhausted},
		{"unauthorized", http.StatusUnauthorized, `{}`, domain.ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := xai.NewClient(xai.Config{BaseURL: srv.URL}).Complete(context.Background(), "", "hi")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestComplete_EmptyChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := xai.NewClient(xai.Config{BaseURL: srv.URL}).Complete(context.Background(), "", "hi")
	assert.Error(t, err)
}
