package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeysAreNamespaced(t *testing.T) {
	assert.Equal(t, "kalshibot:price:KXBTC-25", priceKey("KXBTC-25"))
	assert.Equal(t, "kalshibot:lock:trading-cycle", lockKey("trading-cycle"))
	assert.Equal(t, "kalshibot:ratelimit:kalshi", rateLimitKey("kalshi"))
}

func TestPollInterval(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, pollInterval(10, time.Second))
	assert.Equal(t, minWaitPoll, pollInterval(1000, time.Second))
	assert.Equal(t, maxWaitPoll, pollInterval(1, time.Minute))
	assert.Equal(t, maxWaitPoll, pollInterval(0, time.Second))
}

func TestParsePriceHash(t *testing.T) {
	price, ts, ok := parsePriceHash(map[string]string{"price": "0.42", "ts": "1700000000000000000"})
	assert.True(t, ok)
	assert.InDelta(t, 0.42, price, 1e-12)
	assert.Equal(t, int64(1700000000000000000), ts.UnixNano())

	_, _, ok = parsePriceHash(map[string]string{"ts": "1"})
	assert.False(t, ok)

	_, _, ok = parsePriceHash(map[string]string{"price": "abc"})
	assert.False(t, ok)
}
