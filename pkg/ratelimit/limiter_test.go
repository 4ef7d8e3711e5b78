package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/devicelimit/pkg/device"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(3, 1.0/60.0, 0)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are independent")
}

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1.0, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))
	assert.InDelta(t, time.Second.Seconds(), rl.RetryAfter("k").Seconds(), 0.01)

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("k"))
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(1, 0.001, 0)
	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))
	rl.Reset("k")
	assert.True(t, rl.Allow("k"))
}

func TestRateLimiter_Evict(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, time.Hour)
	defer rl.Stop()
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(30 * time.Minute)
	rl.Allow("new")
	now = now.Add(45 * time.Minute)
	rl.evict()

	stats := rl.GetStats()
	assert.Equal(t, 1, stats.ActiveBuckets)
	assert.Equal(t, 1, stats.Capacity)
}

func TestMiddleware_Handler(t *testing.T) {
	m := NewMiddleware("login", 2, 1.0/60.0, 0)
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)

	rec := call("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retry, 0)
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

	assert.Equal(t, http.StatusOK, call("10.0.0.2").Code)

	m.Reset("10.0.0.1")
	assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)
}

func TestMiddleware_RotatingForwardedForSharesBucket(t *testing.T) {
	m := NewMiddleware("verify", 1, 0.0001, 0)
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := map[int]int{}
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/verify", nil)
		req.RemoteAddr = "198.51.100.9:4000"
		req.Header.Set("X-Forwarded-For", "203.0.113."+strconv.Itoa(i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[rec.Code]++
	}
	assert.Equal(t, map[int]int{http.StatusOK: 1, http.StatusTooManyRequests: 19}, codes)
}

func TestMiddleware_IPKeyBehindTrustedProxy(t *testing.T) {
	extractor, err := device.NewIPExtractor([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	m := NewMiddleware("verify", 1, 0.0001, 0).WithKeyFunc(IPKey(extractor))
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(remote, xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/verify", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.2:1234", "203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.2:1234", "1.2.3.4, 203.0.113.7"), "prepended hops are ignored")
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1234", "203.0.113.8"), "distinct clients behind the proxy get distinct buckets")
	assert.Equal(t, http.StatusOK, call("198.51.100.9:4000", "203.0.113.7"), "untrusted peers are keyed on their own address")
	assert.Equal(t, http.StatusTooManyRequests, call("198.51.100.9:4000", "203.0.113.99"))
}

func TestMiddleware_EmptyKeyPassesThrough(t *testing.T) {
	m := NewMiddleware("verify", 1, 0.0001, 0).WithKeyFunc(func(r *http.Request) string { return "" })
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verify", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
