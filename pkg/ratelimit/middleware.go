package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/devicelimit/pkg/device"
)

// KeyFunc derives the bucket key for a request.
type KeyFunc func(r *http.Request) string

// ClientIPKey keys buckets on the peer address, ignoring forwarding headers.
func ClientIPKey(r *http.Request) string {
	return device.ClientIP(r)
}

// IPKey keys buckets on the client address as resolved by extractor.
func IPKey(extractor *device.IPExtractor) KeyFunc {
	return extractor.ClientIP
}

// Middleware limits requests per key and rejects the excess with 429.
type Middleware struct {
	name    string
	limiter *RateLimiter
	key     KeyFunc
}

// NewMiddleware builds a per-IP limiter named for log lines, e.g. "login".
// Use WithKeyFunc to key on something else.
func NewMiddleware(name string, capacity int, refillRate float64, ttl time.Duration) *Middleware {
	return &Middleware{
		name:    name,
		limiter: NewRateLimiter(capacity, refillRate, ttl),
		key:     ClientIPKey,
	}
}

func (m *Middleware) WithKeyFunc(key KeyFunc) *Middleware {
	m.key = key
	return m
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.key(r)
		if key != "" && !m.limiter.Allow(key) {
			m.rateLimitExceeded(w, r, key)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, key string) {
	slog.Warn("Rate limit exceeded",
		"type", m.name,
		"key", key,
		"path", r.URL.Path,
		"method", r.Method,
	)

	retry := int(math.Ceil(m.limiter.RetryAfter(key).Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	render.Status(r, http.StatusTooManyRequests)
	render.JSON(w, r, map[string]interface{}{
		"status":  "error",
		"error":   "rate_limit_exceeded",
		"message": "Too many requests. Please try again later.",
		"type":    m.name,
	})
}

func (m *Middleware) Reset(key string) {
	m.limiter.Reset(key)
}

func (m *Middleware) Stop() {
	m.limiter.Stop()
}

func (m *Middleware) GetStats() Stats {
	return m.limiter.GetStats()
}
