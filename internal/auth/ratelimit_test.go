package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMB-research/fql/internal/config"
)

func limiterConfig(perMinute, burst int) config.RateLimitConfig {
	return config.RateLimitConfig{PerMinute: perMinute, Burst: burst}
}

func serveLimited(l *Limiter, decorate func(*http.Request)) *httptest.ResponseRecorder {
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest("POST", "/api/v1/query", nil)
	req.RemoteAddr = "192.0.2.1:12345"
	if decorate != nil {
		decorate(req)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestLimiter_AllowsBurst(t *testing.T) {
	l := NewLimiter(limiterConfig(600, 5))
	for i := 0; i < 5; i++ {
		rr := serveLimited(l, nil)
		assert.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}
}

func TestLimiter_BlocksExcessRequests(t *testing.T) {
	l := NewLimiter(limiterConfig(60, 2))
	for i := 0; i < 2; i++ {
		rr := serveLimited(l, nil)
		require.Equal(t, http.StatusOK, rr.Code, "burst request %d", i+1)
	}

	rr := serveLimited(l, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
}

func TestLimiter_BucketsByAPIKey(t *testing.T) {
	l := NewLimiter(limiterConfig(60, 1))

	// Two callers behind the same IP, distinguished by API key.
	rr := serveLimited(l, func(r *http.Request) { r.Header.Set("X-API-Key", "key-a") })
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = serveLimited(l, func(r *http.Request) { r.Header.Set("X-API-Key", "key-a") })
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = serveLimited(l, func(r *http.Request) { r.Header.Set("X-API-Key", "key-b") })
	assert.Equal(t, http.StatusOK, rr.Code, "a throttled key must not starve other callers")
}

func TestLimiter_AnonymousCallersBucketByIP(t *testing.T) {
	l := NewLimiter(limiterConfig(60, 1))

	rr := serveLimited(l, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = serveLimited(l, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// A different client IP gets its own bucket.
	rr = serveLimited(l, func(r *http.Request) { r.RemoteAddr = "192.0.2.2:12345" })
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLimiter_RespectsForwardingHeaders(t *testing.T) {
	l := NewLimiter(limiterConfig(60, 1))

	forwarded := func(r *http.Request) {
		r.RemoteAddr = "10.0.0.1:12345" // proxy
		r.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	}
	rr := serveLimited(l, forwarded)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = serveLimited(l, forwarded)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = serveLimited(l, func(r *http.Request) {
		r.RemoteAddr = "10.0.0.1:12345"
		r.Header.Set("X-Real-IP", "203.0.113.9")
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLimiter_DisabledPassesThrough(t *testing.T) {
	disabled := false
	l := NewLimiter(config.RateLimitConfig{Enabled: &disabled})
	require.Nil(t, l)

	for i := 0; i < 50; i++ {
		rr := serveLimited(l, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestLimiter_ZeroConfigFallsBackToDefaults(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{})
	require.NotNil(t, l)
	rr := serveLimited(l, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
}
