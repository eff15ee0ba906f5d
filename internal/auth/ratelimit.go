package auth

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/HMB-research/fql/internal/config"
)

const staleBucketAge = 3 * time.Minute

// Limiter throttles query traffic with one token bucket per caller.
// Authenticated callers are bucketed by their API key or bearer token so a
// shared gateway IP does not starve them; anonymous callers fall back to the
// client IP.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter builds a limiter from configuration. It returns nil when
// throttling is disabled; a nil limiter's Middleware passes requests through.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	if !cfg.IsEnabled() {
		return nil
	}
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 100
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
	}
}

// callerKey picks the bucket for a request: the presented API key first,
// then the Authorization header, then the usual proxy headers, then the raw
// remote address.
func callerKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return "key:" + key
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		return "tok:" + auth
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the originating client.
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return "ip:" + strings.TrimSpace(xff[:i])
		}
		return "ip:" + strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return "ip:" + xri
	}
	return "ip:" + r.RemoteAddr
}

// take fetches or creates the caller's bucket, pruning stale ones in
// passing.
func (l *Limiter) take(key string) *rate.Limiter {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > staleBucketAge {
			delete(l.buckets, k)
		}
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Middleware rejects callers that exceed their budget with 429 and a
// Retry-After hint.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := l.take(callerKey(r))

		if !limiter.Allow() {
			// Roughly one token-refill interval.
			retryAfter := 1
			if l.limit > 0 && l.limit < 1 {
				retryAfter = int(1.0/float64(l.limit)) + 1
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.burst))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","message":"Too many requests. Please try again later."}`))
			return
		}

		tokens := int(limiter.Tokens())
		if tokens < 0 {
			tokens = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(tokens))

		next.ServeHTTP(w, r)
	})
}
