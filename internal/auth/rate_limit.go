package auth

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is a per-client sliding window over credential endpoints. State
// is process-local; each serverless instance counts on its own.
type RateLimiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hits      map[string][]time.Time
	maxMemory int
	now       func() time.Time
}

func NewRateLimiter(maxHits int, window time.Duration) *RateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RateLimiter{
		maxHits:   maxHits,
		window:    window,
		hits:      make(map[string][]time.Time),
		maxMemory: 5000,
		now:       time.Now,
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(clientKey(r), l.now().UTC())
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hits[key]
	kept := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			kept = append(kept, hit)
		}
	}

	if len(kept) >= l.maxHits {
		retryAfter := kept[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		l.hits[key] = kept
		return false, retryAfter
	}

	l.hits[key] = append(kept, now)

	if len(l.hits) > l.maxMemory {
		for k, v := range l.hits {
			if len(v) == 0 || v[len(v)-1].Before(threshold) {
				delete(l.hits, k)
			}
		}
	}

	return true, 0
}

// clientKey relies on chi's RealIP having rewritten RemoteAddr from proxy headers.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
