package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RateLimiter is an in-memory sliding window limiter. It guards the admin
// endpoints that scan or rewrite many records.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewRateLimiter allows limit requests per key within window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// live returns the hits of key still inside the window, forgetting the
// rest. Callers hold mu.
func (rl *RateLimiter) live(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	hits := rl.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) == 0 {
		delete(rl.hits, key)
		return nil
	}
	rl.hits[key] = hits
	return hits
}

// take records a hit for key when the window has room. It reports the
// outcome together with the remaining budget and the time the oldest hit
// leaves the window.
func (rl *RateLimiter) take(key string, record bool) (ok bool, remaining int, reset time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	hits := rl.live(key, now)
	ok = len(hits) < rl.limit
	if ok && record {
		hits = append(hits, now)
		rl.hits[key] = hits
	}

	remaining = max(rl.limit-len(hits), 0)
	reset = now
	if len(hits) > 0 {
		reset = hits[0].Add(rl.window)
	}
	return ok, remaining, reset
}

// Allow records a request for key unless the key is over its limit
func (rl *RateLimiter) Allow(key string) bool {
	ok, _, _ := rl.take(key, true)
	return ok
}

// Remaining returns how many more requests key may make now
func (rl *RateLimiter) Remaining(key string) int {
	_, n, _ := rl.take(key, false)
	return n
}

// Reset returns when the oldest request of key leaves the window
func (rl *RateLimiter) Reset(key string) time.Time {
	_, _, at := rl.take(key, false)
	return at
}

// KeyFunc picks the rate limit key of a request
type KeyFunc func(r *http.Request) string

// ByOperator keys requests by the authenticated operator, falling back to
// the remote address
func ByOperator(r *http.Request) string {
	if operator, ok := ExtractOperator(r.Context()); ok && operator != "" {
		return "operator:" + operator
	}
	return "ip:" + r.RemoteAddr
}

// Limit returns middleware that answers 429 once a key exceeds its limit
func (rl *RateLimiter) Limit(key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, reset := rl.take(key(r), true)

			if !ok {
				wait := int64(math.Ceil(max(reset.Sub(rl.now()), 0).Seconds()))
				w.Header().Set("Retry-After", strconv.FormatInt(wait, 10))
				writeError(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Rate limit exceeded. Please try again later.", map[string]any{
					"retry_after": wait,
					"limit":       rl.limit,
					"request_id":  chimw.GetReqID(r.Context()),
				})
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			next.ServeHTTP(w, r)
		})
	}
}
