package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kozaktomas/hijabist/internal/logger"
	"golang.org/x/time/rate"
)

type visitorLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

const maxRetryAfter = 60

// RateLimiter limits requests per visitor on endpoints that call the
// prediction backend. Visitors are keyed by session ID, falling back to the
// client IP.
type RateLimiter struct {
	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration

	mu       sync.Mutex
	visitors map[string]*visitorLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter allowing perSecond requests with the given
// burst and starts evicting idle visitors.
func NewRateLimiter(perSecond float64, burst int, cleanupInterval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limit:           rate.Limit(perSecond),
		burst:           burst,
		cleanupInterval: cleanupInterval,
		visitors:        make(map[string]*visitorLimiter),
		stopCh:          make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop halts the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := visitorKey(r)
			if !rl.limiter(key).Allow() {
				logger.WithField("visitor", key).Warn("rate limit exceeded")
				rl.writeLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Len returns the number of tracked visitors.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitorLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastAccess = time.Now()
	return v.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup forgets visitors idle for more than two cleanup intervals.
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.cleanupInterval * 2
	rl.mu.Lock()
	for key, v := range rl.visitors {
		if now.Sub(v.lastAccess) > ttl {
			delete(rl.visitors, key)
		}
	}
	rl.mu.Unlock()
}

func (rl *RateLimiter) writeLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "Too many requests. Please try again later.",
	})
}

// retryAfter is the wait in seconds until one more token arrives. A limit
// that never refills reports maxRetryAfter.
func (rl *RateLimiter) retryAfter() int {
	switch {
	case rl.limit <= 0:
		return maxRetryAfter
	case rl.limit == rate.Inf:
		return 1
	}
	return min(max(int(math.Ceil(1.0/float64(rl.limit))), 1), maxRetryAfter)
}

func visitorKey(r *http.Request) string {
	if s := GetSessionFromContext(r.Context()); s != nil {
		return "session:" + s.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
