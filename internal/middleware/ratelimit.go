package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter applies per-IP token bucket limiting to incoming requests.
// One rate.Limiter is tracked per client IP, capped to avoid memory
// exhaustion from address churn.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*ipLimiter
	rps        rate.Limit
	burst      int
	maxTracked int
}

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter with the given sustained rate
// (requests per second) and burst size.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*ipLimiter),
		rps:        rate.Limit(rps),
		burst:      burst,
		maxTracked: 100000,
	}
}

// Handler returns HTTP middleware that enforces per-IP rate limiting.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim, tracked := rl.limiterFor(realIP(r))

		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

		if !tracked || !lim.Allow() {
			retryAfter := 1.0
			if tracked {
				retryAfter = 1.0 / float64(rl.rps)
			}
			w.Header().Set("Retry-After", strconv.FormatFloat(math.Ceil(retryAfter), 'f', 0, 64))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// limiterFor returns the bucket for an IP, creating it when first seen.
// tracked is false when the map is at capacity and the IP is unknown;
// such requests are rejected rather than given an unmetered pass.
func (rl *RateLimiter) limiterFor(ip string) (lim *rate.Limiter, tracked bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if entry, ok := rl.limiters[ip]; ok {
		entry.lastSeen = now
		return entry.lim, true
	}
	if len(rl.limiters) >= rl.maxTracked {
		return nil, false
	}
	entry := &ipLimiter{lim: rate.NewLimiter(rl.rps, rl.burst), lastSeen: now}
	rl.limiters[ip] = entry
	return entry.lim, true
}

// StartCleanup spawns a goroutine that removes idle buckets every interval.
// A bucket is idle if its IP has not been seen for longer than maxIdle.
// Returns a cancel function that stops the cleanup goroutine.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// Len returns the number of tracked IP buckets (for metrics and testing).
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// realIP keys the bucket on RemoteAddr only. X-Forwarded-For and
// X-Real-Ip are attacker-controlled, so honoring them would let one
// client mint unlimited buckets.
func realIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
