// ratelimit.go - Per-client token bucket for the read surface.
package main

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// rateLimiter is a simple token bucket.
type rateLimiter struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	lastRefill   time.Time
	refillPeriod time.Duration
}

func newRateLimiter(maxTokens, refillRate int, refillPeriod time.Duration) *rateLimiter {
	return &rateLimiter{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		lastRefill:   time.Now(),
		refillPeriod: refillPeriod,
	}
}

// allow consumes a token if one is available.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	refillCount := int(now.Sub(rl.lastRefill) / rl.refillPeriod)
	if refillCount > 0 {
		rl.tokens += refillCount * rl.refillRate
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// clientRateLimiter keeps one bucket per client IP.
type clientRateLimiter struct {
	mu           sync.Mutex
	limiters     map[string]*rateLimiter
	maxTokens    int
	refillRate   int
	refillPeriod time.Duration
}

func newClientRateLimiter(maxTokens, refillRate int, refillPeriod time.Duration) *clientRateLimiter {
	return &clientRateLimiter{
		limiters:     make(map[string]*rateLimiter),
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
	}
}

func (crl *clientRateLimiter) allow(clientIP string) bool {
	crl.mu.Lock()
	limiter, exists := crl.limiters[clientIP]
	if !exists {
		limiter = newRateLimiter(crl.maxTokens, crl.refillRate, crl.refillPeriod)
		crl.limiters[clientIP] = limiter
	}
	crl.mu.Unlock()
	return limiter.allow()
}

// middleware rejects over-limit clients with 429.
func (crl *clientRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !crl.allow(host) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
