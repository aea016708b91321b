package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	requests int
	window   time.Duration
}

// NewRateLimiter allows requests per window for each client, bursting up to requests.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		requests: requests,
		window:   window,
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[ip]
	if !ok {
		perSecond := float64(rl.requests) / rl.window.Seconds()
		l = rate.NewLimiter(rate.Limit(perSecond), rl.requests)
		rl.limiters[ip] = l
	}
	return l
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}

// Prune drops every tracked client. Buckets refill on demand, so a cleared
// entry only forgives that client's spent tokens.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	rl.limiters = make(map[string]*rate.Limiter)
	rl.mu.Unlock()
}

// RunCleanup prunes the table every interval until done is closed.
func (rl *RateLimiter) RunCleanup(done <-chan struct{}, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			rl.Prune()
		}
	}
}

// Limiter exposes the sign-in limiter so the caller can run its cleanup.
func (h *Handler) Limiter() *RateLimiter { return h.limiter }
