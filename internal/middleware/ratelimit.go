// Package middleware provides the gin middleware of the auditseal API.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// maxBuckets caps the number of tracked client IPs.
	maxBuckets = 100_000

	bucketSweepInterval = 5 * time.Minute
	bucketIdleTTL       = 10 * time.Minute
)

// RateLimiter is a per-IP token bucket limiter. Rejected requests get a
// Retry-After header with the wait until the next token.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
	now     func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter creates a RateLimiter with the given requests per second and
// burst size. Idle buckets are swept until ctx is cancelled.
func NewRateLimiter(ctx context.Context, ratePerSec, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(ratePerSec),
		burst:   float64(burst),
		now:     time.Now,
	}
	go rl.sweep(ctx)

	return rl
}

func (rl *RateLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(bucketSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip, b := range rl.buckets {
				if now.Sub(b.seen) > bucketIdleTTL {
					delete(rl.buckets, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// take spends one token for ip. When none is left it returns the wait until
// the next one; full reports that the bucket table has no room for ip.
func (rl *RateLimiter) take(ip string) (ok bool, wait time.Duration, full bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	b, exists := rl.buckets[ip]
	if !exists {
		if len(rl.buckets) >= maxBuckets {
			return false, 0, true
		}
		b = &bucket{tokens: rl.burst, seen: now}
		rl.buckets[ip] = b
	}

	b.tokens = math.Min(rl.burst, b.tokens+now.Sub(b.seen).Seconds()*rl.rate)
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0, false
	}

	return false, time.Duration((1 - b.tokens) / rl.rate * float64(time.Second)), false
}

// Handler returns Gin middleware that applies rate limiting per client IP.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// ClientIP ignores forwarding headers because the router trusts no proxies.
		ok, wait, full := rl.take(c.ClientIP())

		switch {
		case full:
			respondError(c, http.StatusTooManyRequests, "rate_limited", "too many clients")
		case !ok:
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			respondError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		default:
			c.Next()
		}
	}
}
