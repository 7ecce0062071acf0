package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// KeyFunc extracts the limiter key; the client IP by default.
	KeyFunc   func(c *gin.Context) string
	SkipPaths []string
	// IdleTimeout drops limiters not used for this long.
	IdleTimeout time.Duration
}

// DefaultRateLimitConfig returns the limits used when only a rate is set.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		SkipPaths:         []string{"/healthz", "/readyz", "/metrics"},
		IdleTimeout:       5 * time.Minute,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key.
type KeyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	visitors map[string]*visitor
	now      func() time.Time
}

// NewKeyedLimiter builds a KeyedLimiter.
func NewKeyedLimiter(rps float64, burst int, idle time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     idle,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow spends one token for key. remaining is the whole tokens left.
func (l *KeyedLimiter) Allow(key string) (ok bool, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, found := l.visitors[key]
	if !found {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.sweep(now)

	ok = v.limiter.AllowN(now, 1)
	remaining = int(math.Max(0, math.Floor(v.limiter.TokensAt(now))))
	return ok, remaining
}

// sweep drops idle visitors. Callers hold mu.
func (l *KeyedLimiter) sweep(now time.Time) {
	if l.idle <= 0 {
		return
	}
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, k)
		}
	}
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// RateLimit rejects requests over the per-key rate with 429.
func RateLimit(limiter *KeyedLimiter, config RateLimitConfig) gin.HandlerFunc {
	skipSet := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skipSet[p] = true
	}
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	limit := strconv.Itoa(config.BurstSize)

	return func(c *gin.Context) {
		if skipSet[c.Request.URL.Path] {
			c.Next()
			return
		}
		ok, remaining := limiter.Allow(keyFunc(c))
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMITED",
				"message": "rate limit exceeded, please retry later",
			})
			return
		}
		c.Next()
	}
}
