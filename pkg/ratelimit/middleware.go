package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"smssim/pkg/metrics"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// Limiters holds one token bucket per client IP. Idle buckets are evicted
// by the cleanup loop.
type Limiters struct {
	config RateLimitConfig
	now    func() time.Time

	mu      sync.RWMutex
	clients map[string]*clientLimiter
}

func NewLimiters(config RateLimitConfig) *Limiters {
	return &Limiters{
		config:  config,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

func (l *Limiters) get(ip string) *clientLimiter {
	l.mu.RLock()
	cl, ok := l.clients[ip]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		cl, ok = l.clients[ip]
		if !ok {
			cl = &clientLimiter{
				limiter: rate.NewLimiter(rate.Limit(l.config.RPS), l.config.Burst),
			}
			l.clients[ip] = cl
		}
		l.mu.Unlock()
	}

	cl.mu.Lock()
	cl.lastSeen = l.now()
	cl.mu.Unlock()
	return cl
}

// Evict drops limiters not seen for longer than MaxAge and returns how
// many were removed.
func (l *Limiters) Evict() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for ip, cl := range l.clients {
		cl.mu.Lock()
		lastSeen := cl.lastSeen
		cl.mu.Unlock()
		if now.Sub(lastSeen) > l.config.MaxAge {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

func (l *Limiters) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clients)
}

// RunCleanup evicts idle limiters every CleanupInterval until ctx is done.
func (l *Limiters) RunCleanup(ctx context.Context) {
	if l.config.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Evict()
		}
	}
}

func (l *Limiters) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		cl := l.get(clientIP)

		if !cl.limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Limit", formatRate(l.config.RPS))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			c.Abort()
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()

		c.Header("X-RateLimit-Limit", formatRate(l.config.RPS))
		remaining := int(math.Floor(cl.limiter.Tokens()))
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

// RateLimitMiddleware builds a per-IP limiter whose cleanup loop stops
// with ctx.
func RateLimitMiddleware(ctx context.Context, config RateLimitConfig) gin.HandlerFunc {
	l := NewLimiters(config)
	go l.RunCleanup(ctx)
	return l.Middleware()
}

func formatRate(rps float64) string {
	return strconv.FormatFloat(rps, 'f', -1, 64)
}
