package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 5
	defaultBurst             = 10

	// limiterIdleTTL is how long an idle client's limiter is kept.
	limiterIdleTTL = 10 * time.Minute
)

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*clientLimiter
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &ipRateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*clientLimiter),
		now:      time.Now,
	}
}

// allow reports whether a request from ip may proceed now.
func (l *ipRateLimiter) allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	c, ok := l.limiters[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// cleanup drops limiters idle for longer than limiterIdleTTL.
func (l *ipRateLimiter) cleanup() {
	cutoff := l.now().Add(-limiterIdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, c := range l.limiters {
		if c.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// cleanupLoop runs cleanup periodically until the context is cancelled.
func (l *ipRateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}
