// internal/auth/ratelimit.go
package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client. Buckets refill at
// perMinute/60 tokens per second and hold up to burst tokens.
type RateLimiter struct {
	clients   map[string]*clientLimiter
	perMinute int
	burst     int
	idleAfter time.Duration
	mutex     sync.Mutex
	now       func() time.Time
}

// NewRateLimiter creates a limiter. A perMinute of zero or less disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		clients:   make(map[string]*clientLimiter),
		perMinute: perMinute,
		burst:     burst,
		idleAfter: 5 * time.Minute,
		now:       time.Now,
	}
}

// Limit returns the configured requests per minute.
func (rl *RateLimiter) Limit() int {
	return rl.perMinute
}

// Allow reports whether clientID may make a request now.
func (rl *RateLimiter) Allow(clientID string) bool {
	if rl.perMinute <= 0 {
		return true
	}

	now := rl.now()

	rl.mutex.Lock()
	client, exists := rl.clients[clientID]
	if !exists {
		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60.0), rl.burst),
		}
		rl.clients[clientID] = client
	}
	client.lastSeen = now
	rl.mutex.Unlock()

	return client.limiter.AllowN(now, 1)
}

// cleanup removes clients idle for longer than idleAfter. An idle bucket is
// full again, so dropping it changes nothing for the client.
func (rl *RateLimiter) cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := rl.now().Add(-rl.idleAfter)
	for clientID, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, clientID)
		}
	}
}

// Run evicts idle clients until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.idleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// Stats returns rate limiting statistics
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	return map[string]interface{}{
		"total_clients":       len(rl.clients),
		"requests_per_minute": rl.perMinute,
		"burst":               rl.burst,
	}
}
