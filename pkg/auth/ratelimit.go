package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/engine"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per caller. Default: 60
	RequestsPerMinute float64

	// BurstSize is how many requests may arrive at once. Default: 10
	BurstSize int
}

// RateLimiter limits requests per caller with one token bucket each. The
// caller is the authenticated user, or the session when there is none.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 10
	}
	return &RateLimiter{
		limit:    rate.Limit(config.RequestsPerMinute / 60),
		burst:    config.BurstSize,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow takes one token for key. When none is left it returns false and how
// long until the next one.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	res := e.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, 0
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup forgets callers idle for longer than idle.
func (l *RateLimiter) Cleanup(idle time.Duration) {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
		}
	}
}

// Len returns the number of tracked callers.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware rejects requests over the limit with CodeRateLimited. The
// handshake and ping are not counted.
func (l *RateLimiter) Middleware() engine.Middleware {
	return func(next engine.HandlerFunc) engine.HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (interface{}, error) {
			if req.Method == protocol.MethodInitialize || req.Method == protocol.MethodPing {
				return next(ctx, req)
			}
			if ok, retry := l.Allow(callerKey(ctx)); !ok {
				return nil, mcperrors.Application(CodeRateLimited, "rate limit exceeded",
					map[string]interface{}{"retryAfterMs": retry.Milliseconds()})
			}
			return next(ctx, req)
		}
	}
}

func callerKey(ctx context.Context) string {
	if user, ok := UserFromContext(ctx); ok {
		return "user:" + user.ID
	}
	if conn, ok := engine.FromContext(ctx); ok {
		return "session:" + conn.Session().ID()
	}
	return "anonymous"
}
