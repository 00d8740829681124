package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cryptoctl/tradeengine/internal/apperr"
)

// RateLimiterConfig configures the per-key token bucket (spec.md §4.6).
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstLimit        int // max requests in a 10-second burst
}

// RateLimiter is a per-key token bucket limiter. Keys are typically
// "<exchange>:<endpoint-class>" so order placement and market-data
// polling against the same exchange don't starve each other.
type RateLimiter struct {
	cfg      RateLimiterConfig
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter builds a RateLimiter from config.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[key]; ok {
		return l
	}

	perSecond := rate.Limit(float64(rl.cfg.RequestsPerMinute) / 60.0)
	burst := rl.cfg.BurstLimit
	if burst <= 0 {
		burst = 1
	}
	l := rate.NewLimiter(perSecond, burst)
	rl.limiters[key] = l
	return l
}

// Allow reports whether a request for key may proceed right now,
// consuming a token if so. On depletion it returns a typed RATE_LIMIT
// error carrying the wait time the caller should honor before retrying.
func (rl *RateLimiter) Allow(key string) error {
	l := rl.limiterFor(key)
	if l.Allow() {
		return nil
	}
	reservation := l.Reserve()
	retryAfter := reservation.Delay()
	reservation.Cancel()
	return apperr.RateLimited(retryAfter.Seconds())
}

// Wait blocks until a token for key is available or ctx is done,
// unlike Allow which fails fast. Used by background loops (e.g. the
// hanging-order sweeper) that can afford to wait rather than back off.
func (rl *RateLimiter) Wait(key string, maxWait time.Duration) error {
	l := rl.limiterFor(key)
	reservation := l.Reserve()
	if !reservation.OK() {
		return apperr.New(apperr.RateLimit, "rate limiter cannot satisfy request")
	}
	delay := reservation.Delay()
	if delay > maxWait {
		reservation.Cancel()
		return apperr.RateLimited(delay.Seconds())
	}
	time.Sleep(delay)
	return nil
}
