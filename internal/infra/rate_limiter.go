package infra

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by all REST calls of one client.
// Thread-safe.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
// maxRequests: maximum burst size
// perSecond: refill rate (requests per second)
func NewRateLimiter(maxRequests int, perSecond float64) *RateLimiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{lim: rate.NewLimiter(limit, maxRequests)}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.lim.Wait(ctx)
}

// TryAcquire attempts to acquire a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	return r.lim.Allow()
}
