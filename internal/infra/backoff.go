package infra

import (
	"time"
)

const (
	// Standard backoff constants
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// Reconnect backoff modes.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// CalculateBackoff returns the exponential backoff duration for a given retry count.
// Logic: baseDelay * 2^retryCount, capped at maxDelay.
// If retryCount is negative, it returns baseDelay.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		return baseDelay
	}
	// 2^30 seconds is far past maxDelay
	if retryCount > 30 {
		return maxDelay
	}

	backoff := baseDelay * time.Duration(1<<retryCount)
	if backoff > maxDelay {
		return maxDelay
	}
	return backoff
}

// ReconnectPolicy is the Program Loop's wait between reconnect attempts.
// The zero MaxAttempts retries forever: a revoked key or a dead host then
// loops until the operator stops the process.
type ReconnectPolicy struct {
	Mode        string
	Wait        time.Duration // fixed mode delay
	MaxAttempts int
}

// NewReconnectPolicy builds the policy from session settings.
func NewReconnectPolicy(cfg SessionConfig) ReconnectPolicy {
	return ReconnectPolicy{Mode: cfg.Backoff, Wait: cfg.ReconnectDelay, MaxAttempts: cfg.MaxReconnects}
}

// Delay returns the wait before attempt (1-based) and whether to try at all.
func (p ReconnectPolicy) Delay(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return 0, false
	}
	if p.Mode == BackoffExponential {
		return CalculateBackoff(attempt - 1), true
	}
	return p.Wait, true
}
