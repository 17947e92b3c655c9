// ABOUTME: Exponential backoff policy for retried requests
// ABOUTME: delay(n) = min(base * factor^(n-1), maxDelay)

package api

import (
	"math"
	"time"
)

// RetryPolicy controls automatic re-attempts for retryable failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the documented defaults: 3 attempts, 1s base
// delay, factor 2, capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      2,
		MaxDelay:    30 * time.Second,
	}
}

// Delay returns the backoff before retry n (1-based: the delay after the
// n-th failed attempt).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
