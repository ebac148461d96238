package partition

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds the writer's retry behavior. Exhaustion fails closed;
// the caller decides whether to re-queue or surface upstream.
type RetryPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	Factor      float64
	MaxAttempts int
	Jitter      bool
}

// DefaultRetryPolicy returns the built-in policy: 5 attempts, exponential
// with full jitter, capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        200 * time.Millisecond,
		Cap:         5 * time.Second,
		Factor:      2.0,
		MaxAttempts: 5,
		Jitter:      true,
	}
}

// Delay returns the sleep before the given 1-based retry attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.Base <= 0 {
		return 0
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 2.0
	}
	d := time.Duration(float64(p.Base) * math.Pow(factor, float64(attempt-1)))
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	if p.Jitter && d > 0 {
		d = time.Duration(rand.Int63n(int64(d)) + 1)
	}
	return d
}
