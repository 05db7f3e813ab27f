package coordination

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy describes exponential backoff with jitter for retrying
// transient coordination-layer failures — a dropped watch stream, a
// momentarily unreachable etcd member. It is not used for task-level
// retries: the protocol only re-runs a failed task via an explicit
// controller-driven `retry` transition, never automatically.
type BackoffPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	JitterFactor   float64
}

// DefaultBackoffPolicy returns sensible defaults for reconnecting to etcd.
func DefaultBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// Delay calculates the backoff duration for a given attempt number (0-based).
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.InitialBackoff
	}

	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	if p.JitterFactor > 0 {
		jitter := backoff * p.JitterFactor * (rand.Float64()*2 - 1)
		backoff += jitter
	}

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// Retry calls fn until it succeeds, ctx is canceled, or maxAttempts is
// exhausted (0 means unlimited). Intended for wrapping watch-channel
// reconnects and other operations that should survive a blip without
// surfacing an error to the caller.
func Retry(ctx context.Context, policy *BackoffPolicy, maxAttempts int, fn func() error) error {
	if policy == nil {
		policy = DefaultBackoffPolicy()
	}

	var lastErr error
	for attempt := 0; maxAttempts == 0 || attempt < maxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Delay(attempt)):
		}
	}
	return lastErr
}
