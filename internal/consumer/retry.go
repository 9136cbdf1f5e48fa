package consumer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"
)

// RetryPolicy bounds store write retries with jittered exponential backoff.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy builds a policy, filling in defaults for unset values.
func NewRetryPolicy(maxRetries int, base, max time.Duration) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	if max < base {
		max = base
	}
	return &RetryPolicy{maxRetries: maxRetries, baseDelay: base, maxDelay: max}
}

// ShouldRetry reports whether a failed attempt (0-based) may be retried.
// Cancellation is never retried.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Backoff returns the wait before retry number attempt+1: half the capped
// exponential delay plus up to the same again in jitter.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
