package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter paces calls against an upstream API
type Limiter interface {
	// Wait blocks until the next call may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset forgets any pacing state
	Reset()
}

// FixedDelay waits a constant gap on every call. Callers invoke it between
// requests, never before the first one.
type FixedDelay struct {
	delay time.Duration
}

// NewFixedDelay creates a limiter with the given gap; a non-positive delay never blocks
func NewFixedDelay(delay time.Duration) *FixedDelay {
	return &FixedDelay{delay: delay}
}

// Delay returns the configured gap
func (f *FixedDelay) Delay() time.Duration {
	return f.delay
}

func (f *FixedDelay) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.delay <= 0 {
		return nil
	}

	timer := time.NewTimer(f.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FixedDelay) Reset() {}

// TokenBucket allows bursts of up to capacity calls per refill period
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow takes a token if one is available
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if time.Since(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = time.Now()
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		untilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if untilRefill <= 0 {
			untilRefill = 10 * time.Millisecond
		}

		timer := time.NewTimer(untilRefill)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return nil
}

func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
