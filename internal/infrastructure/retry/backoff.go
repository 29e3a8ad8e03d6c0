// Package retry retries warehouse operations that fail for transient reasons
// with bounded exponential backoff.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the wait before each retry.
type Backoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	maxAttempts  int     // retries after the first attempt, 0 disables retrying
	jitter       float64 // 0.1 means +/- 10%
	random       func() float64
}

// BackoffOption configures a Backoff.
type BackoffOption func(*Backoff)

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) BackoffOption {
	return func(b *Backoff) {
		b.initialDelay = d
	}
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *Backoff) {
		b.maxDelay = d
	}
}

// WithMultiplier sets the growth factor between retries.
func WithMultiplier(m float64) BackoffOption {
	return func(b *Backoff) {
		b.multiplier = m
	}
}

// WithJitter sets the jitter fraction (0.0-1.0).
func WithJitter(j float64) BackoffOption {
	return func(b *Backoff) {
		b.jitter = j
	}
}

// WithRandom replaces the [0, 1) random source used for jitter.
func WithRandom(f func() float64) BackoffOption {
	return func(b *Backoff) {
		b.random = f
	}
}

// NewBackoff creates an exponential backoff allowing maxAttempts retries.
func NewBackoff(maxAttempts int, opts ...BackoffOption) *Backoff {
	b := &Backoff{
		initialDelay: 100 * time.Millisecond,
		maxDelay:     2 * time.Second,
		multiplier:   2.0,
		maxAttempts:  max(maxAttempts, 0),
		jitter:       0.1,
		random:       rand.Float64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Delay returns the wait before retry number attempt (0-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt))
	if limit := float64(b.maxDelay); delay > limit {
		delay = limit
	}

	if b.jitter > 0 {
		// Map [0, 1) to [-1, 1)
		offset := (b.random() - 0.5) * 2.0
		delay *= 1.0 + b.jitter*offset
	}

	return time.Duration(delay)
}

// MaxAttempts returns the number of retries allowed after the first attempt.
func (b *Backoff) MaxAttempts() int {
	return b.maxAttempts
}
