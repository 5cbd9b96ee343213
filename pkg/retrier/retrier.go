// Package retrier implements exponential backoff with jitter for
// reconnect-style loops.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 1 * time.Minute
	defaultMultiplier      = 2.0
	defaultJitter          = 0.2
)

// Retrier produces a growing sequence of wait intervals. Zero value is not
// usable; construct with New.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	jitter          float64
	attempts        int
	current         time.Duration
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the first wait interval.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) { r.initialInterval = d }
}

// WithMaxInterval caps the wait interval.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) { r.maxInterval = d }
}

// New creates a Retrier with defaults and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		jitter:          defaultJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current = r.initialInterval
	return r
}

// Attempts returns how many waits have elapsed since the last Reset.
func (r *Retrier) Attempts() int {
	return r.attempts
}

// Reset restarts the backoff sequence after a success.
func (r *Retrier) Reset() {
	r.current = r.initialInterval
	r.attempts = 0
}

// Wait sleeps for the next backoff interval or until ctx is cancelled.
func (r *Retrier) Wait(ctx context.Context) error {
	jitter := (rand.Float64()*2 - 1) * r.jitter * float64(r.current)
	sleep := time.Duration(float64(r.current) + jitter)
	if sleep < 0 {
		sleep = 0
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleep):
	}

	r.attempts++
	r.current = time.Duration(float64(r.current) * r.multiplier)
	if r.current > r.maxInterval {
		r.current = r.maxInterval
	}
	return nil
}
