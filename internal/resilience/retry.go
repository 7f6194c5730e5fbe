// Package resilience holds the retry and circuit breaker primitives used by
// the external service clients and the write verification loop.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Sleeper pauses for d or until ctx is done. Tests inject a recording fake
// so retry loops run without wall-clock delay.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff controls exponential retry of API calls.
type Backoff struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction of 0.25 spreads each delay by ±25%.
	JitterFraction float64

	// ShouldRetry defaults to IsTransient.
	ShouldRetry func(err error) bool
	OnRetry     func(attempt int, err error)
	Sleep       Sleeper
}

// DefaultBackoff returns the backoff used for LLM and search calls.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// BackoffFromConfig builds a Backoff from flat config values, keeping
// defaults for anything non-positive.
func BackoffFromConfig(maxAttempts, initialBackoffMs int) Backoff {
	b := DefaultBackoff()
	if maxAttempts > 0 {
		b.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		b.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	return b
}

func (b Backoff) normalized() Backoff {
	def := DefaultBackoff()
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = def.MaxAttempts
	}
	if b.InitialBackoff <= 0 {
		b.InitialBackoff = def.InitialBackoff
	}
	if b.MaxBackoff <= 0 {
		b.MaxBackoff = def.MaxBackoff
	}
	if b.Multiplier <= 0 {
		b.Multiplier = def.Multiplier
	}
	if b.JitterFraction < 0 {
		b.JitterFraction = 0
	}
	if b.ShouldRetry == nil {
		b.ShouldRetry = IsTransient
	}
	if b.Sleep == nil {
		b.Sleep = SleepContext
	}
	return b
}

func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.InitialBackoff) * math.Pow(b.Multiplier, float64(attempt))
	d = math.Min(d, float64(b.MaxBackoff))
	if b.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * b.JitterFraction
	}
	return time.Duration(math.Max(d, 0))
}

// Do runs fn, retrying transient failures with exponential backoff.
func Do(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that return a value.
func DoVal[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < b.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !b.ShouldRetry(err) || attempt == b.MaxAttempts-1 {
			break
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt+1, err)
		}
		if b.Sleep(ctx, b.delay(attempt)) != nil {
			break
		}
	}
	return zero, lastErr
}

// FixedRetry retries an operation a bounded number of times with a constant
// pause. Unlike Backoff it retries on every error; the caller decides what
// counts as failure.
type FixedRetry struct {
	MaxRetries int
	Delay      time.Duration
	Sleep      Sleeper
	OnRetry    func(retry int, err error)
}

// Do calls fn up to 1+MaxRetries times. fn receives the zero-based attempt.
// It returns how many retries were spent and the last error, if any.
func (r FixedRetry) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var err error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			if r.OnRetry != nil {
				r.OnRetry(attempt, err)
			}
			if serr := sleep(ctx, r.Delay); serr != nil {
				return attempt - 1, err
			}
		}
		if err = fn(ctx, attempt); err == nil {
			return attempt, nil
		}
	}
	return r.MaxRetries, err
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
