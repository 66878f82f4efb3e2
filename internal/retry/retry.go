// Package retry runs an operation a bounded number of times with a fixed or
// exponential pause between attempts.
//
// It is used for two very different loops: clip duration probing (fixed
// 500ms pause, 5 attempts) and result delivery to remote sinks
// (exponential backoff capped at MaxDelay).
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrExhausted is returned (wrapped together with the last attempt error)
// when every attempt failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Config contains retry timing.
type Config struct {
	MaxAttempts int           // Total attempts, including the first one (min 1)
	Delay       time.Duration // Pause after the first failed attempt
	MaxDelay    time.Duration // Cap for exponential pauses (0 = no cap)
	Exponential bool          // Double the pause after every failed attempt
}

// Fixed returns a config with a constant pause between attempts.
func Fixed(attempts int, delay time.Duration) Config {
	return Config{
		MaxAttempts: attempts,
		Delay:       delay,
	}
}

// DefaultBackoff returns the exponential schedule used for remote delivery:
// 1s, 2s, 4s, 8s between 5 attempts, capped at 30s.
func DefaultBackoff() Config {
	return Config{
		MaxAttempts: 5,
		Delay:       1 * time.Second,
		MaxDelay:    30 * time.Second,
		Exponential: true,
	}
}

// Func is one attempt. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do executes fn until it succeeds, returns a Permanent error, the context
// is cancelled or MaxAttempts is reached.
func Do(ctx context.Context, cfg Config, fn Func) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		delay := Backoff(attempt, cfg)
		slog.Debug("retry: attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w (%d attempts): %w", ErrExhausted, attempts, lastErr)
}

// Backoff returns the pause that follows a failed attempt.
//
// Fixed:       Delay
// Exponential: min(Delay * 2^(attempt-1), MaxDelay)
func Backoff(attempt int, cfg Config) time.Duration {
	if !cfg.Exponential || attempt < 1 {
		return cfg.Delay
	}

	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	delay := cfg.Delay * time.Duration(1<<uint(shift))

	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
