// Package retry runs AWS calls that are expected to fail for a while after a
// dependent resource is created (new accounts, new roles, new buckets).
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	factoryerrors "github.com/mcolatosti/AWSAccountFactory/internal/errors"
)

// Policy describes how an operation is retried.
type Policy struct {
	// Name identifies the operation in logs
	Name string

	// MaxAttempts caps the number of attempts. Zero means retry until the
	// operation succeeds or the context is cancelled.
	MaxAttempts int

	// InitialDelay is waited once before the first attempt
	InitialDelay time.Duration

	// Interval is the wait between attempts
	Interval time.Duration

	// Multiplier grows Interval after each failure; values <= 1 keep it fixed
	Multiplier float64

	// MaxInterval bounds Interval growth when Multiplier > 1
	MaxInterval time.Duration
}

// Unbounded reports whether the policy has no attempt ceiling
func (p Policy) Unbounded() bool {
	return p.MaxAttempts <= 0
}

// WithoutDelay returns a copy of the policy that never sleeps
func (p Policy) WithoutDelay() Policy {
	p.InitialDelay = 0
	p.Interval = 0
	p.MaxInterval = 0
	return p
}

// Result is the outcome of Do.
type Result[T any] struct {
	Value    T
	Attempts int

	// Err is the last error observed, nil on success
	Err error

	// Exhausted is set when MaxAttempts was reached without success
	Exhausted bool
}

// OK reports whether the operation eventually succeeded
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Cause returns nil on success, otherwise an error suitable for returning to
// a caller. Exhausted results wrap ErrRetriesExhausted.
func (r Result[T]) Cause() error {
	switch {
	case r.Err == nil:
		return nil
	case r.Exhausted:
		return fmt.Errorf("%w after %d attempts: %w", factoryerrors.ErrRetriesExhausted, r.Attempts, r.Err)
	default:
		return r.Err
	}
}

// Operation is invoked once per attempt; attempt starts at 1
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Do runs op until it succeeds, returns a permanent error, the policy runs out
// of attempts, or ctx is cancelled.
func Do[T any](ctx context.Context, policy Policy, op Operation[T]) Result[T] {
	logger := zerolog.Ctx(ctx)

	var result Result[T]
	if err := Sleep(ctx, policy.InitialDelay); err != nil {
		result.Err = err
		return result
	}

	interval := policy.Interval
	for attempt := 1; policy.Unbounded() || attempt <= policy.MaxAttempts; attempt++ {
		value, err := op(ctx, attempt)
		result.Attempts = attempt
		if err == nil {
			result.Value = value
			result.Err = nil
			return result
		}
		result.Err = err

		if IsPermanent(err) {
			return result
		}

		logger.Warn().
			Err(err).
			Str("operation", policy.Name).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Msg("Attempt failed")

		if !policy.Unbounded() && attempt == policy.MaxAttempts {
			break
		}

		if err := Sleep(ctx, interval); err != nil {
			result.Err = fmt.Errorf("cancelled after %d attempts: %w", attempt, err)
			return result
		}
		interval = nextInterval(policy, interval)
	}

	result.Exhausted = true
	return result
}

// Run is Do for operations without a value
func Run(ctx context.Context, policy Policy, op func(ctx context.Context, attempt int) error) Result[struct{}] {
	return Do(ctx, policy, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	})
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
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

func nextInterval(policy Policy, current time.Duration) time.Duration {
	if policy.Multiplier <= 1 {
		return current
	}
	next := time.Duration(float64(current) * policy.Multiplier)
	if policy.MaxInterval > 0 && next > policy.MaxInterval {
		next = policy.MaxInterval
	}
	return next
}

// PermanentError stops Do without further attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if err was marked with Permanent
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}
