// Package retry implements the fixed-attempt, fixed-delay retry policy used
// by every network step of a sync run.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 5 * time.Second
	DefaultTimeout  = 15 * time.Second
)

// Policy describes how many times an operation is attempted, how long to wait
// between attempts and how long a single attempt may take.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration

	// Timer waits between attempts, nil uses a real timer.
	Timer backoff.Timer
}

// DefaultPolicy is 3 attempts, 5 seconds apart, 15 seconds per attempt.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: DefaultAttempts,
		Delay:    DefaultDelay,
		Timeout:  DefaultTimeout,
	}
}

// WithDefaults fills zero fields with the defaults.
func (p Policy) WithDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	return p
}

// backOff waits Delay between attempts and stops after Attempts tries or when
// ctx is done.
func (p Policy) backOff(ctx context.Context) backoff.BackOffContext {
	retries := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.Attempts-1))
	return backoff.WithContext(retries, ctx)
}

// ExhaustedError is returned when every attempt failed, Errs holds the error
// of each attempt in order.
type ExhaustedError struct {
	Attempts int
	Errs     []error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %s", e.Attempts, e.Last())
}

// Last returns the error of the final attempt.
func (e *ExhaustedError) Last() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[len(e.Errs)-1]
}

func (e *ExhaustedError) Unwrap() []error {
	return e.Errs
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs fn until it succeeds or the policy runs out of attempts. Every
// attempt gets its own context bounded by the policy's timeout, attempt
// numbers start at 1. onFailure, when not nil, is called after each failed
// attempt.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error, onFailure func(attempt int, err error)) error {
	p = p.WithDefaults()

	var errs []error
	operation := func() error {
		attempt := len(errs) + 1
		err := runAttempt(ctx, p.Timeout, attempt, fn)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
		if onFailure != nil {
			onFailure(attempt, err)
		}
		return err
	}

	err := backoff.RetryNotifyWithTimer(operation, p.backOff(ctx), nil, p.Timer)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(errs[len(errs)-1], &permanent) {
		return err
	}
	exhausted := &ExhaustedError{Attempts: len(errs), Errs: errs}
	if ctx.Err() != nil {
		return errors.Join(ctx.Err(), exhausted)
	}
	return exhausted
}

func runAttempt(ctx context.Context, timeout time.Duration, attempt int, fn func(ctx context.Context, attempt int) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx, attempt)
}
