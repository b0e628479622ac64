package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingTimer fires immediately and remembers every wait it was asked for.
type recordingTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func (r *recordingTimer) Start(d time.Duration) {
	r.waits = append(r.waits, d)
	r.c = make(chan time.Time, 1)
	r.c <- time.Now()
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time {
	return r.c
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	timer := &recordingTimer{}
	var failures []int
	policy := Policy{Attempts: 3, Delay: 5 * time.Second, Timer: timer}

	calls := 0
	err := Do(context.Background(), policy, func(ctx context.Context, attempt int) error {
		calls++
		require.Equal(t, calls, attempt)
		if attempt < 3 {
			return errors.New("connection reset")
		}
		return nil
	}, func(attempt int, err error) {
		failures = append(failures, attempt)
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, failures)
	require.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, timer.waits)
}

func TestDoExhausted(t *testing.T) {
	timer := &recordingTimer{}
	policy := Policy{Attempts: 4, Delay: time.Second, Timer: timer}

	calls := 0
	err := Do(context.Background(), policy, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("status 503")
	}, nil)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 4, exhausted.Attempts)
	require.Len(t, exhausted.Errs, 4)
	require.EqualError(t, exhausted.Last(), "status 503")
	require.Equal(t, 4, calls)
	// no wait after the final attempt
	require.Len(t, timer.waits, 3)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("file system is read-only")
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3}, func(ctx context.Context, attempt int) error {
		calls++
		return Permanent(sentinel)
	}, nil)

	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, calls)
}

func TestDoAttemptTimeout(t *testing.T) {
	policy := Policy{Attempts: 2, Timeout: 10 * time.Millisecond}
	err := Do(context.Background(), policy, func(ctx context.Context, attempt int) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.ErrorIs(t, exhausted.Last(), context.DeadlineExceeded)
}

func TestDoCancelledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 5}, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errors.New("interrupted")
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDoCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := Do(ctx, Policy{Attempts: 3, Delay: time.Hour}, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("status 503")
	}, nil)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 1, exhausted.Attempts)
	require.Equal(t, 1, calls)
}

func TestDoPermanentWrapped(t *testing.T) {
	var failures []int
	err := Do(context.Background(), Policy{Attempts: 3}, func(ctx context.Context, attempt int) error {
		return fmt.Errorf("login: %w", Permanent(errors.New("530 login incorrect")))
	}, func(attempt int, err error) {
		failures = append(failures, attempt)
	})

	require.ErrorContains(t, err, "530 login incorrect")
	require.Equal(t, []int{1}, failures)
	require.Nil(t, Permanent(nil))
}

func TestWithDefaults(t *testing.T) {
	p := Policy{}.WithDefaults()
	require.Equal(t, DefaultAttempts, p.Attempts)
	require.Equal(t, time.Duration(0), p.Delay)
	require.Equal(t, DefaultTimeout, p.Timeout)

	require.Equal(t, Policy{Attempts: 3, Delay: 5 * time.Second, Timeout: 15 * time.Second}, DefaultPolicy())
}
