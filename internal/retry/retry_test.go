package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	req := require.New(t)
	p := Policy{Attempts: 3, BaseDelay: time.Millisecond}
	calls := 0

	err := p.Do(context.Background(), isTransient, func(attempt int) error {
		calls++
		req.Equal(calls, attempt)
		if attempt < 3 {
			return errTransient
		}
		return nil
	})

	req.NoError(err)
	req.Equal(3, calls)
}

func TestPolicy_StopsAtAttemptLimit(t *testing.T) {
	req := require.New(t)
	p := Policy{Attempts: 3, BaseDelay: time.Millisecond}
	calls := 0

	err := p.Do(context.Background(), isTransient, func(int) error {
		calls++
		return errTransient
	})

	req.ErrorIs(err, errTransient)
	req.Equal(3, calls)
}

func TestPolicy_PermanentErrorIsNotRetried(t *testing.T) {
	req := require.New(t)
	permanent := errors.New("permanent")
	calls := 0

	err := DefaultPolicy().Do(context.Background(), isTransient, func(int) error {
		calls++
		return permanent
	})

	req.ErrorIs(err, permanent)
	req.Equal(1, calls)
}

func TestPolicy_ContextCancelStopsBackoff(t *testing.T) {
	req := require.New(t)
	p := Policy{Attempts: 5, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, isTransient, func(int) error {
		calls++
		return errTransient
	})

	req.ErrorIs(err, errTransient)
	req.Equal(1, calls)
}
