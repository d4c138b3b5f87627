package retry

import (
	"context"
	"time"
)

// Policy is a bounded exponential backoff.
type Policy struct {
	Attempts  int           // total tries, including the first
	BaseDelay time.Duration // delay before the second try
	MaxDelay  time.Duration
}

// DefaultPolicy is used by the chat store: 3 attempts, 20ms, 40ms.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: 20 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

// Do calls fn until it succeeds, returns an error retryable rejects, the
// attempts run out or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
