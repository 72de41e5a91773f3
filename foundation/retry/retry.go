// Package retry provides bounded waits for operations that settle over time
// such as connecting to a peer or waiting for nodes to sync.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
)

// ErrTimeout is returned when every attempt failed or the context ended
// before an attempt succeeded.
var ErrTimeout = errors.New("timeout")

// Policy bounds the number of attempts and the wait between them. A Factor
// above 1 grows the wait after every attempt up to Max.
type Policy struct {
	Interval time.Duration
	Attempts int
	Factor   float64
	Max      time.Duration
}

// DefaultPolicy makes 10 attempts one second apart.
var DefaultPolicy = Policy{
	Interval: time.Second,
	Attempts: 10,
}

// Until calls fn until it returns nil. When the attempts are exhausted or the
// context ends the returned error wraps ErrTimeout and the last failure.
func Until(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}

// Poll calls cond until it reports true.
func Poll(ctx context.Context, p Policy, cond func() bool) error {
	return Until(ctx, p, func(ctx context.Context) error {
		if !cond() {
			return errors.New("condition not met")
		}
		return nil
	})
}

// Value calls fn until it returns a value without error.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := p.backoff()

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, timeout(err, lastErr)
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == attempts {
			return zero, timeout(nil, lastErr)
		}

		t := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, timeout(ctx.Err(), lastErr)
		case <-t.C:
		}
	}
}

// =============================================================================

// backoff constructs the wait schedule for the policy.
func (p Policy) backoff() *backoff.Backoff {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}

	limit := p.Max
	if limit < p.Interval {
		limit = p.Interval
	}

	return &backoff.Backoff{
		Min:    p.Interval,
		Max:    limit,
		Factor: factor,
	}
}

// timeout forms the error returned when the wait gives up.
func timeout(ctxErr error, lastErr error) error {
	switch {
	case ctxErr != nil && lastErr != nil:
		return fmt.Errorf("%w: %w: %w", ErrTimeout, ctxErr, lastErr)
	case ctxErr != nil:
		return fmt.Errorf("%w: %w", ErrTimeout, ctxErr)
	case lastErr != nil:
		return fmt.Errorf("%w: %w", ErrTimeout, lastErr)
	}
	return ErrTimeout
}
