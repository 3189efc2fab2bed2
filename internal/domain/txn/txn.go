// Package txn describes the unit of work every mutating domain operation
// runs in and the bounded retry applied to retryable failures.
package txn

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"

	"github.com/xenking/rentkart/internal/domain/failure"
)

// Runner executes fn inside a single atomic unit of work. The transaction
// travels in the context passed to fn; repositories called with that
// context participate in it. A Runner called with a context that already
// carries a transaction joins it instead of starting a new one.
type Runner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Policy bounds the internal retries of an operation.
type Policy struct {
	Attempts        int           `default:"3" usage:"Total attempts for retryable failures"`
	InitialInterval time.Duration `default:"20ms" usage:"First backoff interval between attempts"`
}

// DefaultPolicy returns three attempts with a short exponential backoff.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, InitialInterval: 20 * time.Millisecond}
}

// Retry calls op until it succeeds, fails with an error that is not of the
// kind retryOn, or the policy's attempts are exhausted. The last error is
// returned unchanged.
func Retry(ctx context.Context, p Policy, retryOn error, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, retryOn) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

// Do runs fn in a unit of work and repeats the whole unit when it loses a
// race with a concurrent writer.
func Do(ctx context.Context, r Runner, p Policy, fn func(ctx context.Context) error) error {
	return Retry(ctx, p, failure.ErrConcurrencyConflict, func() error {
		return r.WithTx(ctx, fn)
	})
}
