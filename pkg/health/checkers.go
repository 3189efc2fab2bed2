package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is a dependency that can report its reachability, such as the
// database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck checks p.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// GoroutineCountCheck fails when more than threshold goroutines are running,
// which usually means requests or jobs are piling up.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
