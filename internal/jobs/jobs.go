// Package jobs runs the periodic maintenance of the marketplace.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config holds cron schedules in six-field (seconds first) syntax. An empty
// schedule disables the job.
type Config struct {
	ExpireUnpaid      string `default:"0 */5 * * * *" usage:"Schedule of the unpaid order expiry job"`
	ExpireUnpaidBatch int    `default:"100" usage:"Max orders cancelled per expiry run"`
}

// Expirer cancels orders that were never paid.
type Expirer interface {
	ExpireUnpaid(ctx context.Context, limit int) (int, error)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	orders  Expirer
	timeout time.Duration

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler in UTC with seconds precision.
func New(cfg Config, orders Expirer) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		cfg:     cfg,
		orders:  orders,
		timeout: time.Minute,
	}
}

// Run registers the jobs, starts the scheduler and blocks until ctx is
// done. In-flight jobs are awaited before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	lg := zctx.From(ctx)

	if s.cfg.ExpireUnpaid != "" {
		if _, err := s.cron.AddFunc(s.cfg.ExpireUnpaid, func() { s.ExpireUnpaid(ctx) }); err != nil {
			return errors.Wrapf(err, "schedule expire unpaid %q", s.cfg.ExpireUnpaid)
		}
	}

	lg.Info("Scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	lg.Info("Scheduler stopped")
	return nil
}

// ExpireUnpaid performs one expiry pass. Overlapping runs are skipped.
func (s *Scheduler) ExpireUnpaid(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lg := zctx.From(ctx).With(zap.String("job", "expire_unpaid"))
	n, err := s.orders.ExpireUnpaid(ctx, s.cfg.ExpireUnpaidBatch)
	if err != nil {
		lg.Error("Job failed", zap.Error(err))
		return
	}
	if n > 0 {
		lg.Info("Expired unpaid orders", zap.Int("count", n))
	}
}
