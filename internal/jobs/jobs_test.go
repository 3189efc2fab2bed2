package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	calls atomic.Int32
	limit atomic.Int32
	block chan struct{}
	err   error
}

func (f *fakeExpirer) ExpireUnpaid(_ context.Context, limit int) (int, error) {
	f.calls.Add(1)
	f.limit.Store(int32(limit))
	if f.block != nil {
		<-f.block
	}
	return 1, f.err
}

func TestScheduler_ExpireUnpaid(t *testing.T) {
	f := &fakeExpirer{}
	s := New(Config{ExpireUnpaidBatch: 25}, f)

	s.ExpireUnpaid(context.Background())

	assert.EqualValues(t, 1, f.calls.Load())
	assert.EqualValues(t, 25, f.limit.Load())
}

func TestScheduler_ExpireUnpaidError(t *testing.T) {
	f := &fakeExpirer{err: errors.New("db down")}
	s := New(Config{ExpireUnpaidBatch: 10}, f)

	assert.NotPanics(t, func() { s.ExpireUnpaid(context.Background()) })
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	f := &fakeExpirer{block: make(chan struct{})}
	s := New(Config{ExpireUnpaidBatch: 10}, f)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.ExpireUnpaid(context.Background())
	}()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	s.ExpireUnpaid(context.Background())
	close(f.block)
	wg.Wait()

	assert.EqualValues(t, 1, f.calls.Load())
}

func TestScheduler_Run(t *testing.T) {
	f := &fakeExpirer{}
	s := New(Config{ExpireUnpaid: "* * * * * *", ExpireUnpaidBatch: 10}, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return f.calls.Load() > 0 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(Config{ExpireUnpaid: "not a schedule"}, &fakeExpirer{})
	require.Error(t, s.Run(context.Background()))
}
