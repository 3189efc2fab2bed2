package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct {
	mu  sync.Mutex
	err error
}

func (p *pinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *pinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func serve(handler http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func TestReadyEndpoint(t *testing.T) {
	db := &pinger{}

	tests := []struct {
		name   string
		ready  bool
		dbErr  error
		runs   int
		status int
		body   string
	}{
		{
			name:   "ReadyAndPassing",
			ready:  true,
			runs:   1,
			status: http.StatusOK,
			body:   `{"status":"ok"}`,
		},
		{
			name:   "NotMarkedReady",
			ready:  false,
			runs:   1,
			status: http.StatusServiceUnavailable,
			body:   `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`,
		},
		{
			name:   "FailureBelowThreshold",
			ready:  true,
			dbErr:  errors.New("connection refused"),
			runs:   failureThreshold - 1,
			status: http.StatusOK,
			body:   `{"status":"ok"}`,
		},
		{
			name:   "DatabaseDown",
			ready:  true,
			dbErr:  errors.New("connection refused"),
			runs:   failureThreshold,
			status: http.StatusServiceUnavailable,
			body:   `{"status":"unhealthy","checks":{"postgres":"ping: connection refused"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.set(tt.dbErr)
			h := New()
			h.AddReadinessCheck("postgres", time.Second, PingCheck(db))
			h.SetReady(tt.ready)
			runN(h.readiness[0], tt.runs)

			w := serve(h.ReadyEndpoint)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.body, w.Body.String())
			assert.Equal(t, tt.status == http.StatusOK, h.IsReady())
		})
	}
}

func TestProbe_Recovers(t *testing.T) {
	db := &pinger{err: errors.New("timeout")}
	h := New()
	h.AddReadinessCheck("postgres", time.Second, PingCheck(db))
	h.SetReady(true)

	runN(h.readiness[0], failureThreshold)
	require.False(t, h.IsReady())

	db.set(nil)
	runN(h.readiness[0], 1)
	assert.True(t, h.IsReady())
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(0))
	assert.Equal(t, http.StatusOK, serve(h.LiveEndpoint).Code)

	runN(h.liveness[0], failureThreshold)
	w := serve(h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds threshold 0")
}

func TestStartStop(t *testing.T) {
	db := &pinger{err: errors.New("down")}
	h := New()
	h.AddReadinessCheck("postgres", time.Second, PingCheck(db))
	h.SetReady(true)

	h.Start(context.Background(), time.Millisecond)
	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, time.Millisecond)

	db.set(nil)
	require.Eventually(t, h.IsReady, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}
