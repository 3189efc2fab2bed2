package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/rentkart/internal/core"
	"github.com/xenking/rentkart/internal/handler"
	"github.com/xenking/rentkart/internal/jobs"
	"github.com/xenking/rentkart/internal/payment"
	"github.com/xenking/rentkart/internal/storage/memory"
	"github.com/xenking/rentkart/internal/storage/postgres"
	"github.com/xenking/rentkart/pkg/health"
	"github.com/xenking/rentkart/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the background
// jobs, and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	policy, err := cfg.OrderPolicy()
	if err != nil {
		return errors.Wrap(err, "policy")
	}

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var repos core.Repositories
	switch cfg.Storage {
	case StorageMemory:
		lg.Warn("Using in-memory storage, data is lost on restart")
		repos = core.Memory(memory.NewStore())
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		db := postgres.New(pool)
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(db))
		repos = core.Postgres(db)
	}

	// The sandbox stands in for the payment provider until a real one is
	// integrated.
	svc := core.New(repos, payment.NewSandbox(), policy)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(svc).Register(mux)

	api := httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.Actor(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(api, "rentkart-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return jobs.New(cfg.Jobs, svc.Orders).Run(gctx)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
