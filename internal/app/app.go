// Package app wires configuration, storage, services and transports into a
// runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/regflow/internal/config"
	"github.com/Shivanand-hulikatti/regflow/internal/database"
	"github.com/Shivanand-hulikatti/regflow/internal/escalation"
	"github.com/Shivanand-hulikatti/regflow/internal/handler"
	"github.com/Shivanand-hulikatti/regflow/internal/logging"
	"github.com/Shivanand-hulikatti/regflow/internal/metrics"
	"github.com/Shivanand-hulikatti/regflow/internal/notify"
	"github.com/Shivanand-hulikatti/regflow/internal/repository"
	"github.com/Shivanand-hulikatti/regflow/internal/repository/memory"
	"github.com/Shivanand-hulikatti/regflow/internal/repository/postgres"
	"github.com/Shivanand-hulikatti/regflow/internal/scheduler"
	"github.com/Shivanand-hulikatti/regflow/internal/service"
)

// App holds every long-lived component.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    repository.Store

	Editions      *service.EditionService
	Registrations *service.RegistrationService
	Approvals     *service.ApprovalService
	Runner        *escalation.Runner

	pool *pgxpool.Pool
}

// Load reads configuration from path (may be empty) and builds the logger.
func Load(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// New connects the configured store and builds the services on top of it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  metrics.New(registry),
	}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		a.Store = memory.New()
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		a.pool = pool
		a.Store = postgres.NewStore(pool)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	notifier := notify.Instrument(
		notify.NewBreaker(notify.NewOutboxNotifier(a.Store.Outbox()), cfg.Breaker),
		logger.With("component", "notifier"),
		a.Metrics,
	)
	opts := service.Options{
		Logger:      logger,
		Metrics:     a.Metrics,
		CallTimeout: cfg.CallTimeout,
	}
	a.Editions = service.NewEditionService(a.Store.Editions(), opts)
	a.Registrations = service.NewRegistrationService(a.Store, notifier, cfg.Allocation, opts)
	a.Approvals = service.NewApprovalService(a.Store, a.Registrations, notifier,
		cfg.Escalation.SeparateLastNoticeCounter, opts)
	opts.Logger = logger.With("component", "escalation")
	a.Runner = escalation.NewRunner(a.Store, a.Registrations, notifier, cfg.Escalation.AdminEmails, opts)
	return a, nil
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// Handler returns the API router with /metrics mounted.
func (a *App) Handler() http.Handler {
	r := handler.New(a.Editions, a.Registrations, a.Approvals, a.Runner, a.Logger).Routes()
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}))
	return r
}

// Serve runs the HTTP server and the job scheduler until ctx is cancelled,
// then shuts both down.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config.HTTP
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	sched := scheduler.New(a.Config.Scheduler, a.Runner, a.Logger)
	if err := sched.Start(gctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	g.Go(func() error {
		a.Logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		sched.Stop()
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		a.Logger.Info("server stopped")
		return nil
	})

	return g.Wait()
}

// Migrate applies or rolls back the embedded migrations.
func Migrate(cfg *config.Config, direction string, logger *slog.Logger) error {
	if cfg.StoreDriver != config.DriverPostgres {
		return fmt.Errorf("migrations need the %q store driver, got %q", config.DriverPostgres, cfg.StoreDriver)
	}
	return database.Migrate(cfg.Database, direction, logger)
}
