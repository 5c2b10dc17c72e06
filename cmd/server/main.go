// Command server wires and runs the ansible job orchestration service
// described in SPEC_FULL §4.K. Bootstrap order: logger, durable store pool
// + migrations, ephemeral store client, provider policy, queue adapter,
// worker pool, HTTP router, recovery sweep, HTTP listener. Shutdown runs the
// reverse, each stage a bounded-context hook with failures joined and
// logged rather than panicking — grounded in the teacher's example/main.go
// shutdown-hook pattern, generalized past the forge framework it was
// written against (DESIGN.md).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/api"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/config"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/gitmaterializer"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/policy"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/queue"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/recovery"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/runner"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/store"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/store/durable"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/store/ephemeral"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/worker"
	"github.com/jeremy-wang-lin/ansible-runner-service/pkg/db"
	"github.com/jeremy-wang-lin/ansible-runner-service/pkg/logger"
	"github.com/jeremy-wang-lin/ansible-runner-service/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal startup or shutdown error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("main: failed to load configuration: %w", err)
	}

	log := logger.NewWithSentry(logger.SentryConfig{DSN: cfg.SentryDSN})
	log.Info("starting ansible runner service")

	pool, err := db.Open(ctx, cfg.DatabaseURL,
		db.WithMigrations(durable.Migrations),
		db.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("main: failed to open durable store: %w", err)
	}
	defer pool.Close()

	redisClient, err := redis.Open(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("main: failed to open ephemeral store / queue client: %w", err)
	}
	defer redisClient.Close()

	gitProviders, err := cfg.GitProviders()
	if err != nil {
		return fmt.Errorf("main: failed to decode GIT_PROVIDERS: %w", err)
	}
	prov, err := policy.Load(gitProviders)
	if err != nil {
		return fmt.Errorf("main: failed to load provider policy: %w", err)
	}

	jobStore := store.New(durable.New(pool), ephemeral.New(redisClient, cfg.JobTTL))
	queueAdapter := queue.New(redisClient)
	materializer := gitmaterializer.New(cfg.GitOperationTimeout)
	playbookRunner := runner.New(log)

	workerPool := worker.NewPool(worker.Deps{
		Store:          jobStore,
		Queue:          queueAdapter,
		Policy:         prov,
		Materializer:   materializer,
		Runner:         playbookRunner,
		PlaybooksDir:   cfg.PlaybooksDir,
		CollectionsDir: cfg.CollectionsDir,
		Logger:         log,
	}, cfg.WorkerCount)
	if err := workerPool.Start(ctx); err != nil {
		return fmt.Errorf("main: failed to start worker pool: %w", err)
	}

	httpRouter := api.NewRouter(api.Deps{
		Store:        jobStore,
		Queue:        queueAdapter,
		Policy:       prov,
		Runner:       playbookRunner,
		PlaybooksDir: cfg.PlaybooksDir,
		Logger:       log,
	}, api.HealthDeps{Store: jobStore})

	sweeper := recovery.New(jobStore, cfg.StaleJobThreshold, log)
	if err := sweeper.Run(ctx); err != nil {
		log.Error("startup recovery sweep failed, continuing anyway", "error", err)
	}
	scheduler := recovery.NewScheduler(sweeper, cfg.StaleSweepInterval)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("main: failed to start recovery scheduler: %w", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpRouter,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error("http server error", "error", err)
		}
	}

	return shutdown(httpServer, workerPool, scheduler, cfg.ShutdownTimeout, log)
}

// shutdown runs the bootstrap hooks in reverse order, joining and logging
// failures rather than panicking (SPEC_FULL §4.K).
func shutdown(httpServer *http.Server, workerPool *worker.Pool, scheduler *recovery.Scheduler, timeout time.Duration, log *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server drain: %w", err))
	}
	if err := workerPool.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("worker pool stop: %w", err))
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("recovery-sweep scheduler stop: %w", err))
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		log.Error("shutdown completed with errors", "error", joined)
		return joined
	}

	log.Info("shutdown complete")
	return nil
}
