// Package recovery reconciles jobs left "running" by a crashed worker, per
// SPEC_FULL §4.J. Grounded in original_source/recovery.py's startup sweep;
// the recurring sweep itself is driven by a plain time.Ticker loop styled
// after internal/worker.Pool's Start/Stop lifecycle, not a Postgres-backed
// job framework — a periodic in-process sweep doesn't need one.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/store"
)

// Sweeper reconciles stale "running" jobs whose owning worker process is no
// longer reachable.
type Sweeper struct {
	store     *store.JobStore
	olderThan time.Duration
	logger    *slog.Logger
}

// New builds a Sweeper.
func New(s *store.JobStore, olderThan time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: s, olderThan: olderThan, logger: logger}
}

// Run lists stale-running jobs and fails any whose ephemeral record is gone
// — the ephemeral store's liveness-style TTL is the signal that no worker is
// still actively reporting progress on that job (SPEC_FULL §4.J).
func (s *Sweeper) Run(ctx context.Context) error {
	stale, err := s.store.ListStaleRunning(ctx, s.olderThan)
	if err != nil {
		return fmt.Errorf("recovery: failed to list stale running jobs: %w", err)
	}

	for _, j := range stale {
		alive, err := s.store.EphemeralExists(ctx, j.ID)
		if err != nil {
			s.logger.Error("recovery: failed to check ephemeral liveness", "job_id", j.ID, "error", err)
			continue
		}
		if alive {
			continue
		}

		now := time.Now().UTC()
		if err := s.store.UpdateStatus(ctx, j.ID, store.StatusUpdate{
			Status:     model.StatusFailed,
			FinishedAt: &now,
			Error:      "Worker crashed or timed out",
		}); err != nil {
			s.logger.Error("recovery: failed to mark job failed", "job_id", j.ID, "error", err)
			continue
		}
		s.logger.Warn("recovery: marked stale job failed", "job_id", j.ID)
	}

	return nil
}

// Scheduler runs Sweeper.Run on a fixed interval until stopped, mirroring
// internal/worker.Pool's goroutine/stopCh/WaitGroup shutdown shape.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler wraps sweeper for periodic execution at the given interval.
func NewScheduler(sweeper *Sweeper, interval time.Duration) *Scheduler {
	return &Scheduler{sweeper: sweeper, interval: interval, stopCh: make(chan struct{})}
}

// Start launches the sweep loop. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) error {
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop signals the loop to exit and waits up to the context's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweeper.Run(ctx); err != nil {
				s.sweeper.logger.Error("recovery: scheduled sweep failed", "error", err)
			}
		}
	}
}
