// Package sweeper reconciles rows orphaned by a crashed or killed process.
// A workflow stuck in deploy_status pending or a pipeline execution stuck in
// status running cannot make progress once the process that owned it is
// gone, so boot flips stale ones to failed. The sweep is advisory: it runs
// off the startup path and a failure only logs.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Sweep bounds.
const (
	// PendingWorkflowAge is how long a workflow may sit in pending before a
	// sweep considers it abandoned.
	PendingWorkflowAge = 5 * time.Minute

	// RunningExecutionAge is the same bound for running pipeline executions,
	// comfortably past the execution deadline.
	RunningExecutionAge = 10 * time.Minute

	// BatchLimit caps how many rows one sweep flips. Hitting the cap is
	// logged; the remainder waits for the next boot.
	BatchLimit = 100
)

// sweepStore is the slice of *storage.Store the sweeper needs.
type sweepStore interface {
	SweepStalePendingWorkflows(ctx context.Context, maxAge time.Duration, limit int) (int, bool, error)
	SweepStaleRunningExecutions(ctx context.Context, maxAge time.Duration, limit int) (int, bool, error)
}

// Sweeper runs the startup reconciliation sweeps.
type Sweeper struct {
	store  sweepStore
	logger *slog.Logger
}

// New builds a Sweeper over the shared store.
func New(store sweepStore, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:  store,
		logger: logger.With("component", "sweeper"),
	}
}

// Run performs both sweeps. Errors are logged, never returned: a failed
// sweep must not keep the server from starting. Callers run it in a
// goroutine off the boot path.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx, "pending workflows", func() (int, bool, error) {
		return s.store.SweepStalePendingWorkflows(ctx, PendingWorkflowAge, BatchLimit)
	})
	s.sweep(ctx, "running executions", func() (int, bool, error) {
		return s.store.SweepStaleRunningExecutions(ctx, RunningExecutionAge, BatchLimit)
	})
}

func (s *Sweeper) sweep(_ context.Context, target string, fn func() (int, bool, error)) {
	n, more, err := fn()
	if err != nil {
		s.logger.Error("startup sweep failed", "target", target, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("swept stale rows", "target", target, "count", n)
	}
	if more {
		s.logger.Warn("sweep cap hit, stale rows remain",
			"target", target, "cap", BatchLimit)
	}
}
