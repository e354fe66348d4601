package workflow

import (
	"context"
	"time"

	"github.com/abelbrown/signaldesk/internal/logging"
	"github.com/abelbrown/signaldesk/internal/model"
)

// Runner is one schedulable unit of work, typically the orchestrator or a
// wrapper that collects feeds first.
type Runner interface {
	RunCycle(ctx context.Context) model.WorkflowStats
}

// Scheduler invokes a runner on a fixed interval. Cycles run sequentially
// on one goroutine, so two cycles never overlap.
type Scheduler struct {
	orch     Runner
	interval time.Duration
}

// NewScheduler creates a scheduler.
func NewScheduler(orch Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{orch: orch, interval: interval}
}

// Run executes an immediate first cycle, then one cycle per interval until
// the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	logging.Info("scheduler started", "interval", s.interval)

	s.orch.RunCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.orch.RunCycle(ctx)
		}
	}
}
