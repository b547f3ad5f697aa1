package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"rental-obligations/internal/config"
	"rental-obligations/internal/jobs"
	"rental-obligations/internal/logger"
)

// Runner is the set of entry points the scheduler triggers.
type Runner interface {
	Config() *config.Config
	RunReminderScan(ctx context.Context) jobs.RunSummary
	RunLateFeeScan(ctx context.Context) jobs.RunSummary
	RunCleanupSweep(ctx context.Context) jobs.RunSummary
	RunScheduledDispatch(ctx context.Context) jobs.RunSummary
}

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron   *cron.Cron
	jobs   Runner
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler with one cron entry per job. A run of a job is
// skipped while the previous run of the same job is still going; different
// jobs may overlap.
func New(runner Runner) (*Scheduler, error) {
	cronLogger := logger.CronLogger()
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithLogger(cronLogger),
		cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   c,
		jobs:   runner,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := s.registerJobs(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	entries := []struct {
		name string
		spec string
		run  func(context.Context) jobs.RunSummary
	}{
		{jobs.JobReminderScan, cfg.ReminderScan, s.jobs.RunReminderScan},
		{jobs.JobLateFeeScan, cfg.LateFeeScan, s.jobs.RunLateFeeScan},
		{jobs.JobCleanupSweep, cfg.CleanupSweep, s.jobs.RunCleanupSweep},
		{jobs.JobScheduledDispatch, cfg.ScheduledDispatch, s.jobs.RunScheduledDispatch},
	}

	for _, e := range entries {
		e := e
		if _, err := s.cron.AddFunc(e.spec, func() { e.run(s.ctx) }); err != nil {
			return fmt.Errorf("register %s job with schedule %q: %w", e.name, e.spec, err)
		}
		logger.Debug("Registered cron job", "job", e.name, "schedule", e.spec)
	}

	logger.Info("All cron jobs registered successfully", "count", len(entries))
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop stops triggering new runs and waits for running jobs to finish. If ctx
// expires first, running jobs are cancelled.
func (s *Scheduler) Stop(ctx context.Context) {
	logger.Info("Stopping cron scheduler...")
	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Info("Cron scheduler stopped")
	case <-ctx.Done():
		logger.Warn("Shutdown deadline reached, cancelling running jobs")
	}
	s.cancel()
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
