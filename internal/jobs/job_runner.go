package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rental-obligations/internal/clock"
	"rental-obligations/internal/config"
	"rental-obligations/internal/evaluator"
	"rental-obligations/internal/logger"
	"rental-obligations/internal/metrics"
	"rental-obligations/internal/repository"
	"rental-obligations/internal/service"
)

// Job names, shared by the scheduler, the CLI and the metrics labels.
const (
	JobReminderScan      = "reminder-scan"
	JobLateFeeScan       = "late-fee-scan"
	JobCleanupSweep      = "cleanup-sweep"
	JobScheduledDispatch = "scheduled-dispatch"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	repos      Repositories
	services   *Services
	config     *config.Config
	clock      clock.Clock
	scanner    *Scanner
	dispatcher *Dispatcher
	policy     evaluator.LateFeePolicy
}

// Repositories holds the store collaborators the jobs read and write
type Repositories struct {
	Rentals       repository.RentalRepository
	Invoices      repository.InvoiceRepository
	Notifications repository.NotificationRepository
	Users         repository.UserRepository
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Email       service.EmailService
	Preferences service.PreferenceService
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(repos Repositories, services *Services, cfg *config.Config, clk clock.Clock) *JobRunner {
	if clk == nil {
		clk = clock.Real()
	}
	return &JobRunner{
		repos:      repos,
		services:   services,
		config:     cfg,
		clock:      clk,
		scanner:    NewScanner(repos, time.Duration(cfg.Reminder.LookaheadDays)*24*time.Hour),
		dispatcher: NewDispatcher(repos, services, clk, cfg.Jobs.Workers),
		policy: evaluator.LateFeePolicy{
			DailyRateCents: cfg.LateFee.DailyRateCents,
			GraceDays:      cfg.LateFee.GraceDays,
			MaxFeeCents:    cfg.LateFee.MaxFeeCents,
		},
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// Run invokes one entry point by job name.
func (jr *JobRunner) Run(ctx context.Context, jobName string) (RunSummary, error) {
	switch jobName {
	case JobReminderScan:
		return jr.RunReminderScan(ctx), nil
	case JobLateFeeScan:
		return jr.RunLateFeeScan(ctx), nil
	case JobCleanupSweep:
		return jr.RunCleanupSweep(ctx), nil
	case JobScheduledDispatch:
		return jr.RunScheduledDispatch(ctx), nil
	}
	return RunSummary{}, fmt.Errorf("unknown job %q", jobName)
}

// RunAll runs every job once, in sequence (for manual execution)
func (jr *JobRunner) RunAll(ctx context.Context) []RunSummary {
	return []RunSummary{
		jr.RunLateFeeScan(ctx),
		jr.RunReminderScan(ctx),
		jr.RunScheduledDispatch(ctx),
		jr.RunCleanupSweep(ctx),
	}
}

// RunSummary reports what one job run did. Err is set when the run was
// aborted (scan failure or panic); candidate failures only show up in Failed.
type RunSummary struct {
	Job           string
	StartedAt     time.Time
	Duration      time.Duration
	Processed     int
	Succeeded     int
	Failed        int
	Skipped       int
	EmailFailures int
	Err           error
}

func (s RunSummary) String() string {
	str := fmt.Sprintf("%s: processed=%d succeeded=%d failed=%d skipped=%d email_failures=%d duration=%s",
		s.Job, s.Processed, s.Succeeded, s.Failed, s.Skipped, s.EmailFailures, s.Duration.Round(time.Millisecond))
	if s.Err != nil {
		str += " error=" + s.Err.Error()
	}
	return str
}

// runWithRecovery wraps job execution with panic recovery, logging and metrics
func (jr *JobRunner) runWithRecovery(ctx context.Context, jobName string, jobFunc func(ctx context.Context, summary *RunSummary)) (summary RunSummary) {
	log := logger.WithJob(jobName)
	summary = RunSummary{Job: jobName, StartedAt: jr.clock.Now()}
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
			summary.Err = fmt.Errorf("job panicked: %v", r)
		}
		summary.Duration = time.Since(started)
		metrics.JobDuration.WithLabelValues(jobName).Observe(summary.Duration.Seconds())

		result := "ok"
		if summary.Err != nil {
			result = "error"
			log.Error("Job aborted", "error", summary.Err, "processed", summary.Processed)
		}
		metrics.JobRuns.WithLabelValues(jobName, result).Inc()

		log.Info("Job completed",
			"processed", summary.Processed,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
			"email_failures", summary.EmailFailures,
			"duration", summary.Duration)
	}()

	log.Info("Starting job", "now", summary.StartedAt)
	jobFunc(ctx, &summary)
	return summary
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeSucceeded:
		return "succeeded"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// candidateResult is what processing one candidate produced.
type candidateResult struct {
	outcome      outcome
	emailFailed  bool
	err          error
	candidateRef []any
}

// processAll runs fn for every item on at most workers goroutines. A failure
// or panic in one candidate never stops the others.
func processAll[T any](ctx context.Context, jobName string, workers int, items []T, summary *RunSummary, fn func(context.Context, T) candidateResult) {
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(workers)

	for _, item := range items {
		item := item
		g.Go(func() error {
			res := runCandidate(ctx, item, fn)

			mu.Lock()
			summary.Processed++
			switch res.outcome {
			case outcomeSucceeded:
				summary.Succeeded++
			case outcomeSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
			if res.emailFailed {
				summary.EmailFailures++
			}
			mu.Unlock()

			metrics.JobCandidates.WithLabelValues(jobName, res.outcome.String()).Inc()
			if res.err != nil {
				args := append([]any{"job", jobName, "error", res.err}, res.candidateRef...)
				logger.ErrorContext(ctx, "Candidate failed", args...)
			}
			return nil
		})
	}
	g.Wait()
}

func runCandidate[T any](ctx context.Context, item T, fn func(context.Context, T) candidateResult) (res candidateResult) {
	defer func() {
		if r := recover(); r != nil {
			res = candidateResult{outcome: outcomeFailed, err: fmt.Errorf("candidate panicked: %v", r)}
		}
	}()
	return fn(ctx, item)
}
