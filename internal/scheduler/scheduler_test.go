package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-obligations/internal/config"
	"rental-obligations/internal/jobs"
)

type countingRunner struct {
	cfg       *config.Config
	reminders atomic.Int32
	lateFees  atomic.Int32
	cleanups  atomic.Int32
	dispatch  atomic.Int32
	block     chan struct{}
}

func (r *countingRunner) Config() *config.Config { return r.cfg }

func (r *countingRunner) RunReminderScan(ctx context.Context) jobs.RunSummary {
	r.reminders.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	return jobs.RunSummary{Job: jobs.JobReminderScan}
}

func (r *countingRunner) RunLateFeeScan(ctx context.Context) jobs.RunSummary {
	r.lateFees.Add(1)
	return jobs.RunSummary{Job: jobs.JobLateFeeScan}
}

func (r *countingRunner) RunCleanupSweep(ctx context.Context) jobs.RunSummary {
	r.cleanups.Add(1)
	return jobs.RunSummary{Job: jobs.JobCleanupSweep}
}

func (r *countingRunner) RunScheduledDispatch(ctx context.Context) jobs.RunSummary {
	r.dispatch.Add(1)
	return jobs.RunSummary{Job: jobs.JobScheduledDispatch}
}

func schedules(every string) config.SchedulerConfig {
	return config.SchedulerConfig{
		ReminderScan:      every,
		LateFeeScan:       every,
		CleanupSweep:      every,
		ScheduledDispatch: every,
	}
}

func TestNew(t *testing.T) {
	t.Run("RegistersEveryJob", func(t *testing.T) {
		runner := &countingRunner{cfg: &config.Config{Scheduler: schedules("0 */5 * * * *")}}
		s, err := New(runner)
		require.NoError(t, err)
		assert.Equal(t, 4, s.Entries())
	})

	t.Run("InvalidSchedule", func(t *testing.T) {
		cfg := &config.Config{Scheduler: schedules("0 */5 * * * *")}
		cfg.Scheduler.LateFeeScan = "every day at noon"
		_, err := New(&countingRunner{cfg: cfg})
		require.Error(t, err)
		assert.Contains(t, err.Error(), jobs.JobLateFeeScan)
	})
}

func TestScheduler_RunsJobs(t *testing.T) {
	runner := &countingRunner{cfg: &config.Config{Scheduler: schedules("* * * * * *")}}
	s, err := New(runner)
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool {
		return runner.reminders.Load() > 0 &&
			runner.lateFees.Load() > 0 &&
			runner.cleanups.Load() > 0 &&
			runner.dispatch.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	runner := &countingRunner{
		cfg:   &config.Config{Scheduler: schedules("* * * * * *")},
		block: make(chan struct{}),
	}
	s, err := New(runner)
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return runner.reminders.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	// Two more ticks pass while the first run is still blocked.
	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, int32(1), runner.reminders.Load())
	assert.Greater(t, runner.lateFees.Load(), int32(1))

	close(runner.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestScheduler_StopCancelsAfterDeadline(t *testing.T) {
	runner := &countingRunner{
		cfg:   &config.Config{Scheduler: schedules("* * * * * *")},
		block: make(chan struct{}),
	}
	s, err := New(runner)
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return runner.reminders.Load() == 1 }, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Stop(ctx)
	assert.Error(t, s.ctx.Err())
}
