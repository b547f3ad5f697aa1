package jobs

import (
	"context"
)

// RunScheduledDispatch sends queued notifications whose scheduled time fell
// inside the lookback window and that have not been sent yet.
func (jr *JobRunner) RunScheduledDispatch(ctx context.Context) RunSummary {
	return jr.runWithRecovery(ctx, JobScheduledDispatch, func(ctx context.Context, summary *RunSummary) {
		now := jr.clock.Now()

		candidates, err := jr.scanner.ScanDueNotifications(ctx, now, jr.config.NotificationLookback())
		if err != nil {
			summary.Err = err
			return
		}

		result := jr.dispatcher.DispatchScheduledNotifications(ctx, candidates)
		summary.Processed = result.Processed
		summary.Succeeded = result.Succeeded
		summary.Failed = result.Failed
		summary.Skipped = result.Skipped
		summary.EmailFailures = result.EmailFailures
	})
}

// RunCleanupSweep deletes read notifications older than the retention window.
func (jr *JobRunner) RunCleanupSweep(ctx context.Context) RunSummary {
	return jr.runWithRecovery(ctx, JobCleanupSweep, func(ctx context.Context, summary *RunSummary) {
		deleted, err := jr.dispatcher.SweepStaleNotifications(ctx, jr.config.Notification.RetentionDays)
		if err != nil {
			summary.Err = err
			return
		}
		summary.Processed = int(deleted)
		summary.Succeeded = int(deleted)
	})
}
