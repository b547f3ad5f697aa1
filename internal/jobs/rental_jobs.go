package jobs

import (
	"context"
	"fmt"
	"time"

	"rental-obligations/internal/domain"
	"rental-obligations/internal/evaluator"
)

// RunReminderScan sends return reminders for rentals whose days-until-due
// matches one of the customer's reminder offsets, and a one-time notice for
// rentals that are past their end date.
func (jr *JobRunner) RunReminderScan(ctx context.Context) RunSummary {
	return jr.runWithRecovery(ctx, JobReminderScan, func(ctx context.Context, summary *RunSummary) {
		now := jr.clock.Now()

		upcoming, err := jr.scanner.ScanUpcomingReturns(ctx, now)
		if err != nil {
			summary.Err = err
			return
		}
		overdue, err := jr.scanner.ScanOverdueRentals(ctx, now)
		if err != nil {
			summary.Err = err
			return
		}

		processAll(ctx, JobReminderScan, jr.config.Jobs.Workers, upcoming, summary, func(ctx context.Context, rental domain.RentalObligation) candidateResult {
			return jr.remindRental(ctx, &rental, now)
		})
		processAll(ctx, JobReminderScan, jr.config.Jobs.Workers, overdue, summary, func(ctx context.Context, rental domain.RentalObligation) candidateResult {
			return jr.noticeOverdueRental(ctx, &rental)
		})
	})
}

func (jr *JobRunner) remindRental(ctx context.Context, rental *domain.RentalObligation, now time.Time) candidateResult {
	ref := []any{"rental_id", rental.ID, "customer_id", rental.CustomerID}
	if err := rental.Validate(); err != nil {
		return candidateResult{outcome: outcomeFailed, err: err, candidateRef: ref}
	}
	if rental.IsTerminal() {
		return candidateResult{outcome: outcomeSkipped}
	}

	daysLeft := evaluator.DaysUntil(rental.EndDate, now)
	pref, err := jr.services.Preferences.GetPreferences(ctx, rental.CustomerID)
	if err != nil {
		return candidateResult{outcome: outcomeFailed, err: fmt.Errorf("load preferences: %w", err), candidateRef: ref}
	}
	if !evaluator.ShouldRemind(daysLeft, pref.ReminderOffsets) {
		return candidateResult{outcome: outcomeSkipped}
	}

	out, err := jr.dispatcher.EmitReminder(ctx, rental, daysLeft)
	return emitResult(out, err, ref)
}

func (jr *JobRunner) noticeOverdueRental(ctx context.Context, rental *domain.RentalObligation) candidateResult {
	ref := []any{"rental_id", rental.ID, "customer_id", rental.CustomerID}
	if err := rental.Validate(); err != nil {
		return candidateResult{outcome: outcomeFailed, err: err, candidateRef: ref}
	}
	if rental.IsTerminal() {
		return candidateResult{outcome: outcomeSkipped}
	}
	out, err := jr.dispatcher.EmitOverdueNotice(ctx, rental)
	return emitResult(out, err, ref)
}

// emitResult maps an emit call onto a candidate outcome. A created row counts
// as a success even when its email failed.
func emitResult(out EmitOutcome, err error, ref []any) candidateResult {
	if err != nil {
		return candidateResult{outcome: outcomeFailed, err: err, candidateRef: ref}
	}
	if !out.Created {
		return candidateResult{outcome: outcomeSkipped}
	}
	return candidateResult{outcome: outcomeSucceeded, emailFailed: !out.Delivered}
}
