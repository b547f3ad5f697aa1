package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rental-obligations/internal/domain"
	"rental-obligations/internal/evaluator"
	"rental-obligations/internal/repository"
)

// RunLateFeeScan accrues late fees on overdue invoices and notifies the
// customer of every increase.
func (jr *JobRunner) RunLateFeeScan(ctx context.Context) RunSummary {
	return jr.runWithRecovery(ctx, JobLateFeeScan, func(ctx context.Context, summary *RunSummary) {
		now := jr.clock.Now()

		invoices, err := jr.scanner.ScanOverdueInvoices(ctx, now)
		if err != nil {
			summary.Err = err
			return
		}

		processAll(ctx, JobLateFeeScan, jr.config.Jobs.Workers, invoices, summary, func(ctx context.Context, inv domain.InvoiceObligation) candidateResult {
			return jr.chargeLateFee(ctx, &inv, now)
		})
	})
}

// chargeLateFee computes and applies the fee for one invoice. When another
// writer got there first the invoice is re-read and evaluated again, up to
// the configured number of retries. The notice for the day is emitted when the
// fee changed, or when it was already charged today but its notice is missing.
func (jr *JobRunner) chargeLateFee(ctx context.Context, inv *domain.InvoiceObligation, now time.Time) candidateResult {
	ref := []any{"invoice_id", inv.ID, "invoice_number", inv.InvoiceNumber}
	maxRetries := jr.config.LateFee.MaxRetries

	var applied bool
	for attempt := 0; ; attempt++ {
		fee := evaluator.ComputeLateFee(inv, now, jr.policy)
		var err error
		applied, err = jr.dispatcher.ApplyLateFee(ctx, inv, fee)
		if errors.Is(err, repository.ErrConcurrentUpdate) {
			if attempt >= maxRetries {
				return candidateResult{
					outcome:      outcomeFailed,
					err:          fmt.Errorf("gave up after %d retries: %w", maxRetries, err),
					candidateRef: ref,
				}
			}
			fresh, gerr := jr.repos.Invoices.GetByID(ctx, inv.ID)
			if gerr != nil {
				return candidateResult{outcome: outcomeFailed, err: fmt.Errorf("reload invoice: %w", gerr), candidateRef: ref}
			}
			*inv = *fresh
			continue
		}
		if err != nil {
			return candidateResult{outcome: outcomeFailed, err: err, candidateRef: ref}
		}
		break
	}

	if !applied && !evaluator.FeeReachedOn(inv, now, jr.policy) {
		return candidateResult{outcome: outcomeSkipped}
	}

	daysOverdue := evaluator.DaysOverdue(inv.DueDate, now, jr.policy.GraceDays)
	out, err := jr.dispatcher.EmitLateFeeNotice(ctx, inv, daysOverdue)
	if err != nil {
		if applied {
			err = fmt.Errorf("late fee applied, notice failed: %w", err)
		}
		return candidateResult{outcome: outcomeFailed, err: err, candidateRef: ref}
	}
	if !applied && !out.Created {
		return candidateResult{outcome: outcomeSkipped}
	}
	return candidateResult{outcome: outcomeSucceeded, emailFailed: out.Created && !out.Delivered}
}
