// Package evaluator decides whether an obligation triggers today and what the
// new derived values are. Everything here is pure: the same inputs always give
// the same outputs and nothing is read from or written to the store.
package evaluator

import (
	"math"
	"slices"
	"time"

	"rental-obligations/internal/domain"
)

const day = 24 * time.Hour

// DefaultReminderOffsets applies when a customer has no stored preference.
var DefaultReminderOffsets = []int{3, 1}

// DaysUntil returns the ceiling of (end - now) in days. Negative values mean
// the end date has passed.
func DaysUntil(end, now time.Time) int {
	return int(math.Ceil(float64(end.Sub(now)) / float64(day)))
}

// ShouldRemind reports whether daysUntil matches one of the offsets.
func ShouldRemind(daysUntil int, offsets []int) bool {
	return slices.Contains(offsets, daysUntil)
}

// LateFeePolicy configures the late fee formula:
//
//	daysOverdue = max(0, utcDate(now) - utcDate(due) - GraceDays)
//	fee         = daysOverdue * DailyRateCents, capped at MaxFeeCents when MaxFeeCents > 0
type LateFeePolicy struct {
	DailyRateCents int64
	GraceDays      int
	MaxFeeCents    int64
}

// DaysOverdue counts whole calendar days (UTC) past the due date, minus the grace period.
func DaysOverdue(due, now time.Time, graceDays int) int {
	days := int(utcDate(now).Sub(utcDate(due)) / day)
	days -= graceDays
	if days < 0 {
		return 0
	}
	return days
}

// ComputeLateFee returns the late fee an invoice should carry at now. The
// result never falls below the fee already accrued, and paid invoices keep
// their fee as is.
func ComputeLateFee(inv *domain.InvoiceObligation, now time.Time, policy LateFeePolicy) int64 {
	if inv.IsPaid() {
		return inv.LateFeeCents
	}

	fee := int64(DaysOverdue(inv.DueDate, now, policy.GraceDays)) * policy.DailyRateCents
	if policy.MaxFeeCents > 0 && fee > policy.MaxFeeCents {
		fee = policy.MaxFeeCents
	}
	if fee < inv.LateFeeCents {
		return inv.LateFeeCents
	}
	return fee
}

// FeeReachedOn reports whether the invoice's current late fee is the amount the
// policy first produces on now's calendar day. A rerun on that day can then
// still owe the day's notice even though the fee itself no longer changes.
func FeeReachedOn(inv *domain.InvoiceObligation, now time.Time, policy LateFeePolicy) bool {
	if inv.IsPaid() || inv.LateFeeCents <= 0 {
		return false
	}
	base := *inv
	base.LateFeeCents = 0
	return ComputeLateFee(&base, now, policy) == inv.LateFeeCents &&
		ComputeLateFee(&base, now.Add(-day), policy) < inv.LateFeeCents
}

// IsDuplicateTrigger reports whether a notification with the same key already exists.
func IsDuplicateTrigger(existing []domain.Notification, key domain.NotificationKey) bool {
	for i := range existing {
		if existing[i].Key() == key {
			return true
		}
	}
	return false
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
