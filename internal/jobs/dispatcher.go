package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"rental-obligations/internal/clock"
	"rental-obligations/internal/domain"
	"rental-obligations/internal/evaluator"
	"rental-obligations/internal/logger"
	"rental-obligations/internal/metrics"
	"rental-obligations/internal/repository"
	"rental-obligations/internal/service"
)

// Attribute keys stored on notification rows so a queued notification can be
// rendered again later.
const (
	attrProductName    = "product_name"
	attrInvoiceNumber  = "invoice_number"
	attrDaysLeft       = "days_left"
	attrDaysOverdue    = "days_overdue"
	attrEndDate        = "end_date"
	attrDueDate        = "due_date"
	attrLateFeeCents   = "late_fee_cents"
	attrTotalCents     = "total_amount_cents"
	attrRemainingCents = "remaining_balance_cents"
)

const (
	attrDateLayout       = "2006-01-02"
	emailDisabledMessage = "email disabled by preference"
)

// EmitOutcome reports what an emit call did. Created is false when the
// trigger had already fired. Delivered is false when the email send failed.
type EmitOutcome struct {
	Created   bool
	Delivered bool
}

// Dispatcher applies the side effects of due obligations: invoice writes,
// notification rows and emails.
type Dispatcher struct {
	invoices      repository.InvoiceRepository
	notifications repository.NotificationRepository
	users         repository.UserRepository
	email         service.EmailService
	preferences   service.PreferenceService
	clock         clock.Clock
	workers       int
}

func NewDispatcher(repos Repositories, services *Services, clk clock.Clock, workers int) *Dispatcher {
	return &Dispatcher{
		invoices:      repos.Invoices,
		notifications: repos.Notifications,
		users:         repos.Users,
		email:         services.Email,
		preferences:   services.Preferences,
		clock:         clk,
		workers:       workers,
	}
}

// ApplyLateFee persists newFee on the invoice, recalculates its totals and
// marks it overdue. It returns false without writing when the invoice is paid
// or nothing would change. A lost version race returns ErrConcurrentUpdate and
// leaves inv untouched.
func (d *Dispatcher) ApplyLateFee(ctx context.Context, inv *domain.InvoiceObligation, newFee int64) (bool, error) {
	if inv.IsPaid() {
		return false, nil
	}
	if newFee <= inv.LateFeeCents {
		return false, nil
	}

	updated := *inv
	updated.LateFeeCents = newFee
	if updated.PaymentStatus != domain.InvoiceStatusOverdue {
		if !updated.CanTransitionTo(domain.InvoiceStatusOverdue) {
			return false, fmt.Errorf("invoice %d cannot move from %s to overdue", inv.ID, inv.PaymentStatus)
		}
		updated.PaymentStatus = domain.InvoiceStatusOverdue
	}
	updated.Recalculate()
	updated.UpdatedAt = d.clock.Now()

	if err := d.invoices.UpdateLateFee(ctx, &updated, inv.Version); err != nil {
		return false, err
	}

	logger.Info("Late fee applied",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"previous_fee_cents", inv.LateFeeCents,
		"late_fee_cents", updated.LateFeeCents,
		"total_cents", updated.TotalAmountCents)

	*inv = updated
	return true, nil
}

// EmitReminder records and sends a return reminder for a rental daysLeft days
// before its end date. Each (rental, daysLeft) fires once.
func (d *Dispatcher) EmitReminder(ctx context.Context, rental *domain.RentalObligation, daysLeft int) (EmitOutcome, error) {
	data := service.TemplateData{
		ProductName: rental.ProductName,
		DaysLeft:    daysLeft,
		EndDate:     rental.EndDate,
	}
	n := &domain.Notification{
		UserID:       rental.CustomerID,
		ObligationID: rental.ID,
		Type:         domain.NotificationRentalReminder,
		MetadataKey:  domain.DaysLeftKey(daysLeft),
		Attributes: map[string]string{
			attrProductName: rental.ProductName,
			attrDaysLeft:    strconv.Itoa(daysLeft),
			attrEndDate:     rental.EndDate.Format(attrDateLayout),
		},
	}
	return d.emit(ctx, n, data)
}

// EmitOverdueNotice records and sends the one-time notice for a rental that
// was not returned by its end date.
func (d *Dispatcher) EmitOverdueNotice(ctx context.Context, rental *domain.RentalObligation) (EmitOutcome, error) {
	data := service.TemplateData{
		ProductName: rental.ProductName,
		EndDate:     rental.EndDate,
	}
	n := &domain.Notification{
		UserID:       rental.CustomerID,
		ObligationID: rental.ID,
		Type:         domain.NotificationRentalOverdue,
		MetadataKey:  domain.OverdueKey,
		Attributes: map[string]string{
			attrProductName: rental.ProductName,
			attrEndDate:     rental.EndDate.Format(attrDateLayout),
		},
	}
	return d.emit(ctx, n, data)
}

// EmitLateFeeNotice records and sends the notice for a late fee charged on an
// invoice daysOverdue days past due.
func (d *Dispatcher) EmitLateFeeNotice(ctx context.Context, inv *domain.InvoiceObligation, daysOverdue int) (EmitOutcome, error) {
	data := service.TemplateData{
		InvoiceNumber:         inv.InvoiceNumber,
		DaysOverdue:           daysOverdue,
		DueDate:               inv.DueDate,
		LateFeeCents:          inv.LateFeeCents,
		TotalAmountCents:      inv.TotalAmountCents,
		RemainingBalanceCents: inv.RemainingBalanceCents,
	}
	n := &domain.Notification{
		UserID:       inv.CustomerID,
		ObligationID: inv.ID,
		Type:         domain.NotificationLateFeeCharged,
		MetadataKey:  domain.DaysOverdueKey(daysOverdue),
		Attributes: map[string]string{
			attrInvoiceNumber:  inv.InvoiceNumber,
			attrDaysOverdue:    strconv.Itoa(daysOverdue),
			attrDueDate:        inv.DueDate.Format(attrDateLayout),
			attrLateFeeCents:   strconv.FormatInt(inv.LateFeeCents, 10),
			attrTotalCents:     strconv.FormatInt(inv.TotalAmountCents, 10),
			attrRemainingCents: strconv.FormatInt(inv.RemainingBalanceCents, 10),
		},
	}
	return d.emit(ctx, n, data)
}

func (d *Dispatcher) emit(ctx context.Context, n *domain.Notification, data service.TemplateData) (EmitOutcome, error) {
	key := n.Key()

	existing, err := d.notifications.ListByKey(ctx, key)
	if err != nil {
		return EmitOutcome{}, fmt.Errorf("check existing notifications for %s: %w", key, err)
	}
	if evaluator.IsDuplicateTrigger(existing, key) {
		logger.Debug("Notification already emitted", "key", key.String())
		return EmitOutcome{}, nil
	}

	subject, body, err := service.RenderTemplate(n.Type, data)
	if err != nil {
		return EmitOutcome{}, fmt.Errorf("render %s: %w", n.Type, err)
	}
	// The row is inserted already claimed so scheduled dispatch never picks
	// it up while this send is in flight.
	now := d.clock.Now()
	n.Title = subject
	n.Message = body
	n.ScheduledAt = now
	n.CreatedAt = now
	n.SentAt = &now

	if err := d.notifications.Create(ctx, n); err != nil {
		if errors.Is(err, repository.ErrDuplicateNotification) {
			logger.Debug("Notification created concurrently", "key", key.String())
			return EmitOutcome{}, nil
		}
		return EmitOutcome{}, fmt.Errorf("create notification %s: %w", key, err)
	}

	delivered, err := d.deliver(ctx, n, data)
	if err != nil {
		return EmitOutcome{Created: true}, err
	}
	return EmitOutcome{Created: true, Delivered: delivered}, nil
}

// deliver sends the email for n unless the recipient opted out, then stamps the
// outcome on the row. A failed send is recorded, not returned; the error return
// is reserved for the stamp itself.
func (d *Dispatcher) deliver(ctx context.Context, n *domain.Notification, data service.TemplateData) (bool, error) {
	emailEnabled := true
	pref, err := d.preferences.GetPreferences(ctx, n.UserID)
	if err != nil {
		logger.Warn("Failed to load preferences, sending anyway", "user_id", n.UserID, "error", err)
	} else {
		emailEnabled = pref.EmailEnabled
	}

	n.EmailSent = false
	n.EmailMessageID = ""
	n.EmailError = ""

	delivered := false
	switch {
	case !emailEnabled:
		n.EmailError = emailDisabledMessage
		delivered = true
		metrics.EmailsSent.WithLabelValues(string(n.Type), "disabled").Inc()
	default:
		customer, err := d.users.GetByID(ctx, n.UserID)
		if err != nil {
			n.EmailError = fmt.Sprintf("recipient lookup failed: %v", err)
			metrics.EmailsSent.WithLabelValues(string(n.Type), "failed").Inc()
			break
		}
		data.RecipientName = customer.Name
		result := d.email.Send(ctx, customer.Email, n.Type, data)
		n.EmailSent = result.Success
		n.EmailMessageID = result.MessageID
		if result.Err != nil {
			n.EmailError = result.Err.Error()
		}
		delivered = result.Success
		if delivered {
			metrics.EmailsSent.WithLabelValues(string(n.Type), "sent").Inc()
		} else {
			metrics.EmailsSent.WithLabelValues(string(n.Type), "failed").Inc()
			logger.Warn("Email send failed",
				"notification_id", n.ID,
				"user_id", n.UserID,
				"type", n.Type,
				"error", n.EmailError)
		}
	}

	sentAt := d.clock.Now()
	n.SentAt = &sentAt
	if err := d.notifications.MarkDispatched(ctx, n); err != nil {
		return delivered, fmt.Errorf("stamp notification %d: %w", n.ID, err)
	}
	return delivered, nil
}

// DispatchScheduledNotifications claims, sends and stamps every candidate.
// A candidate claimed by another run is skipped. One candidate failing never
// stops the others.
func (d *Dispatcher) DispatchScheduledNotifications(ctx context.Context, candidates []domain.Notification) RunSummary {
	summary := RunSummary{Job: JobScheduledDispatch}
	processAll(ctx, JobScheduledDispatch, d.workers, candidates, &summary, func(ctx context.Context, n domain.Notification) candidateResult {
		ref := []any{"notification_id", n.ID, "user_id", n.UserID}
		if n.SentAt != nil {
			return candidateResult{outcome: outcomeSkipped}
		}
		claimed, err := d.notifications.Claim(ctx, n.ID, d.clock.Now())
		if err != nil {
			return candidateResult{outcome: outcomeFailed, err: fmt.Errorf("claim notification: %w", err), candidateRef: ref}
		}
		if !claimed {
			return candidateResult{outcome: outcomeSkipped}
		}
		delivered, err := d.deliver(ctx, &n, templateDataFromNotification(&n))
		if err != nil {
			return candidateResult{outcome: outcomeFailed, err: err, candidateRef: ref}
		}
		if !delivered {
			return candidateResult{
				outcome:      outcomeFailed,
				emailFailed:  true,
				err:          fmt.Errorf("email not delivered: %s", n.EmailError),
				candidateRef: ref,
			}
		}
		return candidateResult{outcome: outcomeSucceeded}
	})
	return summary
}

// SweepStaleNotifications deletes read notifications older than retentionDays.
func (d *Dispatcher) SweepStaleNotifications(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %d days", retentionDays)
	}
	cutoff := d.clock.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	deleted, err := d.notifications.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return deleted, nil
}

func templateDataFromNotification(n *domain.Notification) service.TemplateData {
	attrs := n.Attributes
	data := service.TemplateData{
		Title:         n.Title,
		Body:          n.Message,
		ProductName:   attrs[attrProductName],
		InvoiceNumber: attrs[attrInvoiceNumber],
	}
	data.DaysLeft, _ = strconv.Atoi(attrs[attrDaysLeft])
	data.DaysOverdue, _ = strconv.Atoi(attrs[attrDaysOverdue])
	data.EndDate, _ = time.Parse(attrDateLayout, attrs[attrEndDate])
	data.DueDate, _ = time.Parse(attrDateLayout, attrs[attrDueDate])
	data.LateFeeCents, _ = strconv.ParseInt(attrs[attrLateFeeCents], 10, 64)
	data.TotalAmountCents, _ = strconv.ParseInt(attrs[attrTotalCents], 10, 64)
	data.RemainingBalanceCents, _ = strconv.ParseInt(attrs[attrRemainingCents], 10, 64)
	return data
}
