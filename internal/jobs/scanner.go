package jobs

import (
	"context"
	"fmt"
	"time"

	"rental-obligations/internal/domain"
	"rental-obligations/internal/logger"
	"rental-obligations/internal/repository"
)

// Scanner selects the obligations that became due. It only reads.
type Scanner struct {
	rentals       repository.RentalRepository
	invoices      repository.InvoiceRepository
	notifications repository.NotificationRepository
	lookahead     time.Duration
}

func NewScanner(repos Repositories, lookahead time.Duration) *Scanner {
	return &Scanner{
		rentals:       repos.Rentals,
		invoices:      repos.Invoices,
		notifications: repos.Notifications,
		lookahead:     lookahead,
	}
}

// ScanUpcomingReturns returns approved, paid rentals ending within the lookahead window.
func (s *Scanner) ScanUpcomingReturns(ctx context.Context, now time.Time) ([]domain.RentalObligation, error) {
	rentals, err := s.rentals.ListUpcomingReturns(ctx, now, now.Add(s.lookahead))
	if err != nil {
		return nil, fmt.Errorf("scan upcoming returns: %w", err)
	}
	logger.Debug("Scanned upcoming returns", "count", len(rentals), "lookahead", s.lookahead)
	return rentals, nil
}

// ScanOverdueRentals returns approved or active, paid rentals past their end date.
func (s *Scanner) ScanOverdueRentals(ctx context.Context, now time.Time) ([]domain.RentalObligation, error) {
	rentals, err := s.rentals.ListOverdueReturns(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("scan overdue rentals: %w", err)
	}
	logger.Debug("Scanned overdue rentals", "count", len(rentals))
	return rentals, nil
}

// ScanOverdueInvoices returns unpaid or overdue invoices whose due date has passed.
func (s *Scanner) ScanOverdueInvoices(ctx context.Context, now time.Time) ([]domain.InvoiceObligation, error) {
	invoices, err := s.invoices.ListOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("scan overdue invoices: %w", err)
	}
	logger.Debug("Scanned overdue invoices", "count", len(invoices))
	return invoices, nil
}

// ScanDueNotifications returns unsent notifications scheduled within [now-lookback, now].
func (s *Scanner) ScanDueNotifications(ctx context.Context, now time.Time, lookback time.Duration) ([]domain.Notification, error) {
	notifications, err := s.notifications.ListDue(ctx, now.Add(-lookback), now)
	if err != nil {
		return nil, fmt.Errorf("scan due notifications: %w", err)
	}
	logger.Debug("Scanned due notifications", "count", len(notifications), "lookback", lookback)
	return notifications, nil
}
