package repository

import (
	"context"
	"errors"
	"time"

	"rental-obligations/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrConcurrentUpdate is returned when a version-checked write loses a race.
	ErrConcurrentUpdate = errors.New("record was modified concurrently")
	// ErrDuplicateNotification is returned when the notification key already exists.
	ErrDuplicateNotification = errors.New("notification already exists for key")
)

type RentalRepository interface {
	// ListUpcomingReturns returns approved, paid rentals ending within [from, to].
	ListUpcomingReturns(ctx context.Context, from, to time.Time) ([]domain.RentalObligation, error)
	// ListOverdueReturns returns approved or active, paid rentals that ended before now.
	ListOverdueReturns(ctx context.Context, now time.Time) ([]domain.RentalObligation, error)
}

type InvoiceRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.InvoiceObligation, error)
	// ListOverdue returns unpaid or overdue invoices due before now.
	ListOverdue(ctx context.Context, now time.Time) ([]domain.InvoiceObligation, error)
	// UpdateLateFee persists the late fee, totals, status and UpdatedAt when the
	// stored version still equals expectedVersion, and bumps inv.Version on success.
	UpdateLateFee(ctx context.Context, inv *domain.InvoiceObligation, expectedVersion int32) error
}

type NotificationRepository interface {
	// Create inserts the notification unless its key already exists, in which
	// case ErrDuplicateNotification is returned. A non-nil SentAt inserts the
	// row already claimed.
	Create(ctx context.Context, n *domain.Notification) error
	ListByKey(ctx context.Context, key domain.NotificationKey) ([]domain.Notification, error)
	ListDue(ctx context.Context, from, to time.Time) ([]domain.Notification, error)
	// Claim stamps sent_at on an unsent notification. It returns false when
	// the row was already claimed, so the caller must not send it.
	Claim(ctx context.Context, id int32, at time.Time) (bool, error)
	MarkDispatched(ctx context.Context, n *domain.Notification) error
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Customer, error)
}

type PreferenceRepository interface {
	// GetByUserID returns ErrNotFound when the customer has no stored preference.
	GetByUserID(ctx context.Context, userID int32) (*domain.UserPreference, error)
}
