package postgres

import (
	"database/sql"

	_ "github.com/lib/pq"

	"rental-obligations/internal/repository"
)

type Store struct {
	db *sql.DB
	repository.RentalRepository
	repository.InvoiceRepository
	repository.NotificationRepository
	repository.UserRepository
	repository.PreferenceRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                     db,
		RentalRepository:       NewRentalRepository(db),
		InvoiceRepository:      NewInvoiceRepository(db),
		NotificationRepository: NewNotificationRepository(db),
		UserRepository:         NewUserRepository(db),
		PreferenceRepository:   NewPreferenceRepository(db),
	}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}
