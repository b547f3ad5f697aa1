package postgres

import (
	"context"
	"database/sql"
	"time"

	"rental-obligations/internal/domain"
	"rental-obligations/internal/logger"
	"rental-obligations/internal/repository"

	"github.com/lib/pq"
)

type rentalRepository struct {
	db *sql.DB
}

func NewRentalRepository(db *sql.DB) repository.RentalRepository {
	return &rentalRepository{db: db}
}

const rentalColumns = `r.id, r.customer_id, r.product_id, COALESCE(p.name, ''), r.quantity,
	r.start_date, r.end_date, r.status, r.payment_status`

func (r *rentalRepository) ListUpcomingReturns(ctx context.Context, from, to time.Time) ([]domain.RentalObligation, error) {
	logger.EnterMethod("rentalRepository.ListUpcomingReturns", "from", from, "to", to)

	query := `SELECT ` + rentalColumns + `
		FROM rentals r
		LEFT JOIN products p ON p.id = r.product_id
		WHERE r.status = $1
		  AND r.payment_status = $2
		  AND r.end_date >= $3
		  AND r.end_date <= $4`

	rentals, err := r.list(ctx, query, domain.RentalStatusApproved, domain.RentalPaymentPaid, from, to)
	if err != nil {
		logger.ExitMethodWithError("rentalRepository.ListUpcomingReturns", err)
		return nil, err
	}

	logger.ExitMethod("rentalRepository.ListUpcomingReturns", "count", len(rentals))
	return rentals, nil
}

func (r *rentalRepository) ListOverdueReturns(ctx context.Context, now time.Time) ([]domain.RentalObligation, error) {
	logger.EnterMethod("rentalRepository.ListOverdueReturns", "now", now)

	query := `SELECT ` + rentalColumns + `
		FROM rentals r
		LEFT JOIN products p ON p.id = r.product_id
		WHERE r.status = ANY($1)
		  AND r.payment_status = $2
		  AND r.end_date < $3`

	statuses := pq.Array([]string{string(domain.RentalStatusApproved), string(domain.RentalStatusActive)})
	rentals, err := r.list(ctx, query, statuses, domain.RentalPaymentPaid, now)
	if err != nil {
		logger.ExitMethodWithError("rentalRepository.ListOverdueReturns", err)
		return nil, err
	}

	logger.ExitMethod("rentalRepository.ListOverdueReturns", "count", len(rentals))
	return rentals, nil
}

func (r *rentalRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.RentalObligation, error) {
	logger.DatabaseCall("SELECT", "rentals")
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rentals []domain.RentalObligation
	for rows.Next() {
		var rt domain.RentalObligation
		if err := rows.Scan(&rt.ID, &rt.CustomerID, &rt.ProductID, &rt.ProductName, &rt.Quantity,
			&rt.StartDate, &rt.EndDate, &rt.Status, &rt.PaymentStatus); err != nil {
			return nil, err
		}
		rentals = append(rentals, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.DatabaseResult("SELECT", int64(len(rentals)), nil)
	return rentals, nil
}
