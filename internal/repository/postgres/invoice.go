package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"rental-obligations/internal/domain"
	"rental-obligations/internal/logger"
	"rental-obligations/internal/repository"
)

type invoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) repository.InvoiceRepository {
	return &invoiceRepository{db: db}
}

const invoiceColumns = `id, rental_id, customer_id, product_id, invoice_number, due_date,
	subtotal_cents, security_deposit_cents, late_fee_cents, total_amount_cents,
	upfront_payment_cents, remaining_balance_cents, payment_status, version, updated_at`

func scanInvoice(row interface{ Scan(...interface{}) error }, inv *domain.InvoiceObligation) error {
	return row.Scan(
		&inv.ID, &inv.RentalID, &inv.CustomerID, &inv.ProductID, &inv.InvoiceNumber, &inv.DueDate,
		&inv.SubtotalCents, &inv.SecurityDepositCents, &inv.LateFeeCents, &inv.TotalAmountCents,
		&inv.UpfrontPaymentCents, &inv.RemainingBalanceCents, &inv.PaymentStatus, &inv.Version, &inv.UpdatedAt,
	)
}

func (r *invoiceRepository) GetByID(ctx context.Context, id int32) (*domain.InvoiceObligation, error) {
	logger.EnterMethod("invoiceRepository.GetByID", "invoiceID", id)

	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv := &domain.InvoiceObligation{}
	err := scanInvoice(r.db.QueryRowContext(ctx, query, id), inv)
	if errors.Is(err, sql.ErrNoRows) {
		err = repository.ErrNotFound
	}
	if err != nil {
		logger.ExitMethodWithError("invoiceRepository.GetByID", err, "invoiceID", id)
		return nil, err
	}

	logger.ExitMethod("invoiceRepository.GetByID", "invoiceID", id, "version", inv.Version)
	return inv, nil
}

func (r *invoiceRepository) ListOverdue(ctx context.Context, now time.Time) ([]domain.InvoiceObligation, error) {
	logger.EnterMethod("invoiceRepository.ListOverdue", "now", now)

	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE payment_status = ANY($1)
		  AND due_date < $2`

	statuses := pq.Array([]string{string(domain.InvoiceStatusUnpaid), string(domain.InvoiceStatusOverdue)})
	logger.DatabaseCall("SELECT", "invoices")
	rows, err := r.db.QueryContext(ctx, query, statuses, now)
	if err != nil {
		logger.ExitMethodWithError("invoiceRepository.ListOverdue", err)
		return nil, err
	}
	defer rows.Close()

	var invoices []domain.InvoiceObligation
	for rows.Next() {
		var inv domain.InvoiceObligation
		if err := scanInvoice(rows, &inv); err != nil {
			logger.ExitMethodWithError("invoiceRepository.ListOverdue", err)
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		logger.ExitMethodWithError("invoiceRepository.ListOverdue", err)
		return nil, err
	}

	logger.ExitMethod("invoiceRepository.ListOverdue", "count", len(invoices))
	return invoices, nil
}

func (r *invoiceRepository) UpdateLateFee(ctx context.Context, inv *domain.InvoiceObligation, expectedVersion int32) error {
	logger.EnterMethod("invoiceRepository.UpdateLateFee", "invoiceID", inv.ID, "lateFee", inv.LateFeeCents, "version", expectedVersion)

	query := `
		UPDATE invoices SET
			late_fee_cents = $1,
			total_amount_cents = $2,
			remaining_balance_cents = $3,
			payment_status = $4,
			version = version + 1,
			updated_at = $5
		WHERE id = $6
		  AND version = $7
		  AND payment_status <> 'paid'
	`

	now := inv.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	logger.DatabaseCall("UPDATE", "invoices", "invoiceID", inv.ID)
	result, err := r.db.ExecContext(ctx, query,
		inv.LateFeeCents, inv.TotalAmountCents, inv.RemainingBalanceCents, inv.PaymentStatus,
		now, inv.ID, expectedVersion,
	)
	if err != nil {
		logger.ExitMethodWithError("invoiceRepository.UpdateLateFee", err, "invoiceID", inv.ID)
		return err
	}

	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err)
	if err != nil {
		return err
	}
	if rows == 0 {
		logger.ExitMethodWithError("invoiceRepository.UpdateLateFee", repository.ErrConcurrentUpdate, "invoiceID", inv.ID)
		return repository.ErrConcurrentUpdate
	}

	inv.Version = expectedVersion + 1
	inv.UpdatedAt = now
	logger.ExitMethod("invoiceRepository.UpdateLateFee", "invoiceID", inv.ID, "version", inv.Version)
	return nil
}
