package domain

import "time"

type InvoicePaymentStatus string

const (
	InvoiceStatusUnpaid  InvoicePaymentStatus = "unpaid"
	InvoiceStatusOverdue InvoicePaymentStatus = "overdue"
	InvoiceStatusPaid    InvoicePaymentStatus = "paid"
)

// InvoiceObligation is a billable record tied to a rental. All amounts are in cents.
// Version is bumped on every write and used for optimistic concurrency.
type InvoiceObligation struct {
	ID                    int32                `json:"id"`
	RentalID              int32                `json:"rental_id"`
	CustomerID            int32                `json:"customer_id"`
	ProductID             int32                `json:"product_id"`
	InvoiceNumber         string               `json:"invoice_number"`
	DueDate               time.Time            `json:"due_date"`
	SubtotalCents         int64                `json:"subtotal_cents"`
	SecurityDepositCents  int64                `json:"security_deposit_cents"`
	LateFeeCents          int64                `json:"late_fee_cents"`
	TotalAmountCents      int64                `json:"total_amount_cents"`
	UpfrontPaymentCents   int64                `json:"upfront_payment_cents"`
	RemainingBalanceCents int64                `json:"remaining_balance_cents"`
	PaymentStatus         InvoicePaymentStatus `json:"payment_status"`
	Version               int32                `json:"version"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// Recalculate derives the total and the remaining balance from their parts.
func (i *InvoiceObligation) Recalculate() {
	i.TotalAmountCents = i.SubtotalCents + i.SecurityDepositCents + i.LateFeeCents
	i.RemainingBalanceCents = i.TotalAmountCents - i.UpfrontPaymentCents
}

func (i *InvoiceObligation) IsPaid() bool {
	return i.PaymentStatus == InvoiceStatusPaid
}

// CanTransitionTo reports whether the payment status may move to next.
// unpaid -> overdue -> paid, unpaid -> paid. Paid is terminal.
func (i *InvoiceObligation) CanTransitionTo(next InvoicePaymentStatus) bool {
	switch i.PaymentStatus {
	case InvoiceStatusUnpaid:
		return next == InvoiceStatusOverdue || next == InvoiceStatusPaid
	case InvoiceStatusOverdue:
		return next == InvoiceStatusPaid
	default:
		return false
	}
}
