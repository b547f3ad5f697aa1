package domain

import (
	"fmt"
	"time"
)

type RentalStatus string

const (
	RentalStatusApproved  RentalStatus = "approved"
	RentalStatusActive    RentalStatus = "active"
	RentalStatusReturned  RentalStatus = "returned"
	RentalStatusCancelled RentalStatus = "cancelled"
)

type RentalPaymentStatus string

const (
	RentalPaymentPending  RentalPaymentStatus = "pending"
	RentalPaymentPaid     RentalPaymentStatus = "paid"
	RentalPaymentRefunded RentalPaymentStatus = "refunded"
)

// RentalObligation is an approved rental whose return date the engine watches.
// The engine never writes rentals.
type RentalObligation struct {
	ID            int32               `json:"id"`
	CustomerID    int32               `json:"customer_id"`
	ProductID     int32               `json:"product_id"`
	ProductName   string              `json:"product_name"`
	Quantity      int32               `json:"quantity"`
	StartDate     time.Time           `json:"start_date"`
	EndDate       time.Time           `json:"end_date"`
	Status        RentalStatus        `json:"status"`
	PaymentStatus RentalPaymentStatus `json:"payment_status"`
}

// Validate checks the rental period.
func (r *RentalObligation) Validate() error {
	if r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("rental %d: end date %s is before start date %s",
			r.ID, r.EndDate.Format("2006-01-02"), r.StartDate.Format("2006-01-02"))
	}
	return nil
}

// IsTerminal reports whether the rental can no longer produce reminders.
func (r *RentalObligation) IsTerminal() bool {
	return r.Status == RentalStatusReturned || r.Status == RentalStatusCancelled
}
