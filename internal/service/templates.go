package service

import (
	"fmt"
	"time"

	"rental-obligations/internal/domain"
)

// TemplateData carries the values a notification template may reference.
type TemplateData struct {
	RecipientName         string
	ProductName           string
	InvoiceNumber         string
	DaysLeft              int
	DaysOverdue           int
	EndDate               time.Time
	DueDate               time.Time
	LateFeeCents          int64
	TotalAmountCents      int64
	RemainingBalanceCents int64
	// Title and Body are used for queued notifications whose text was
	// composed upstream.
	Title string
	Body  string
}

// RenderTemplate returns the subject and plain text body for a notification type.
func RenderTemplate(kind domain.NotificationType, data TemplateData) (string, string, error) {
	name := data.RecipientName
	if name == "" {
		name = "there"
	}

	switch kind {
	case domain.NotificationRentalReminder:
		subject := fmt.Sprintf("Reminder: %s is due back in %s", data.ProductName, pluralDays(data.DaysLeft))
		body := fmt.Sprintf(`Dear %s,

This is a reminder that your rental of "%s" is due back on %s (%s from now).

Please arrange the return or contact us to extend your rental.

Thank you,
Rental Team`, name, data.ProductName, data.EndDate.Format("2006-01-02"), pluralDays(data.DaysLeft))
		return subject, body, nil

	case domain.NotificationRentalOverdue:
		subject := fmt.Sprintf("Overdue: please return %s", data.ProductName)
		body := fmt.Sprintf(`Dear %s,

Your rental of "%s" was due back on %s and is now overdue.

Please return the equipment as soon as possible to avoid late fees.

Thank you,
Rental Team`, name, data.ProductName, data.EndDate.Format("2006-01-02"))
		return subject, body, nil

	case domain.NotificationLateFeeCharged:
		subject := fmt.Sprintf("Late fee applied to invoice %s", data.InvoiceNumber)
		body := fmt.Sprintf(`Dear %s,

Invoice %s was due on %s and is %s overdue.

Late fee: %s
New total: %s
Remaining balance: %s

Please settle the balance to stop further charges.

Thank you,
Rental Team`, name, data.InvoiceNumber, data.DueDate.Format("2006-01-02"), pluralDays(data.DaysOverdue),
			FormatCents(data.LateFeeCents), FormatCents(data.TotalAmountCents), FormatCents(data.RemainingBalanceCents))
		return subject, body, nil

	case domain.NotificationPaymentDue:
		subject := data.Title
		if subject == "" {
			subject = fmt.Sprintf("Payment due for invoice %s", data.InvoiceNumber)
		}
		body := data.Body
		if body == "" {
			body = fmt.Sprintf("Invoice %s has a remaining balance of %s.", data.InvoiceNumber, FormatCents(data.RemainingBalanceCents))
		}
		return subject, fmt.Sprintf("Dear %s,\n\n%s\n\nThank you,\nRental Team", name, body), nil
	}

	return "", "", fmt.Errorf("no template for notification type %q", kind)
}

// FormatCents renders an amount in cents as dollars, e.g. 2500 -> "$25.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func pluralDays(n int) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d day", n)
	}
	return fmt.Sprintf("%d days", n)
}
