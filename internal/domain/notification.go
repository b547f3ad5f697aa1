package domain

import (
	"fmt"
	"time"
)

// NotificationType is the closed set of user-facing events the engine produces.
type NotificationType string

const (
	NotificationRentalReminder NotificationType = "rental_reminder"
	NotificationRentalOverdue  NotificationType = "rental_overdue"
	NotificationLateFeeCharged NotificationType = "late_fee_charged"
	NotificationPaymentDue     NotificationType = "payment_due"
)

// NotificationTypes lists every known type.
var NotificationTypes = []NotificationType{
	NotificationRentalReminder,
	NotificationRentalOverdue,
	NotificationLateFeeCharged,
	NotificationPaymentDue,
}

func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// NotificationKey identifies one trigger instance. The store keeps at most one
// notification per key.
type NotificationKey struct {
	UserID       int32
	ObligationID int32
	Type         NotificationType
	MetadataKey  string
}

func (k NotificationKey) String() string {
	return fmt.Sprintf("%d/%d/%s/%s", k.UserID, k.ObligationID, k.Type, k.MetadataKey)
}

type Notification struct {
	ID             int32             `json:"id"`
	UserID         int32             `json:"user_id"`
	ObligationID   int32             `json:"obligation_id"`
	Type           NotificationType  `json:"type"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	MetadataKey    string            `json:"metadata_key"`
	Attributes     map[string]string `json:"attributes"`
	ScheduledAt    time.Time         `json:"scheduled_at"`
	SentAt         *time.Time        `json:"sent_at,omitempty"`
	EmailSent      bool              `json:"email_sent"`
	EmailMessageID string            `json:"email_message_id"`
	EmailError     string            `json:"email_error"`
	IsRead         bool              `json:"is_read"`
	CreatedAt      time.Time         `json:"created_at"`
}

func (n *Notification) Key() NotificationKey {
	return NotificationKey{
		UserID:       n.UserID,
		ObligationID: n.ObligationID,
		Type:         n.Type,
		MetadataKey:  n.MetadataKey,
	}
}

// DaysLeftKey is the metadata key used for rental reminders.
func DaysLeftKey(daysLeft int) string {
	return fmt.Sprintf("days_left=%d", daysLeft)
}

// DaysOverdueKey is the metadata key used for late fee notices.
func DaysOverdueKey(daysOverdue int) string {
	return fmt.Sprintf("days_overdue=%d", daysOverdue)
}

const OverdueKey = "overdue"
