package service

import (
	"context"

	"rental-obligations/internal/domain"
)

// SendResult is the outcome of one email send. A failed send is a value, not
// an error return: callers record it and move on.
type SendResult struct {
	Success   bool
	MessageID string
	Err       error
}

type EmailService interface {
	Send(ctx context.Context, to string, kind domain.NotificationType, data TemplateData) SendResult
}

type PreferenceService interface {
	GetPreferences(ctx context.Context, userID int32) (domain.UserPreference, error)
}

// Sender delivers a rendered message and returns the provider message id.
type Sender interface {
	Deliver(ctx context.Context, msg Message) (string, error)
}

type Message struct {
	To        string
	ToName    string
	Subject   string
	PlainText string
}
