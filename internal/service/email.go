package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"rental-obligations/internal/domain"
	"rental-obligations/internal/logger"
)

type emailService struct {
	sender  Sender
	limiter *rate.Limiter
}

// NewEmailService renders templates and hands them to sender, at most
// ratePerSecond messages per second.
func NewEmailService(sender Sender, ratePerSecond float64) EmailService {
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &emailService{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (s *emailService) Send(ctx context.Context, to string, kind domain.NotificationType, data TemplateData) SendResult {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return SendResult{Err: fmt.Errorf("invalid recipient address %q: %w", to, err)}
	}

	subject, body, err := RenderTemplate(kind, data)
	if err != nil {
		return SendResult{Err: err}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return SendResult{Err: fmt.Errorf("email rate limiter: %w", err)}
	}

	logger.ExternalServiceCall("email", "Send", "to", addr.Address, "kind", kind)
	messageID, err := s.sender.Deliver(ctx, Message{
		To:        addr.Address,
		ToName:    data.RecipientName,
		Subject:   subject,
		PlainText: body,
	})
	logger.ExternalServiceResult("email", "Send", err, "to", addr.Address, "kind", kind, "message_id", messageID)
	if err != nil {
		return SendResult{Err: err}
	}
	return SendResult{Success: true, MessageID: messageID}
}

type smtpSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) Sender {
	return &smtpSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *smtpSender) Deliver(ctx context.Context, msg Message) (string, error) {
	messageID := uuid.NewString()
	domainPart := "localhost"
	if at := strings.LastIndex(s.from, "@"); at >= 0 {
		domainPart = s.from[at+1:]
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", messageID, domainPart))
	m.SetBody("text/plain", msg.PlainText)

	if err := s.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("failed to send email via gomail: %w", err)
	}
	return messageID, nil
}

type sendgridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridSender(apiKey, fromEmail, fromName string) Sender {
	return &sendgridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *sendgridSender) Deliver(ctx context.Context, msg Message) (string, error) {
	from := sgmail.NewEmail(s.fromName, s.fromEmail)
	recipient := sgmail.NewEmail(msg.ToName, msg.To)
	message := sgmail.NewV3MailInit(from, msg.Subject, recipient, sgmail.NewContent("text/plain", msg.PlainText))

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return "", fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}

	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}

type logSender struct{}

// NewLogSender writes messages to the log instead of sending them. Used in
// development and for dry runs.
func NewLogSender() Sender {
	return logSender{}
}

func (logSender) Deliver(ctx context.Context, msg Message) (string, error) {
	messageID := uuid.NewString()
	logger.Info("Email (log provider)", "to", msg.To, "subject", msg.Subject, "message_id", messageID)
	return messageID, nil
}
