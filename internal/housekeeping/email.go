package housekeeping

import (
	"context"
	"fmt"

	"github.com/dvloznov/grocery-tracker/internal/mail"
)

// EmailResult reports a best-effort email delivery.
type EmailResult struct {
	Status  string `json:"status"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Sent    bool   `json:"sent"`
}

func (s *Service) email(ctx context.Context, msg mail.Message) *EmailResult {
	sent := s.sendBestEffort(ctx, msg)
	status := StatusSuccess
	if !sent {
		status = StatusError
	}
	return &EmailResult{Status: status, To: msg.To, Subject: msg.Subject, Sent: sent}
}

// SendWelcomeEmail greets a new user.
func (s *Service) SendWelcomeEmail(ctx context.Context, userEmail, userName string) *EmailResult {
	return s.email(ctx, mail.Message{
		To:      userEmail,
		Subject: "Welcome to GroceryTrack!",
		Body:    fmt.Sprintf("Welcome %s! Start by scanning your first receipt.", userName),
	})
}

// SendTestEmail sends an arbitrary message, for checking mail delivery.
func (s *Service) SendTestEmail(ctx context.Context, to, subject, body string) *EmailResult {
	return s.email(ctx, mail.Message{To: to, Subject: subject, Body: body})
}
