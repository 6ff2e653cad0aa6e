// Package mail sends transactional email over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/dvloznov/grocery-tracker/internal/config"
)

// ErrDisabled is returned by senders that have no SMTP server configured.
var ErrDisabled = errors.New("mail delivery is not configured")

// Message is one plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers mail through gomail.
type SMTPSender struct {
	dialer dialer
	from   string
	log    zerolog.Logger
}

// NewSMTPSender builds a sender from the mail config.
func NewSMTPSender(cfg config.MailConfig, log zerolog.Logger) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		log:    log.With().Str("component", "mail").Logger(),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	s.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail sent")
	return nil
}

// LogSender only logs messages. It is used when no SMTP host is configured.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "mail").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail not sent, delivery disabled")
	return ErrDisabled
}

// New picks the SMTP sender when a host is configured and the log sender otherwise.
func New(cfg config.MailConfig, log zerolog.Logger) Sender {
	if !cfg.Enabled() {
		return NewLogSender(log)
	}
	return NewSMTPSender(cfg, log)
}
