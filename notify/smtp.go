/*
Package notify delivers invoices to tenants.

PURPOSE:
  Implementations of billing.Sender and billing.Renderer. The billing
  engine decides what to send; this package decides how it leaves the
  building.

SENDERS:
  SMTPSender:     go-mail, TLS policy picked from the port
  SendGridSender: SendGrid v3 API
  LogSender:      Logs the message and drops it (development default)

SEE ALSO:
  - billing/notify.go: Sender and Renderer interfaces
  - render.go: Plain-text invoice document
*/
package notify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/prosuite/rent-ledger/billing"
)

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // optional, some relays accept unauthenticated mail
	Password string
	From     string
	FromName string
}

// SMTPSender implements billing.Sender over SMTP.
type SMTPSender struct {
	config SMTPConfig
	logger *zap.Logger
}

func NewSMTPSender(config SMTPConfig, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{config: config, logger: logger}
}

func (s *SMTPSender) Send(ctx context.Context, msg billing.Message) error {
	m := mail.NewMsg()

	fromName := msg.FromName
	if fromName == "" {
		fromName = s.config.FromName
	}
	if err := m.FromFormat(fromName, s.config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	for _, att := range msg.Attachments {
		if err := m.AttachReader(att.Filename, bytes.NewReader(att.Content),
			mail.WithFileContentType(mail.ContentType(att.ContentType))); err != nil {
			return fmt.Errorf("failed to attach %s: %w", att.Filename, err)
		}
	}

	client, err := mail.NewClient(s.config.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		s.logger.Error("smtp send failed",
			zap.String("to", msg.To),
			zap.String("host", s.config.Host),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("smtp email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// clientOptions maps the port to a TLS policy: 465 implicit TLS, 587
// mandatory STARTTLS, anything else opportunistic.
func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTimeout(30 * time.Second),
	}
	switch s.config.Port {
	case 465:
		opts = append(opts, mail.WithSSL())
	case 587:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.config.Username != "" && s.config.Password != "" {
		opts = append(opts,
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		)
	}
	return opts
}
