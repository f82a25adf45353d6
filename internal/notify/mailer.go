// Package notify delivers affiliate notifications by email and in-app rows.
package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
)

// Email is a single outbound message
type Email struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// Mailer sends transactional email
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SendgridMailer sends email through SendGrid
type SendgridMailer struct {
	client  *sendgrid.Client
	from    *mail.Email
	sandbox bool
}

// NewMailer returns a SendGrid mailer, or a logging mailer when no API key is configured
func NewMailer(cfg config.NotificationsConfig) Mailer {
	if cfg.SendgridAPIKey == "" {
		logging.ForComponent("notify").Warn("SendGrid API key not set; emails will only be logged")
		return &LogMailer{log: logging.ForComponent("notify")}
	}
	return &SendgridMailer{
		client:  sendgrid.NewSendClient(cfg.SendgridAPIKey),
		from:    mail.NewEmail(cfg.FromName, cfg.FromEmail),
		sandbox: cfg.SandboxMode,
	}
}

func (m *SendgridMailer) Send(ctx context.Context, email Email) error {
	to := mail.NewEmail(email.ToName, email.ToEmail)
	msg := mail.NewSingleEmail(m.from, email.Subject, to, email.PlainText, email.HTML)
	if m.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}

	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogMailer only logs messages; used when email delivery is not configured
type LogMailer struct {
	log *logrus.Entry
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.log.WithFields(logrus.Fields{
		"to":      email.ToEmail,
		"subject": email.Subject,
	}).Info("Email not sent (delivery disabled)")
	return nil
}
