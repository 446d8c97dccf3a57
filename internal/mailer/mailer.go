// Package mailer sends report and alert emails over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"go.uber.org/zap"
)

// Attachment is an in-memory file attached to a message.
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is a plain text email.
type Message struct {
	FromName    string
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through one SMTP client reused for every message.
// Sends are sequential; the client is not shared across goroutines.
type SMTPMailer struct {
	client *mail.Client
	from   string
	logger *zap.Logger
}

// NewSMTPMailer configures an implicit-TLS client with PLAIN auth.
func NewSMTPMailer(cfg config.MailConfig, logger *zap.Logger) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure SMTP client for %s: %w", cfg.Host, err)
	}
	return &SMTPMailer{client: client, from: cfg.Username, logger: logger.Named("mailer")}, nil
}

// Send builds and delivers msg.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	mm, err := buildMessage(m.from, msg)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := m.client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("failed to send %q: %w", msg.Subject, err)
	}
	m.logger.Info("Email sent",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Strings("message_id", mm.GetGenHeader(mail.HeaderMessageID)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func buildMessage(from string, msg Message) (*mail.Msg, error) {
	mm := mail.NewMsg()
	if err := mm.FromFormat(msg.FromName, from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := mm.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients %v: %w", msg.To, err)
	}
	mm.Subject(msg.Subject)
	mm.SetMessageID()
	mm.SetDate()
	mm.SetBodyString(mail.TypeTextPlain, msg.Body)
	for _, a := range msg.Attachments {
		if err := mm.AttachReader(a.Filename, bytes.NewReader(a.Data)); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", a.Filename, err)
		}
	}
	return mm, nil
}
