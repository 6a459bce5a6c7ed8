// Package mail implements the outbound SMTP transport for digest emails,
// built on wneessen/go-mail. Delivery is a single attempt; failures are
// returned as values and left to the caller's error policy.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// Config carries the SMTP settings, loaded once at process start and
// immutable thereafter.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// SMTPMailer sends email over one configured SMTP account.
type SMTPMailer struct {
	cfg    Config
	client *gomail.Client
}

// NewSMTPMailer builds the SMTP client. Authentication is only enabled when
// a username is configured; TLS policy follows cfg.UseTLS.
func NewSMTPMailer(cfg Config) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mail: host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mail: sender address is required")
	}

	opts := []gomail.Option{gomail.WithPort(cfg.Port)}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if cfg.UseTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: build client: %w", err)
	}
	return &SMTPMailer{cfg: cfg, client: client}, nil
}

// Send delivers one HTML email. A failed send is returned as an error; there
// is no retry.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg, err := m.compose(to, subject, htmlBody)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}

// compose builds the message envelope and body. Split out so tests can
// verify message construction without a live SMTP server.
func (m *SMTPMailer) compose(to, subject, htmlBody string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("mail: invalid sender %q: %w", m.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("mail: invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)
	return msg, nil
}
