// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers transactional mail.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/config"
	"codeberg.org/oliverandrich/careerhub/internal/i18n"
	"codeberg.org/oliverandrich/careerhub/internal/sanitize"
	"github.com/wneessen/go-mail"
)

// Sender is the mail transport. Implementations must not retain body, which
// may contain one-time secrets.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ErrNotConfigured is returned by NewSMTPSender when required settings are missing.
var ErrNotConfigured = errors.New("smtp not configured")

// SMTPSender sends mail through an SMTP relay using go-mail.
type SMTPSender struct {
	cfg *config.SMTPConfig
}

// NewSMTPSender validates cfg and returns a sender.
func NewSMTPSender(cfg *config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: SMTP host is required", ErrNotConfigured)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: SMTP from address is required", ErrNotConfigured)
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send delivers a plain text message. The configured timeout bounds the
// whole dial-and-send exchange in addition to ctx.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.cfg.Timeout))
	}

	// Implicit TLS on 465, STARTTLS elsewhere.
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// LogSender is used in development when no SMTP host is configured. It only
// records that a message would have been sent.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (l LogSender) Send(ctx context.Context, to, subject, _ string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "email_not_delivered",
		"to", sanitize.MaskEmail(to),
		"subject", subject,
		"reason", "smtp not configured",
	)
	return nil
}

// Service renders localised messages and hands them to a Sender.
type Service struct {
	sender  Sender
	baseURL string
}

// NewService creates a new email service.
func NewService(sender Sender, baseURL string) *Service {
	return &Service{
		sender:  sender,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// SendOTP mails a verification code.
func (s *Service) SendOTP(ctx context.Context, to, name, code string, ttl time.Duration) error {
	subject := i18n.T(ctx, "email_otp_subject")
	body := i18n.TData(ctx, "email_otp_body", map[string]any{
		"Name":    greetingName(name, to),
		"Code":    code,
		"Minutes": int(ttl.Minutes()),
	})
	return s.sender.Send(ctx, to, subject, body)
}

// SendPasswordReset mails a one-time reset link.
func (s *Service) SendPasswordReset(ctx context.Context, to, name, token string, ttl time.Duration) error {
	subject := i18n.T(ctx, "email_reset_subject")
	body := i18n.TData(ctx, "email_reset_body", map[string]any{
		"Name":    greetingName(name, to),
		"Link":    s.ResetURL(to, token),
		"Minutes": int(ttl.Minutes()),
	})
	return s.sender.Send(ctx, to, subject, body)
}

// ResetURL builds the link the client opens to choose a new password.
func (s *Service) ResetURL(email, token string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return s.baseURL + "/reset-password?" + q.Encode()
}

func greetingName(name, email string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
