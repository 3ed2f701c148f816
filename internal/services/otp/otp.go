// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp issues and verifies email one-time passcodes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/config"
	"codeberg.org/oliverandrich/careerhub/internal/models"
	"codeberg.org/oliverandrich/careerhub/internal/repository"
	"codeberg.org/oliverandrich/careerhub/internal/sanitize"
)

var (
	// ErrInvalidCode covers unknown, mismatched and expired codes alike.
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrTooManyAttempts is returned once a code has used up its attempts.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrTransport wraps a mail delivery failure. No code is stored.
	ErrTransport = errors.New("failed to send verification code")
	// ErrSendTooSoon is returned when a new code is requested within the
	// send interval of the previous one.
	ErrSendTooSoon = errors.New("verification code requested too frequently")
)

// Store persists the single pending code per identifier.
type Store interface {
	UpsertVerificationCode(ctx context.Context, code *models.VerificationCode) error
	GetVerificationCode(ctx context.Context, identifier string) (*models.VerificationCode, error)
	ReserveVerificationAttempt(ctx context.Context, identifier, code string, maxAttempts int) (bool, error)
	ConsumeVerificationCode(ctx context.Context, identifier, code string) (bool, error)
	DeleteExpiredVerificationCodes(ctx context.Context, now time.Time) (int64, error)
}

// Mailer delivers a code to the user.
type Mailer interface {
	SendOTP(ctx context.Context, to, name, code string, ttl time.Duration) error
}

// Service implements the code lifecycle: generate, send, save, verify.
type Service struct {
	store  Store
	mailer Mailer
	cfg    config.OTPConfig
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new OTP service.
func NewService(store Store, mailer Mailer, cfg config.OTPConfig, opts ...Option) *Service {
	if cfg.Length < 4 || cfg.Length > 10 {
		cfg.Length = 6
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	s := &Service{
		store:  store,
		mailer: mailer,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate returns a random numeric code of the configured length.
func (s *Service) Generate() (string, error) {
	var b strings.Builder
	b.Grow(s.cfg.Length)
	for range s.cfg.Length {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Send mails code to email. Failures wrap ErrTransport.
func (s *Service) Send(ctx context.Context, email, code, displayName string) error {
	if err := s.mailer.SendOTP(ctx, email, displayName, code, s.cfg.Expiry); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// Save stores code as the only pending code for email, replacing any
// previous one and resetting its attempt counter.
func (s *Service) Save(ctx context.Context, email, code string) error {
	now := s.now().UTC()
	err := s.store.UpsertVerificationCode(ctx, &models.VerificationCode{
		Identifier: email,
		Code:       code,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.Expiry),
	})
	if err != nil {
		return fmt.Errorf("saving verification code: %w", err)
	}
	return nil
}

// Issue generates a code, mails it and then stores it. A failed send leaves
// the previously stored code, if any, untouched.
func (s *Service) Issue(ctx context.Context, email, displayName string) error {
	if err := s.checkInterval(ctx, email); err != nil {
		return err
	}

	code, err := s.Generate()
	if err != nil {
		return err
	}

	if err := s.Send(ctx, email, code, displayName); err != nil {
		s.logger.WarnContext(ctx, "otp_send_failed", "email", sanitize.MaskEmail(email), "error", err)
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.Save(ctx, email, code); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "otp_sent", "email", sanitize.MaskEmail(email))
	return nil
}

// Resend replaces the pending code with a fresh one.
func (s *Service) Resend(ctx context.Context, email, displayName string) error {
	return s.Issue(ctx, email, displayName)
}

// Verify checks code against the pending code for email. On success the
// code is consumed and cannot be used again.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidCode
	}

	rec, err := s.store.GetVerificationCode(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("loading verification code: %w", err)
	}

	if rec.Expired(s.now()) {
		// Only the expired row goes; a code issued meanwhile survives.
		if _, err := s.store.ConsumeVerificationCode(ctx, email, rec.Code); err != nil {
			s.logger.ErrorContext(ctx, "otp_cleanup_failed", "email", sanitize.MaskEmail(email), "error", err)
		}
		return ErrInvalidCode
	}

	reserved, err := s.store.ReserveVerificationAttempt(ctx, email, rec.Code, s.cfg.MaxAttempts)
	if err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}
	if !reserved {
		return ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(rec.Code)) != 1 {
		s.logger.InfoContext(ctx, "otp_verify_failed", "email", sanitize.MaskEmail(email))
		return ErrInvalidCode
	}

	consumed, err := s.store.ConsumeVerificationCode(ctx, email, rec.Code)
	if err != nil {
		return fmt.Errorf("consuming verification code: %w", err)
	}
	if !consumed {
		// Replaced or used by a concurrent request.
		return ErrInvalidCode
	}
	return nil
}

// PurgeExpired deletes every expired code.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredVerificationCodes(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purging verification codes: %w", err)
	}
	return n, nil
}

func (s *Service) checkInterval(ctx context.Context, email string) error {
	if s.cfg.SendInterval <= 0 {
		return nil
	}
	rec, err := s.store.GetVerificationCode(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading verification code: %w", err)
	}
	if s.now().Sub(rec.CreatedAt) < s.cfg.SendInterval {
		return ErrSendTooSoon
	}
	return nil
}
