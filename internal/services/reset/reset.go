// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package reset manages single-use password reset tokens.
package reset

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/models"
	"codeberg.org/oliverandrich/careerhub/internal/repository"
	"codeberg.org/oliverandrich/careerhub/internal/sanitize"
	"github.com/gorilla/securecookie"
)

const (
	// TokenLength is the number of random bytes per token.
	TokenLength = 32
	// DefaultExpiry is how long a reset token is valid.
	DefaultExpiry = time.Hour
)

var (
	// ErrInvalidToken covers unknown, mismatched, expired and used tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrTransport wraps a mail delivery failure. No token is stored.
	ErrTransport = errors.New("failed to send reset email")
)

// Store persists users and reset tokens.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertVerificationToken(ctx context.Context, token *models.VerificationToken) error
	GetVerificationToken(ctx context.Context, identifier string) (*models.VerificationToken, error)
	ConsumeVerificationToken(ctx context.Context, identifier, tokenHash string) (bool, error)
	RedeemVerificationToken(ctx context.Context, identifier, tokenHash, passwordHash string) (bool, error)
	DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error)
}

// Mailer delivers the reset link.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, name, token string, ttl time.Duration) error
}

// Service issues and redeems reset tokens. Only the SHA-256 hash of a token
// is stored.
type Service struct {
	store  Store
	mailer Mailer
	expiry time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a new reset service.
func NewService(store Store, mailer Mailer, expiry time.Duration, now func() time.Time, logger *slog.Logger) *Service {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, mailer: mailer, expiry: expiry, now: now, logger: logger}
}

// GenerateToken returns a plaintext token (64 hex chars) and its hash.
func GenerateToken() (string, string, error) {
	raw := securecookie.GenerateRandomKey(TokenLength)
	if raw == nil {
		return "", "", errors.New("failed to generate random bytes")
	}
	plaintext := hex.EncodeToString(raw)
	return plaintext, HashToken(plaintext), nil
}

// HashToken computes the SHA256 hash of a token.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Request mails a reset link if an account exists for email. Unknown
// addresses are a silent no-op so callers can answer uniformly.
func (s *Service) Request(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.InfoContext(ctx, "reset_requested", "email", sanitize.MaskEmail(email), "known", false)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}

	plaintext, hash, err := GenerateToken()
	if err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.DisplayName, plaintext, s.expiry); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	now := s.now().UTC()
	err = s.store.UpsertVerificationToken(ctx, &models.VerificationToken{
		Identifier: user.Email,
		TokenHash:  hash,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.expiry),
	})
	if err != nil {
		return fmt.Errorf("saving reset token: %w", err)
	}

	s.logger.InfoContext(ctx, "reset_requested", "email", sanitize.MaskEmail(email), "known", true)
	return nil
}

// Check reports whether token is currently valid for email without
// consuming it.
func (s *Service) Check(ctx context.Context, email, token string) error {
	_, err := s.lookup(ctx, email, token)
	return err
}

// Redeem consumes token for email and stores passwordHash as the account's
// new password in the same transaction. A token can be redeemed once.
func (s *Service) Redeem(ctx context.Context, email, token, passwordHash string) error {
	rec, err := s.lookup(ctx, email, token)
	if err != nil {
		return err
	}

	redeemed, err := s.store.RedeemVerificationToken(ctx, email, rec.TokenHash, passwordHash)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("redeeming reset token: %w", err)
	}
	if !redeemed {
		return ErrInvalidToken
	}

	s.logger.InfoContext(ctx, "password_reset", "email", sanitize.MaskEmail(email))
	return nil
}

// PurgeExpired deletes every expired token.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredVerificationTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purging reset tokens: %w", err)
	}
	return n, nil
}

func (s *Service) lookup(ctx context.Context, email, token string) (*models.VerificationToken, error) {
	if email == "" || token == "" {
		return nil, ErrInvalidToken
	}

	rec, err := s.store.GetVerificationToken(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("loading reset token: %w", err)
	}

	if rec.Expired(s.now()) {
		// Only the expired row goes; a token requested meanwhile survives.
		if _, err := s.store.ConsumeVerificationToken(ctx, email, rec.TokenHash); err != nil {
			s.logger.ErrorContext(ctx, "reset_cleanup_failed", "email", sanitize.MaskEmail(email), "error", err)
		}
		return nil, ErrInvalidToken
	}

	if subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(rec.TokenHash)) != 1 {
		return nil, ErrInvalidToken
	}
	return rec, nil
}
