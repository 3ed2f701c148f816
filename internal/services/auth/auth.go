// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements account registration, login and password changes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/models"
	"codeberg.org/oliverandrich/careerhub/internal/repository"
	"codeberg.org/oliverandrich/careerhub/internal/sanitize"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidEmail       = errors.New("invalid email format")
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Store persists user accounts.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, email string, at time.Time) error
}

type Service struct {
	store             Store
	passwordValidator *PasswordValidator
	cost              int
	now               func() time.Time
	logger            *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:             store,
		passwordValidator: DefaultPasswordValidator(),
		cost:              bcrypt.DefaultCost,
		now:               time.Now,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterParams holds the parameters for user registration
type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
}

// ValidatePassword returns a *PasswordValidationError if password does not
// meet the policy.
func (s *Service) ValidatePassword(password string, userAttributes ...string) error {
	validation := s.passwordValidator.Validate(password, userAttributes...)
	if !validation.Valid {
		return &PasswordValidationError{Errors: validation.Errors}
	}
	return nil
}

// Register creates a new, unverified user account.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.User, error) {
	email, err := sanitize.NormalizeEmail(params.Email)
	if err != nil {
		return nil, ErrInvalidEmail
	}

	if err := s.ValidatePassword(params.Password, email); err != nil {
		return nil, err
	}

	_, err = s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(passwordHash),
		DisplayName:  params.DisplayName,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		// Lost a race against a concurrent registration.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "register_success", "user_id", user.ID, "email", sanitize.MaskEmail(email))

	return user, nil
}

// Authenticate checks credentials. Unverified accounts are refused with
// ErrEmailNotVerified, but only after the password matched.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			s.logger.WarnContext(ctx, "login_failed", "email", sanitize.MaskEmail(email), "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "login_failed", "email", sanitize.MaskEmail(email), "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified() {
		s.logger.InfoContext(ctx, "login_failed", "email", sanitize.MaskEmail(email), "reason", "email_not_verified")
		return nil, ErrEmailNotVerified
	}

	s.logger.InfoContext(ctx, "login_success", "user_id", user.ID)
	return user, nil
}

// Lookup returns the user for email or ErrUserNotFound.
func (s *Service) Lookup(ctx context.Context, email string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// IsVerified reports whether the account for email confirmed its address.
func (s *Service) IsVerified(ctx context.Context, email string) (bool, error) {
	user, err := s.Lookup(ctx, email)
	if err != nil {
		return false, err
	}
	return user.IsVerified(), nil
}

// MarkVerified records that email was confirmed. It is idempotent.
func (s *Service) MarkVerified(ctx context.Context, email string) error {
	err := s.store.MarkEmailVerified(ctx, email, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	s.logger.InfoContext(ctx, "email_verified", "email", sanitize.MaskEmail(email))
	return nil
}

// ResetPasswordHash checks newPassword against the policy for the account
// behind email and returns its bcrypt hash. Storing the hash is left to the
// reset token redemption.
func (s *Service) ResetPasswordHash(ctx context.Context, email, newPassword string) (string, error) {
	user, err := s.Lookup(ctx, email)
	if err != nil {
		return "", err
	}

	if err := s.ValidatePassword(newPassword, user.Email); err != nil {
		return "", err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(passwordHash), nil
}
