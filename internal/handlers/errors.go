// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"

	"codeberg.org/oliverandrich/careerhub/internal/apperr"
	"codeberg.org/oliverandrich/careerhub/internal/services/auth"
	"codeberg.org/oliverandrich/careerhub/internal/services/otp"
	"codeberg.org/oliverandrich/careerhub/internal/services/reset"
)

// Client-facing messages shared by several handlers.
const (
	msgAlreadyVerified    = "already verified"
	msgInvalidCode        = "invalid or expired code"
	msgInvalidToken       = "invalid or expired token"
	msgInvalidCredentials = "invalid email or password"
	msgNotVerified        = "email not verified"
	msgEmailTaken         = "email already registered"
	msgTooManyAttempts    = "too many attempts, request a new code"
)

// serviceError maps service sentinels onto the error taxonomy. Anything
// unknown becomes an internal error with the cause kept for the log.
func serviceError(err error) error {
	var pwErr *auth.PasswordValidationError

	switch {
	case err == nil:
		return nil
	case errors.As(err, &pwErr):
		return apperr.ValidationField("password", pwErr.Error())
	case errors.Is(err, auth.ErrInvalidEmail):
		return apperr.ValidationField("email", "invalid email address")
	case errors.Is(err, auth.ErrUserExists):
		return apperr.Wrap(apperr.Conflict(msgEmailTaken), err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperr.Wrap(apperr.Unauthorized(msgInvalidCredentials), err)
	case errors.Is(err, auth.ErrEmailNotVerified):
		return apperr.Wrap(apperr.Unauthorized(msgNotVerified), err)
	case errors.Is(err, otp.ErrInvalidCode):
		return apperr.Wrap(apperr.Validation(msgInvalidCode), err)
	case errors.Is(err, otp.ErrTooManyAttempts):
		return apperr.Wrap(&apperr.Error{Kind: apperr.KindRateLimit, Message: msgTooManyAttempts}, err)
	case errors.Is(err, otp.ErrSendTooSoon):
		return apperr.Wrap(apperr.RateLimit(), err)
	case errors.Is(err, otp.ErrTransport), errors.Is(err, reset.ErrTransport):
		return apperr.Transport(err)
	case errors.Is(err, reset.ErrInvalidToken):
		return apperr.Wrap(apperr.Validation(msgInvalidToken), err)
	default:
		return apperr.From(err)
	}
}
