// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/careerhub/internal/apperr"
	"codeberg.org/oliverandrich/careerhub/internal/models"
	"codeberg.org/oliverandrich/careerhub/internal/sanitize"
	"codeberg.org/oliverandrich/careerhub/internal/services/auth"
	"codeberg.org/oliverandrich/careerhub/internal/services/otp"
	"codeberg.org/oliverandrich/careerhub/internal/services/reset"
	"codeberg.org/oliverandrich/careerhub/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains the registration, verification and login handlers.
type AuthHandlers struct {
	auth     *auth.Service
	otp      *otp.Service
	reset    *reset.Service
	sessions *session.Manager
	logger   *slog.Logger
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(
	authService *auth.Service,
	otpService *otp.Service,
	resetService *reset.Service,
	sessions *session.Manager,
	logger *slog.Logger,
) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{
		auth:     authService,
		otp:      otpService,
		reset:    resetService,
		sessions: sessions,
		logger:   logger,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

type userResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

// Register creates an unverified account and mails the first code.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req registerRequest
	if err := bindClean(c, &req, "password"); err != nil {
		return err
	}
	ctx := c.Request().Context()

	user, err := h.auth.Register(ctx, auth.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return serviceError(err)
	}

	// The account stays; the client can ask for a new code via send-otp.
	if err := h.otp.Issue(ctx, user.Email, user.DisplayName); err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusCreated, userResponse{
		Message: translate(c, "msg_registered"),
		User:    user,
	})
}

// SendOTP issues a fresh code for an unverified account.
func (h *AuthHandlers) SendOTP(c echo.Context) error {
	var req emailRequest
	if err := bindClean(c, &req); err != nil {
		return err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	user, err := h.auth.Lookup(ctx, email)
	if errors.Is(err, auth.ErrUserNotFound) {
		h.logger.InfoContext(ctx, "otp_requested_unknown", "email", sanitize.MaskEmail(email))
		return message(c, http.StatusOK, "msg_otp_sent")
	}
	if err != nil {
		return serviceError(err)
	}
	if user.IsVerified() {
		return apperr.Validation(msgAlreadyVerified)
	}

	if err := h.otp.Resend(ctx, user.Email, user.DisplayName); err != nil {
		return serviceError(err)
	}
	return message(c, http.StatusOK, "msg_otp_sent")
}

// VerifyOTP confirms the account's email with a pending code.
func (h *AuthHandlers) VerifyOTP(c echo.Context) error {
	var req verifyRequest
	if err := bindClean(c, &req); err != nil {
		return err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	user, err := h.auth.Lookup(ctx, email)
	if errors.Is(err, auth.ErrUserNotFound) {
		return apperr.Validation(msgInvalidCode)
	}
	if err != nil {
		return serviceError(err)
	}
	if user.IsVerified() {
		return apperr.Validation(msgAlreadyVerified)
	}

	if err := h.otp.Verify(ctx, email, req.Code); err != nil {
		return serviceError(err)
	}
	if err := h.auth.MarkVerified(ctx, email); err != nil {
		return serviceError(err)
	}
	return message(c, http.StatusOK, "msg_email_verified")
}

// Login authenticates a verified account and sets the session cookie.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req loginRequest
	if err := bindClean(c, &req, "password"); err != nil {
		return err
	}
	email, err := sanitize.NormalizeEmail(req.Email)
	if err != nil {
		return apperr.Unauthorized(msgInvalidCredentials)
	}
	ctx := c.Request().Context()

	user, err := h.auth.Authenticate(ctx, email, req.Password)
	if err != nil {
		return serviceError(err)
	}

	cookie, err := h.sessions.Create(user.ID, user.Email)
	if err != nil {
		return apperr.Internal(err)
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, userResponse{
		Message: translate(c, "msg_logged_in"),
		User:    user,
	})
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.Clear())
	return message(c, http.StatusOK, "msg_logged_out")
}

// ForgotPassword mails a reset link. The answer never reveals whether the
// account exists.
func (h *AuthHandlers) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := bindClean(c, &req); err != nil {
		return err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if err := h.reset.Request(ctx, email); err != nil {
		if !errors.Is(err, reset.ErrTransport) {
			return serviceError(err)
		}
		h.logger.ErrorContext(ctx, "reset_send_failed", "email", sanitize.MaskEmail(email), "error", err)
	}
	return message(c, http.StatusOK, "msg_reset_requested")
}

// ResetPassword redeems a reset token and sets the new password in one
// step; a failure leaves both untouched.
func (h *AuthHandlers) ResetPassword(c echo.Context) error {
	var req resetRequest
	if err := bindClean(c, &req, "password", "token"); err != nil {
		return err
	}
	email, err := sanitize.NormalizeEmail(req.Email)
	if err != nil {
		return apperr.Validation(msgInvalidToken)
	}
	ctx := c.Request().Context()

	// Check the policy first so a weak password does not burn the token.
	if err := h.auth.ValidatePassword(req.Password, email); err != nil {
		return serviceError(err)
	}

	if err := h.reset.Check(ctx, email, req.Token); err != nil {
		return serviceError(err)
	}

	passwordHash, err := h.auth.ResetPasswordHash(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return apperr.Wrap(apperr.Validation(msgInvalidToken), err)
		}
		return serviceError(err)
	}

	if err := h.reset.Redeem(ctx, email, req.Token, passwordHash); err != nil {
		return serviceError(err)
	}
	return message(c, http.StatusOK, "msg_password_reset")
}
