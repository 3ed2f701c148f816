// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware holds echo middleware shared by the API routes.
package middleware

import (
	"context"
	"errors"
	"log/slog"

	"codeberg.org/oliverandrich/careerhub/internal/apperr"
	"codeberg.org/oliverandrich/careerhub/internal/auth"
	"codeberg.org/oliverandrich/careerhub/internal/models"
	"codeberg.org/oliverandrich/careerhub/internal/repository"
	"codeberg.org/oliverandrich/careerhub/internal/services/session"
	"github.com/labstack/echo/v4"
)

// UserLoader is an interface for loading full user data
type UserLoader interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// LoadUser puts the session user into the request context. Sessions whose
// user no longer exists are ignored.
func LoadUser(sessions *session.Manager, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			data, err := sessions.Parse(req)
			if err != nil || data == nil {
				return next(c)
			}

			user, err := users.GetUserByID(req.Context(), data.UserID)
			if err != nil {
				if !errors.Is(err, repository.ErrNotFound) {
					slog.ErrorContext(req.Context(), "failed to load session user", "user_id", data.UserID, "error", err)
				}
				return next(c)
			}

			c.SetRequest(req.WithContext(auth.WithUser(req.Context(), user)))
			return next(c)
		}
	}
}

// RequireAuth rejects requests without an authenticated user.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !auth.IsAuthenticated(c.Request().Context()) {
			return apperr.Unauthorized("authentication required")
		}
		return next(c)
	}
}
