// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/careerhub/internal/config"
	"codeberg.org/oliverandrich/careerhub/internal/csrf"
	appmw "codeberg.org/oliverandrich/careerhub/internal/middleware"
	"codeberg.org/oliverandrich/careerhub/internal/ratelimit"
	"codeberg.org/oliverandrich/careerhub/internal/repository"
	"codeberg.org/oliverandrich/careerhub/internal/services/auth"
	"codeberg.org/oliverandrich/careerhub/internal/services/otp"
	"codeberg.org/oliverandrich/careerhub/internal/services/reset"
	"codeberg.org/oliverandrich/careerhub/internal/services/session"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// services bundles what the handlers and middleware need.
type services struct {
	auth     *auth.Service
	otp      *otp.Service
	reset    *reset.Service
	sessions *session.Manager
	csrf     *csrf.Guard
	limiter  ratelimit.Limiter
}

func setupMiddleware(e *echo.Echo, cfg *config.Config, repo *repository.Repository, svc *services, logger *slog.Logger) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(logger))
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(appmw.Locale)
	e.Use(appmw.LoadUser(svc.sessions, repo))
	e.Use(svc.csrf.Middleware())
}

// requestLogger returns middleware that logs requests using slog. Query
// strings are left out since reset links carry tokens.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURIPath:   true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
				slog.String("ip", v.RemoteIP),
			}

			level := slog.LevelInfo
			if v.Status >= 500 {
				level = slog.LevelError
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)

			return nil
		},
	})
}
