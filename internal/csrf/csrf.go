// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package csrf configures double-submit cookie CSRF protection.
package csrf

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/careerhub/internal/apperr"
	"codeberg.org/oliverandrich/careerhub/internal/config"
	"codeberg.org/oliverandrich/careerhub/internal/ctxkeys"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// contextKey is where echo's CSRF middleware stores the token.
const contextKey = "csrf"

var errMissingMiddleware = errors.New("csrf: middleware not installed")

// tokenLength is the number of alphanumeric characters per token.
const tokenLength = 32

// Guard holds the CSRF cookie and header settings. The token lives in an
// HttpOnly cookie and must be echoed in a request header by the client.
type Guard struct {
	CookieName string
	HeaderName string
	MaxAge     int
	Secure     bool

	logger *slog.Logger
}

// New builds a Guard from configuration.
func New(cfg config.CSRFConfig, secure bool, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		CookieName: cfg.CookieName,
		HeaderName: cfg.HeaderName,
		MaxAge:     cfg.MaxAge,
		Secure:     secure,
		logger:     logger,
	}
}

// Validate reports whether the header token matches the cookie token.
// Empty values never match.
func Validate(header, cookie string) bool {
	if header == "" || cookie == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(cookie)) == 1
}

// Middleware issues the token cookie on every request and rejects
// state-changing requests without a matching header. The token is copied
// to the request context for Token.
func (g *Guard) Middleware() echo.MiddlewareFunc {
	protect := middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLength:    tokenLength,
		TokenLookup:    "header:" + g.HeaderName,
		ContextKey:     contextKey,
		CookieName:     g.CookieName,
		CookiePath:     "/",
		CookieMaxAge:   g.MaxAge,
		CookieSecure:   g.Secure,
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
		ErrorHandler:   g.reject,
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := protect(func(c echo.Context) error {
			if token, ok := c.Get(contextKey).(string); ok {
				ctx := context.WithValue(c.Request().Context(), ctxkeys.CSRFToken{}, token)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		})
		return func(c echo.Context) error {
			// Fetch metadata would let same-origin requests skip the token
			// and the cookie. Every request goes through double submit.
			c.Request().Header.Del(echo.HeaderSecFetchSite)
			return guarded(c)
		}
	}
}

// reject answers every failure with the same 403, whether the header was
// missing or did not match.
func (g *Guard) reject(_ error, c echo.Context) error {
	req := c.Request()
	_, cookieErr := req.Cookie(g.CookieName)
	g.logger.WarnContext(req.Context(), "csrf_failure",
		"path", req.URL.Path,
		"method", req.Method,
		"ip", c.RealIP(),
		"header_present", req.Header.Get(g.HeaderName) != "",
		"cookie_present", cookieErr == nil,
	)
	return apperr.Csrf()
}

// Handler serves GET /api/csrf with the token the middleware put into the
// cookie.
func (g *Guard) Handler(c echo.Context) error {
	token, ok := c.Get(contextKey).(string)
	if !ok || token == "" {
		return apperr.Internal(errMissingMiddleware)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, map[string]string{"csrfToken": token})
}

// Token returns the token stored in ctx by the middleware.
func Token(ctx context.Context) string {
	if token, ok := ctx.Value(ctxkeys.CSRFToken{}).(string); ok {
		return token
	}
	return ""
}
