// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package ratelimit

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"codeberg.org/oliverandrich/careerhub/internal/apperr"
	"github.com/labstack/echo/v4"
)

// KeyFunc derives the counter key from a request.
type KeyFunc func(c echo.Context) string

// Rule configures one rate-limited route group.
type Rule struct {
	Name       string
	Key        KeyFunc
	FailClosed bool
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. Limiter errors let the request through unless FailClosed is set.
func Middleware(l Limiter, rule Rule, logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	keyFunc := rule.Key
	if keyFunc == nil {
		keyFunc = KeyByIP
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := keyFunc(c)
			if rule.Name != "" {
				key = rule.Name + ":" + key
			}

			d, err := l.Allow(c.Request().Context(), key)
			if err != nil {
				logger.ErrorContext(c.Request().Context(), "rate_limit_unavailable", "rule", rule.Name, "error", err)
				if rule.FailClosed {
					return apperr.RateLimit()
				}
				return next(c)
			}

			if !d.Allowed {
				seconds := int(math.Ceil(d.RetryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
				logger.WarnContext(c.Request().Context(), "rate_limited", "rule", rule.Name, "ip", c.RealIP())
				return apperr.RateLimit()
			}
			return next(c)
		}
	}
}

// KeyByIP uses the client IP as key.
func KeyByIP(c echo.Context) string {
	return c.RealIP()
}

// KeyByIPAndJSONField keys on a JSON body field plus the client IP, so one
// address cannot be hammered from a single client. The body is restored for
// the handler.
func KeyByIPAndJSONField(field string) KeyFunc {
	return func(c echo.Context) string {
		value := strings.ToLower(strings.TrimSpace(readJSONField(c, field)))
		if value == "" {
			return c.RealIP()
		}
		return value + "|" + c.RealIP()
	}
}

func readJSONField(c echo.Context, field string) string {
	req := c.Request()
	if req.Body == nil {
		return ""
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return ""
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) == 0 {
		return ""
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if text, ok := payload[field].(string); ok {
		return text
	}
	return ""
}
