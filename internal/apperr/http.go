// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package apperr

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/careerhub/internal/sanitize"
	"github.com/labstack/echo/v4"
)

// Response is the JSON body of every error response.
type Response struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// HTTPErrorHandler returns an echo error handler that writes the error body
// and logs server-side failures with their cause.
func HTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := Render(err)

		req := c.Request()
		attrs := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", append(attrs, "error", err)...)
		} else {
			logger.Info("request rejected", append(attrs, "error", body.Error)...)
		}

		var writeErr error
		if req.Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error("failed to write error response", "error", writeErr)
		}
	}
}

// Render maps err to a status code and response body. echo's own
// HTTPErrors (404 for unknown routes, 405, 413) keep their status.
func Render(err error) (int, Response) {
	if appErr := classify(err); appErr != nil {
		return appErr.Status(), Response{Error: appErr.PublicMessage(), Field: appErr.Field}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
			msg = s
		}
		if he.Code >= http.StatusInternalServerError {
			msg = MsgInternal
		}
		return he.Code, Response{Error: msg}
	}

	return http.StatusInternalServerError, Response{Error: MsgInternal}
}

// classify is From without the internal fallback, so echo errors keep their
// own status.
func classify(err error) *Error {
	var appErr *Error
	var injErr *sanitize.InjectionError
	if errors.As(err, &appErr) || errors.As(err, &injErr) {
		return From(err)
	}
	return nil
}
