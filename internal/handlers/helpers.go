// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"io"

	"codeberg.org/oliverandrich/careerhub/internal/apperr"
	"codeberg.org/oliverandrich/careerhub/internal/i18n"
	"codeberg.org/oliverandrich/careerhub/internal/sanitize"
	"github.com/labstack/echo/v4"
)

// messageResponse is the body of successful state-changing calls.
type messageResponse struct {
	Message string `json:"message"`
}

func translate(c echo.Context, messageID string) string {
	return i18n.T(c.Request().Context(), messageID)
}

func message(c echo.Context, status int, messageID string) error {
	return c.JSON(status, messageResponse{Message: translate(c, messageID)})
}

// bindClean decodes the JSON body into dst after rejecting injection
// patterns and stripping markup. Fields named in raw (passwords) bypass
// sanitizing so they are stored exactly as typed.
func bindClean(c echo.Context, dst any, raw ...string) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return apperr.Validation("invalid request body")
	}
	if len(body) == 0 {
		return apperr.Validation("request body is required")
	}

	payload, err := sanitize.Decode(body)
	if err != nil {
		return apperr.Validation("invalid request body")
	}
	record, ok := payload.(sanitize.Record)
	if !ok {
		return apperr.Validation("request body must be a JSON object")
	}

	untouched := make(sanitize.Record, len(raw))
	for _, field := range raw {
		if v, ok := record[field]; ok {
			untouched[field] = v
			delete(record, field)
		}
	}

	cleaned, err := sanitize.SanitizeForStorage(record)
	if err != nil {
		return apperr.From(err)
	}

	out := cleaned.(sanitize.Record)
	for k, v := range untouched {
		out[k] = v
	}

	if err := sanitize.Into(out, dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

// normalizeEmail validates and canonicalises an email field.
func normalizeEmail(email string) (string, error) {
	normalized, err := sanitize.NormalizeEmail(email)
	if err != nil {
		return "", apperr.ValidationField("email", "invalid email address")
	}
	return normalized, nil
}
