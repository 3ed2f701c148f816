// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package apperr defines the error taxonomy shared by services and handlers
// and maps it onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"codeberg.org/oliverandrich/careerhub/internal/sanitize"
)

// Kind classifies an error for the client.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindCsrf
	KindNotFound
	KindConflict
	KindTransport
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindCsrf:
		return "csrf"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransport:
		return "transport"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindCsrf:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		// Transport failures are reported as 500 so SMTP details stay internal.
		return http.StatusInternalServerError
	}
}

// Messages sent to clients for kinds that never expose details.
const (
	MsgInternal  = "internal server error"
	MsgCsrf      = "invalid csrf token"
	MsgRateLimit = "too many requests"
	MsgTransport = "failed to send email"
)

// Error is an error with a kind and a client-safe message. Err carries the
// underlying cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error.
func (e *Error) Status() int { return e.Kind.Status() }

// PublicMessage is the text written into the response body.
func (e *Error) PublicMessage() string {
	switch e.Kind {
	case KindInternal:
		return MsgInternal
	case KindTransport:
		return MsgTransport
	}
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Validation returns a 400 error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// ValidationField returns a 400 error naming the offending field.
func ValidationField(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Field: field}
}

// Unauthorized returns a 401 error.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// Csrf returns the 403 CSRF failure.
func Csrf() *Error {
	return &Error{Kind: KindCsrf, Message: MsgCsrf}
}

// NotFound returns a 404 error.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Conflict returns a 409 error.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// RateLimit returns a 429 error.
func RateLimit() *Error {
	return &Error{Kind: KindRateLimit, Message: MsgRateLimit}
}

// Transport wraps a delivery failure (SMTP and similar).
func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Message: MsgTransport, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}

// Wrap attaches a cause to an existing error template.
func Wrap(e *Error, err error) *Error {
	out := *e
	out.Err = err
	return &out
}

// From classifies any error. Unknown errors become internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var injErr *sanitize.InjectionError
	if errors.As(err, &injErr) {
		return &Error{Kind: KindValidation, Message: "invalid input", Field: injErr.Field, Err: err}
	}
	return Internal(err)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
