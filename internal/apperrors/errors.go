// Package apperrors is the error taxonomy shared by the service and HTTP layers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError independently of its code.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

// AppError is a structured application error with HTTP status and error code.
type AppError struct {
	// Code is a machine-readable reason (e.g. "EVENT_NOT_FOUND").
	Code string `json:"code"`

	// Message is a human-readable message in English.
	Message string `json:"message"`

	Kind       Kind `json:"-"`
	HTTPStatus int  `json:"-"`

	// FieldErrors carries field-level validation details.
	FieldErrors []FieldError `json:"field_errors,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithFieldErrors attaches field-level errors.
func (e *AppError) WithFieldErrors(fieldErrors ...FieldError) *AppError {
	if e == nil || len(fieldErrors) == 0 {
		return e
	}
	e.FieldErrors = append(e.FieldErrors, fieldErrors...)
	return e
}

func newError(kind Kind, status int, code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Kind: kind, HTTPStatus: status, Err: err}
}

// Validation creates a 400 error.
func Validation(code, message string) *AppError {
	return newError(KindValidation, http.StatusBadRequest, code, message, nil)
}

// NotFound creates a 404 error.
func NotFound(code, message string) *AppError {
	return newError(KindNotFound, http.StatusNotFound, code, message, nil)
}

// Conflict creates a 409 error.
func Conflict(code, message string) *AppError {
	return newError(KindConflict, http.StatusConflict, code, message, nil)
}

// Unauthorized creates a 401 error.
func Unauthorized(code, message string) *AppError {
	return newError(KindUnauthorized, http.StatusUnauthorized, code, message, nil)
}

// Forbidden creates a 403 error.
func Forbidden(code, message string) *AppError {
	return newError(KindForbidden, http.StatusForbidden, code, message, nil)
}

// Unavailable wraps a store outage or timeout as a 503 error.
func Unavailable(err error) *AppError {
	return newError(KindUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable, "data store unavailable", err)
}

// Internal wraps an unexpected failure as a 500 error.
func Internal(err error) *AppError {
	return newError(KindInternal, http.StatusInternalServerError, CodeInternal, "internal error", err)
}

// As extracts an AppError from an error chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// From returns err as an AppError, wrapping unknown errors as Internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	return Internal(err)
}
