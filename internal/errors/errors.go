// Package errors defines the application error taxonomy. Every error that
// crosses a module boundary carries a Kind; the job queue uses the kind to
// decide between retry and terminal failure, and the HTTP layer maps kinds to
// status codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry and HTTP mapping decisions.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
	KindPermanent  Kind = "permanent"
	KindUnknown    Kind = "unknown"
)

// AppError is a structured error with a kind and optional context.
type AppError struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error kind to an HTTP status code.
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Constructors

func NotFound(resource, id string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: resource + " not found",
		Context: map[string]interface{}{"resource": resource, "id": id},
	}
}

func Validation(message string, field string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Message: message,
		Context: map[string]interface{}{"field": field},
	}
}

func Conflict(message string, context map[string]interface{}) *AppError {
	return &AppError{
		Kind:    KindConflict,
		Message: message,
		Context: context,
	}
}

// Transient wraps an error that is expected to succeed on retry (network,
// disk, rate limit).
func Transient(message string, cause error) *AppError {
	return &AppError{Kind: KindTransient, Message: message, Cause: cause}
}

// Permanent wraps an error that must never be retried.
func Permanent(message string, cause error) *AppError {
	return &AppError{Kind: KindPermanent, Message: message, Cause: cause}
}

func Internal(message string, cause error) *AppError {
	return &AppError{Kind: KindUnknown, Message: message, Cause: cause}
}

func Wrapf(kind Kind, cause error, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the kind from any error. Errors without an AppError in
// their chain are treated as unknown, which the job queue retries.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// IsRetriable reports whether the job queue should retry the error.
// Unknown errors are retried; anything explicitly terminal is not.
func IsRetriable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindUnknown:
		return true
	default:
		return false
	}
}

// Is / As passthroughs so callers do not need both packages.

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }
