// Package apperr is the single error taxonomy of the service. Every
// component returns plain Go errors; the ones the API layer needs to map to
// a specific HTTP status wrap or construct an *Error so apperr.StatusCode
// can recover that intent without type-switching on component-local error
// values.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates errors by how the API layer and retry logic treat them.
type Kind string

const (
	Validation      Kind = "validation"
	Unauthorized    Kind = "unauthorized"
	NotFound        Kind = "not_found"
	PayloadTooLarge Kind = "payload_too_large"
	Transient       Kind = "transient"
	LLMParsing      Kind = "llm_parsing"
	GraphMapper     Kind = "graph_mapper"
	Fatal           Kind = "fatal"
)

// Error is the sum-type error carrying a Kind, a message, and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) is an *Error of the given
// Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Fatal for plain errors that
// never opted into the taxonomy.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Fatal
}

// StatusCode maps a Kind to the HTTP status code the API layer returns.
// Ingestion errors are persisted on the task rather than returned in-band;
// callers in that path use Kind directly instead of this mapping.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case Validation:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case Transient, LLMParsing, Fatal, GraphMapper:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// StatusCode maps any error to an HTTP status, defaulting to 500 for errors
// that never opted into the taxonomy.
func StatusCode(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.StatusCode()
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the caller should retry err with backoff. Only
// Transient errors are retry-worthy; everything else fails fast.
func Retryable(err error) bool {
	return KindOf(err) == Transient
}
