// Package apperr defines the typed error taxonomy shared across every
// component, and the single place that maps it onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error the way every layer above storage needs to
// reason about it: what HTTP status it maps to, and whether it is safe to
// retry.
type Kind string

const (
	Unauthenticated  Kind = "unauthenticated"
	PermissionDenied Kind = "permission_denied"
	NotFound         Kind = "not_found"
	Conflict         Kind = "conflict"
	InvalidInput     Kind = "invalid_input"
	PolicyViolation  Kind = "policy_violation"
	TamperDetected   Kind = "tamper_detected"
	KeyUnknown       Kind = "key_unknown"
	Transient        Kind = "transient"
	Deadline         Kind = "deadline"
	FKViolation      Kind = "fk_violation"
)

// statusByKind is the single source of truth for the error-taxonomy table:
// every Kind maps to exactly one HTTP status.
var statusByKind = map[Kind]int{
	Unauthenticated:  http.StatusUnauthorized,
	PermissionDenied: http.StatusForbidden,
	NotFound:         http.StatusNotFound,
	Conflict:         http.StatusConflict,
	InvalidInput:     http.StatusBadRequest,
	PolicyViolation:  http.StatusUnprocessableEntity,
	TamperDetected:   http.StatusInternalServerError,
	KeyUnknown:       http.StatusInternalServerError,
	Transient:        http.StatusServiceUnavailable,
	Deadline:         http.StatusGatewayTimeout,
	FKViolation:      http.StatusConflict,
}

// Error is the typed error value every component returns for expected
// failure modes. Unexpected failures should be wrapped with fmt.Errorf and
// left unclassified; the HTTP boundary maps those to a 500 via As's
// zero-value fallback.
type Error struct {
	Kind    Kind
	Message string
	// Path is set for PolicyViolation: the dotted config path that failed.
	Path string
	// KeyID is set for KeyUnknown/TamperDetected: the envelope key id
	// involved, never the plaintext or ciphertext itself.
	KeyID string
	Err   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code this error maps to.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err as an Error of the given kind, preserving it for errors.Is/As.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithPath attaches a dotted config path (used by PolicyViolation).
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithKeyID attaches an envelope key id (used by KeyUnknown/TamperDetected).
func (e *Error) WithKeyID(keyID string) *Error {
	e.KeyID = keyID
	return e
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// StatusOf returns the HTTP status for any error, falling back to 500 for
// errors that were never classified.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status()
	}
	return http.StatusInternalServerError
}
