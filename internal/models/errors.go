package models

import (
	"errors"
	"fmt"
)

// Error kinds carried on the wire and in SaveOutcome.ErrorKind.
const (
	ErrKindValidation  = "validation"
	ErrKindTransient   = "transient"
	ErrKindPersistence = "persistence"
	ErrKindOffline     = "offline"
)

// Sentinel errors
var (
	ErrSaveInFlight       = errors.New("save already in flight")
	ErrQueueEntryNotFound = errors.New("queued save not found")
	ErrStoreUnavailable   = errors.New("persistent store unavailable")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrNoCatalog          = errors.New("catalog source returned no records")
)

// APIError is the error shape returned by the save endpoint.
type APIError struct {
	ErrorKind  string `json:"error_kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.ErrorKind, e.Message)
}

// SaveError classifies a failed delivery attempt. Kind drives the
// pipeline's retry decision: transient errors consume retry budget,
// validation and persistence errors surface immediately.
type SaveError struct {
	Kind   string
	UserID string
	Err    error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save [%s]: user %s: %v", e.Kind, e.UserID, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Retryable reports whether an attempt failure should consume retry
// budget rather than surface. Unclassified errors (network layer,
// timeouts) count as transient.
func Retryable(err error) bool {
	var se *SaveError
	if errors.As(err, &se) {
		return se.Kind == ErrKindTransient
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.ErrorKind == ErrKindTransient
	}
	return true
}

// ErrorKindOf extracts the wire error kind, defaulting to transient.
func ErrorKindOf(err error) string {
	var se *SaveError
	if errors.As(err, &se) {
		return se.Kind
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.ErrorKind
	}
	return ErrKindTransient
}
