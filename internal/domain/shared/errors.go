// Package shared contains common domain types, errors, events, and value objects
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors for errors.Is() checks.
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")

	// Message pipeline failures
	ErrClassificationFailure = errors.New("classification failure")
	ErrGenerationFailure     = errors.New("generation failure")
	ErrPersistenceFailure    = errors.New("persistence failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "session", "profile", "alert"
	Op      string // operation that failed, e.g. "AppendMessage"
	Kind    error  // base error for errors.Is()
	Message string
	Err     error // underlying cause (optional)
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches both the kind and the wrapped cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps err with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Profile domain errors
var (
	ErrProfileNotFound      = NewDomainError("profile", "Find", ErrNotFound, "profile not found")
	ErrProfileAlreadyExists = NewDomainError("profile", "Create", ErrAlreadyExists, "profile already exists")
	ErrInvalidStudentID     = NewDomainError("profile", "Validate", ErrInvalidID, "invalid student ID")
	ErrInvalidXPDelta       = NewDomainError("profile", "ApplyXP", ErrNegativeValue, "XP delta cannot be negative")
	ErrInvalidStreak        = NewDomainError("profile", "SetStreak", ErrNegativeValue, "streak cannot be negative")
)

// Session domain errors
var (
	ErrSessionNotFound = NewDomainError("session", "Find", ErrNotFound, "session not found")
	ErrEmptyMessage    = NewDomainError("session", "Validate", ErrEmptyValue, "message cannot be empty")
	ErrSessionOwner    = NewDomainError("session", "CheckOwner", ErrForbidden, "session belongs to another student")
)

// Alert domain errors
var (
	ErrAlertNotFound = NewDomainError("alert", "Find", ErrNotFound, "alert not found")
	ErrAlertExists   = NewDomainError("alert", "Insert", ErrAlreadyExists, "unread alert already exists")
	ErrInvalidAlert  = NewDomainError("alert", "Validate", ErrInvalidInput, "invalid alert")
)

// Notification domain errors
var (
	ErrNotificationNotFound = NewDomainError("notification", "Find", ErrNotFound, "notification not found")
	ErrNotificationExists   = NewDomainError("notification", "Insert", ErrAlreadyExists, "notification already exists for this day")
	ErrInvalidNotification  = NewDomainError("notification", "Validate", ErrInvalidInput, "invalid notification")
)

// Model backend errors
var (
	ErrModelUnavailable = NewDomainError("model", "Generate", ErrServiceUnavailable, "model backend is unavailable")
	ErrModelTimeout     = NewDomainError("model", "Generate", ErrTimeout, "model request timed out")
	ErrModelEmptyReply  = NewDomainError("model", "Generate", ErrExternalService, "model returned an empty reply")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsForbidden checks if the error is an authorization error.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthorized)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsGenerationFailure reports whether no reply could be produced.
func IsGenerationFailure(err error) bool {
	return errors.Is(err, ErrGenerationFailure)
}

// IsPersistenceFailure reports whether a store write failed.
func IsPersistenceFailure(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}
