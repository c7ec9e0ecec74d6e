package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when no valid session accompanies a request.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrSessionExpired is returned when a token is well formed but its session was superseded or cleared.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrInvalidCredentials is returned when a login does not match a stored password.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrForbidden is returned when the principal may not perform the operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrAccountBlocked is returned when the account's email is blacklisted.
	ErrAccountBlocked = errors.New("application: account blocked")
	// ErrAccountPending is returned when the account awaits administrator approval.
	ErrAccountPending = errors.New("application: account pending approval")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique resource is created twice.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrConflict is returned when a versioned write was based on a stale read.
	ErrConflict = errors.New("application: conflict")
	// ErrRateLimited is returned when too many attempts were made in the limiter window.
	ErrRateLimited = errors.New("application: rate limited")
	// ErrVotingClosed is wrapped by every *VotingClosedError.
	ErrVotingClosed = errors.New("application: voting closed")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	// Message summarises the failure; empty means the generic text.
	Message     string
	FieldErrors map[string]string
}

// NewValidationError returns a ValidationError with a summary and one field error.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{Message: message}
	if field != "" {
		v.add(field, message)
	}
	return v
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if v.Message != "" {
		return v.Message
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && (len(v.FieldErrors) > 0 || v.Message != "")
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// ClosedReason says why votes are not accepted right now.
type ClosedReason string

const (
	// ClosedDisabled means the global voting switch is off.
	ClosedDisabled ClosedReason = "disabled"
	// ClosedNoActiveSlot means slots are configured but none contains the current time.
	ClosedNoActiveSlot ClosedReason = "no_active_slot"
	// ClosedOutsideWindow means the legacy start/end window does not contain the current time.
	ClosedOutsideWindow ClosedReason = "outside_window"
)

// VotingClosedError reports a closed voting state with its reason.
type VotingClosedError struct {
	Reason ClosedReason
}

func (e *VotingClosedError) Error() string {
	switch e.Reason {
	case ClosedDisabled:
		return "voting is currently closed"
	case ClosedNoActiveSlot:
		return "no voting slot is active right now"
	case ClosedOutsideWindow:
		return "voting is outside the scheduled window"
	default:
		return fmt.Sprintf("voting closed: %s", e.Reason)
	}
}

// Unwrap lets errors.Is match ErrVotingClosed.
func (e *VotingClosedError) Unwrap() error { return ErrVotingClosed }
