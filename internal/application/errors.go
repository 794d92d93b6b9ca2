package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute collides with an existing record.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrCapacityExceeded is returned when a cart already holds the maximum
	// number of bookings overlapping the requested interval.
	ErrCapacityExceeded = errors.New("application: cart capacity exceeded")
	// ErrUnauthenticated is returned when the caller's identity cannot be established.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrInviteInvalid is returned when an invite token cannot be redeemed.
	ErrInviteInvalid = errors.New("application: invite invalid")
)

// Refinements of ErrUnauthenticated. Each satisfies errors.Is(err, ErrUnauthenticated).
var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	ErrAccountDisabled    = fmt.Errorf("%w: account disabled", ErrUnauthenticated)
	ErrTokenExpired       = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrTokenRevoked       = fmt.Errorf("%w: token revoked", ErrUnauthenticated)
	ErrTokenInvalid       = fmt.Errorf("%w: token invalid", ErrUnauthenticated)
)

// Refinements of ErrInviteInvalid.
var (
	ErrInviteUsed         = fmt.Errorf("%w: token already used", ErrInviteInvalid)
	ErrInviteExpired      = fmt.Errorf("%w: token expired", ErrInviteInvalid)
	ErrInviteUnknown      = fmt.Errorf("%w: unknown token", ErrInviteInvalid)
	ErrAlreadyRegistered  = fmt.Errorf("%w: user already registered", ErrInviteInvalid)
	ErrInviteUserNotFound = fmt.Errorf("%w: user not found", ErrInviteInvalid)
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}
