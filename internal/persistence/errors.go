package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrConstraintViolation is returned when a check constraint rejects a write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrCapacityExceeded is returned when a booking would exceed the cart capacity.
	ErrCapacityExceeded = errors.New("persistence: capacity exceeded")
	// ErrInactive is returned when a booking targets an inactive cart.
	ErrInactive = errors.New("persistence: inactive")
	// ErrStale is returned when a conditional update found the row in an unexpected state.
	ErrStale = errors.New("persistence: stale state")
)
