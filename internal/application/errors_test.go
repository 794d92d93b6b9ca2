package application

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	assert.Empty(t, nilErr.Error())
	assert.Equal(t, "validation failed", (&ValidationError{}).Error())
	assert.Equal(t, "validation failed", newValidationError("field", "invalid").Error())
}

func TestValidationError_AddKeepsFirstMessage(t *testing.T) {
	t.Parallel()

	vErr := &ValidationError{}
	assert.False(t, vErr.HasErrors())

	vErr.add("name", "name is required")
	vErr.add("name", "name is too long")
	require.True(t, vErr.HasErrors())
	assert.Equal(t, "name is required", vErr.FieldErrors["name"])

	vErr.merge(newValidationError("end", "end must be after start"))
	vErr.merge(nil)
	assert.Len(t, vErr.FieldErrors, 2)
}

func TestAuthenticationRefinements(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrInvalidCredentials, ErrAccountDisabled, ErrTokenExpired, ErrTokenRevoked, ErrTokenInvalid} {
		assert.True(t, errors.Is(err, ErrUnauthenticated), "%v should be an authentication failure", err)
		assert.False(t, errors.Is(err, ErrUnauthorized))
	}
	for _, err := range []error{ErrInviteUsed, ErrInviteExpired, ErrInviteUnknown, ErrAlreadyRegistered, ErrInviteUserNotFound} {
		assert.True(t, errors.Is(err, ErrInviteInvalid))
	}
}
