package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cart-scheduler/internal/application"
)

func TestResponder_HandleServiceError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &application.ValidationError{FieldErrors: map[string]string{"name": "name is required"}}, http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{"not found", fmt.Errorf("load: %w", application.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"cart full", application.ErrCapacityExceeded, http.StatusConflict, "CART_FULL"},
		{"duplicate", application.ErrAlreadyExists, http.StatusConflict, "CONFLICT"},
		{"forbidden", application.ErrUnauthorized, http.StatusForbidden, "AUTH_FORBIDDEN"},
		{"expired token", application.ErrTokenExpired, http.StatusUnauthorized, "AUTH_REQUIRED"},
		{"bad credentials", application.ErrInvalidCredentials, http.StatusUnauthorized, "AUTH_REQUIRED"},
		{"used invite", application.ErrInviteUsed, http.StatusBadRequest, "INVITE_INVALID"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			newResponder(quietLogger).handleServiceError(context.Background(), rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.ErrorCode)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestResponder_ValidationDetails(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	vErr := &application.ValidationError{FieldErrors: map[string]string{"end": "end must be after start"}}
	newResponder(quietLogger).handleServiceError(context.Background(), rec, vErr)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "end must be after start", body.Errors["end"])
}

func TestResponder_CartFullMessage(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	newResponder(quietLogger).handleServiceError(context.Background(), rec, application.ErrCapacityExceeded)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, cartFullMessage, body.Message)
}
