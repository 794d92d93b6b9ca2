package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cart-scheduler/internal/application"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAuthenticator struct {
	tokens map[string]application.Principal
	err    error
}

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (application.Principal, error) {
	if f.err != nil {
		return application.Principal{}, f.err
	}
	principal, ok := f.tokens[token]
	if !ok {
		return application.Principal{}, application.ErrTokenInvalid
	}
	return principal, nil
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	principal := application.Principal{UserID: "u1", Roles: application.NewRoleSet(application.RolePublisher)}
	auth := fakeAuthenticator{tokens: map[string]application.Principal{"good": principal}}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, principal, got)
		w.WriteHeader(http.StatusTeapot)
	})
	handler := RequireAuth(auth, quietLogger)(next)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusTeapot},
		{"case insensitive scheme", "bearer good", http.StatusTeapot},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/carts", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, tc.status, rec.Code, tc.name)
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	t.Parallel()

	handler := RequireAuth(fakeAuthenticator{err: application.ErrTokenExpired}, quietLogger)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { t.Fatal("next must not run") }))

	req := httptest.NewRequest(http.MethodGet, "/carts", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AUTH_REQUIRED", body.ErrorCode)
	assert.Equal(t, "token expired", body.Message)
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	handler := RequireRole(application.Principal.IsAdmin, quietLogger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(ctx context.Context) int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts", nil).WithContext(ctx))
		return rec.Code
	}

	publisher := application.Principal{UserID: "p", Roles: application.NewRoleSet(application.RolePublisher)}
	admin := application.Principal{UserID: "a", Roles: application.NewRoleSet(application.RoleAdmin)}

	assert.Equal(t, http.StatusUnauthorized, serve(context.Background()))
	assert.Equal(t, http.StatusForbidden, serve(ContextWithPrincipal(context.Background(), publisher)))
	assert.Equal(t, http.StatusNoContent, serve(ContextWithPrincipal(context.Background(), admin)))
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(6, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, rl.Allow("10.0.0.2"), "budgets are per client")

	now = now.Add(10 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "one token refills every ten seconds")

	now = now.Add(time.Hour)
	assert.Equal(t, 2, rl.Forget(30*time.Minute))
}

func TestRateLimiter_Middleware(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 1)
	handler := rl.Middleware(quietLogger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "request %d", i)
	}
}

func TestRequestLogger_AttachesLogger(t *testing.T) {
	t.Parallel()

	var seen bool
	handler := RequestLogger(quietLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = LoggerFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.True(t, seen)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
