package application

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cart-scheduler/internal/persistence"
)

type refreshRepoStub struct {
	tokens map[string]RefreshToken
}

func newRefreshRepoStub() *refreshRepoStub {
	return &refreshRepoStub{tokens: make(map[string]RefreshToken)}
}

func (r *refreshRepoStub) CreateRefreshToken(_ context.Context, token RefreshToken) error {
	if _, ok := r.tokens[token.Token]; ok {
		return persistence.ErrDuplicate
	}
	r.tokens[token.Token] = token
	return nil
}

func (r *refreshRepoStub) GetRefreshToken(_ context.Context, token string) (RefreshToken, error) {
	stored, ok := r.tokens[token]
	if !ok {
		return RefreshToken{}, persistence.ErrNotFound
	}
	return stored, nil
}

func (r *refreshRepoStub) RevokeRefreshToken(_ context.Context, token string) error {
	stored, ok := r.tokens[token]
	if !ok {
		return persistence.ErrNotFound
	}
	stored.Revoked = true
	r.tokens[token] = stored
	return nil
}

// accessTokenStub encodes the user id into the token; it expires after one hour.
type accessTokenStub struct{}

func (accessTokenStub) Issue(principal Principal, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(time.Hour)
	return "access:" + principal.UserID + ":" + expiresAt.Format(time.RFC3339), expiresAt, nil
}

func (accessTokenStub) Verify(token string, now time.Time) (Principal, error) {
	parts := strings.Split(token, ":")
	if len(parts) < 3 || parts[0] != "access" {
		return Principal{}, ErrTokenInvalid
	}
	expiresAt, err := time.Parse(time.RFC3339, strings.Join(parts[2:], ":"))
	if err != nil {
		return Principal{}, ErrTokenInvalid
	}
	if !expiresAt.After(now) {
		return Principal{}, ErrTokenExpired
	}
	return Principal{UserID: parts[1]}, nil
}

type authFixture struct {
	svc     *AuthService
	users   *userRepoStub
	refresh *refreshRepoStub
	now     *time.Time
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()

	hasher := NewPasswordHasher(testArgon2idParams)
	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)

	email := "ana@example.com"
	users := newUserRepoStub(
		User{ID: "ana", FirstName: "Ana", Username: "ana", Email: &email, PasswordHash: &hash, Roles: NewRoleSet(RolePublisher), Active: true},
		User{ID: "pending", FirstName: "Pia", Username: "pia", Roles: NewRoleSet(RolePublisher), Active: true},
		User{ID: "off", FirstName: "Olga", Username: "olga", PasswordHash: &hash, Roles: NewRoleSet(RolePublisher)},
	)
	refresh := newRefreshRepoStub()
	now := userTestNow
	ids, tokens := 0, 0
	svc := NewAuthService(users, refresh, accessTokenStub{}, hasher,
		func() string { ids++; return "rt-id-" + strconv.Itoa(ids) },
		func() string { tokens++; return "refresh-" + strconv.Itoa(tokens) },
		func() time.Time { return now },
		0,
	)
	return authFixture{svc: svc, users: users, refresh: refresh, now: &now}
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("accepts username or email", func(t *testing.T) {
		t.Parallel()
		f := newAuthFixture(t)

		session, err := f.svc.Login(ctx, LoginParams{Login: " ANA@example.com ", Password: "correct horse"})
		require.NoError(t, err)
		assert.Equal(t, "ana", session.User.ID)
		assert.NotEmpty(t, session.AccessToken)
		assert.True(t, session.AccessExpiresAt.Equal(userTestNow.Add(time.Hour)))
		assert.True(t, session.RefreshExpiresAt.Equal(userTestNow.Add(DefaultRefreshTTL)))

		stored, ok := f.refresh.tokens[session.RefreshToken]
		require.True(t, ok)
		assert.Equal(t, "ana", stored.UserID)

		_, err = f.svc.Login(ctx, LoginParams{Login: "ana", Password: "correct horse"})
		require.NoError(t, err)
	})

	t.Run("rejects bad credentials without revealing which part failed", func(t *testing.T) {
		t.Parallel()
		f := newAuthFixture(t)

		for _, params := range []LoginParams{
			{Login: "ana", Password: "wrong horse"},
			{Login: "ghost", Password: "correct horse"},
			{Login: "pia", Password: "anything"},
			{Login: "", Password: "correct horse"},
		} {
			_, err := f.svc.Login(ctx, params)
			assert.ErrorIs(t, err, ErrInvalidCredentials, params.Login)
		}
		assert.Empty(t, f.refresh.tokens)
	})

	t.Run("rejects deactivated accounts", func(t *testing.T) {
		t.Parallel()
		f := newAuthFixture(t)

		_, err := f.svc.Login(ctx, LoginParams{Login: "olga", Password: "correct horse"})
		assert.ErrorIs(t, err, ErrAccountDisabled)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("issues a new access token and keeps the refresh token", func(t *testing.T) {
		t.Parallel()
		f := newAuthFixture(t)
		session, err := f.svc.Login(ctx, LoginParams{Login: "ana", Password: "correct horse"})
		require.NoError(t, err)

		*f.now = f.now.Add(2 * time.Hour)
		refreshed, err := f.svc.Refresh(ctx, session.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, session.RefreshToken, refreshed.RefreshToken)
		assert.NotEqual(t, session.AccessToken, refreshed.AccessToken)
		assert.True(t, refreshed.AccessExpiresAt.Equal(f.now.Add(time.Hour)))
	})

	t.Run("rejects unknown revoked and expired tokens", func(t *testing.T) {
		t.Parallel()
		f := newAuthFixture(t)

		_, err := f.svc.Refresh(ctx, "nope")
		assert.ErrorIs(t, err, ErrTokenInvalid)

		session, err := f.svc.Login(ctx, LoginParams{Login: "ana", Password: "correct horse"})
		require.NoError(t, err)

		*f.now = session.RefreshExpiresAt
		_, err = f.svc.Refresh(ctx, session.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenExpired)

		*f.now = userTestNow
		require.NoError(t, f.svc.Logout(ctx, session.RefreshToken))
		_, err = f.svc.Refresh(ctx, session.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("rejects users deactivated after login", func(t *testing.T) {
		t.Parallel()
		f := newAuthFixture(t)
		session, err := f.svc.Login(ctx, LoginParams{Login: "ana", Password: "correct horse"})
		require.NoError(t, err)

		ana := f.users.users["ana"]
		ana.Active = false
		f.users.users["ana"] = ana

		_, err = f.svc.Refresh(ctx, session.RefreshToken)
		assert.ErrorIs(t, err, ErrAccountDisabled)
	})
}

func TestAuthService_Logout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newAuthFixture(t)

	session, err := f.svc.Login(ctx, LoginParams{Login: "ana", Password: "correct horse"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, session.RefreshToken))
	assert.True(t, f.refresh.tokens[session.RefreshToken].Revoked)

	require.NoError(t, f.svc.Logout(ctx, session.RefreshToken), "logout is idempotent")
	require.NoError(t, f.svc.Logout(ctx, "unknown"))
	require.NoError(t, f.svc.Logout(ctx, ""))
}

func TestAuthService_Authenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newAuthFixture(t)

	session, err := f.svc.Login(ctx, LoginParams{Login: "ana", Password: "correct horse"})
	require.NoError(t, err)

	principal, err := f.svc.Authenticate(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ana", principal.UserID)
	assert.True(t, principal.Roles.Has(RolePublisher))

	ana := f.users.users["ana"]
	ana.Roles = NewRoleSet(RolePublisher, RoleFieldServicePlanner)
	f.users.users["ana"] = ana
	principal, err = f.svc.Authenticate(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.True(t, principal.CanPlan(), "roles follow the stored user")

	_, err = f.svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	*f.now = session.AccessExpiresAt
	_, err = f.svc.Authenticate(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)

	*f.now = userTestNow
	delete(f.users.users, "ana")
	_, err = f.svc.Authenticate(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthService_NilGuard(t *testing.T) {
	t.Parallel()
	var svc *AuthService
	_, err := svc.Login(context.Background(), LoginParams{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
}
