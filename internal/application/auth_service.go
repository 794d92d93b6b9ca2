package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultRefreshTTL is how long a refresh token may renew access tokens.
const DefaultRefreshTTL = 14 * 24 * time.Hour

// CredentialStore exposes user lookups required by the auth service.
type CredentialStore interface {
	GetUserByLogin(ctx context.Context, login string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// RefreshTokenRepository captures the persistence interactions for refresh tokens.
type RefreshTokenRepository interface {
	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
}

// AccessTokenManager signs and verifies short lived access tokens. Verify
// fails with ErrTokenExpired or ErrTokenInvalid.
type AccessTokenManager interface {
	Issue(principal Principal, issuedAt time.Time) (token string, expiresAt time.Time, err error)
	Verify(token string, now time.Time) (Principal, error)
}

// LoginParams carries the credentials of a login attempt. Login is a username
// or an email address.
type LoginParams struct {
	Login    string
	Password string
}

// AuthService coordinates login, token refresh, logout and request authentication.
type AuthService struct {
	credentials    CredentialStore
	refreshTokens  RefreshTokenRepository
	accessTokens   AccessTokenManager
	hasher         *PasswordHasher
	idGenerator    func() string
	tokenGenerator func() string
	now            func() time.Time
	refreshTTL     time.Duration
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, refreshTokens RefreshTokenRepository, accessTokens AccessTokenManager, hasher *PasswordHasher, idGenerator, tokenGenerator func() string, now func() time.Time, refreshTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(credentials, refreshTokens, accessTokens, hasher, idGenerator, tokenGenerator, now, refreshTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, refreshTokens RefreshTokenRepository, accessTokens AccessTokenManager, hasher *PasswordHasher, idGenerator, tokenGenerator func() string, now func() time.Time, refreshTTL time.Duration, logger *slog.Logger) *AuthService {
	if hasher == nil {
		hasher = NewPasswordHasher(DefaultArgon2idParams)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if tokenGenerator == nil {
		tokenGenerator = idGenerator
	}
	if now == nil {
		now = time.Now
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &AuthService{
		credentials:    credentials,
		refreshTokens:  refreshTokens,
		accessTokens:   accessTokens,
		hasher:         hasher,
		idGenerator:    idGenerator,
		tokenGenerator: tokenGenerator,
		now:            now,
		refreshTTL:     refreshTTL,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

func (s *AuthService) ready() error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.credentials == nil || s.refreshTokens == nil || s.accessTokens == nil {
		return fmt.Errorf("auth dependencies not configured")
	}
	return nil
}

// Login verifies credentials and issues an access token and a refresh token.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (session Session, err error) {
	if err = s.ready(); err != nil {
		return
	}

	login := strings.ToLower(strings.TrimSpace(params.Login))

	logger := s.loggerWith(ctx, "Login", "login", login)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", session.User.ID).InfoContext(ctx, "login succeeded")
	}()

	if login == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var user User
	user, err = s.credentials.GetUserByLogin(ctx, login)
	if err != nil {
		if err = mapRepoError(err); errors.Is(err, ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}
	if !user.Registered() {
		err = ErrInvalidCredentials
		return
	}
	if err = s.hasher.Verify(*user.PasswordHash, params.Password); err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			logger.ErrorContext(ctx, "stored password hash is unreadable", "user_id", user.ID, "error", err)
			err = ErrInvalidCredentials
		}
		return
	}
	if !user.Active {
		err = ErrAccountDisabled
		return
	}

	now := s.now()
	session, err = s.issueAccess(user, now)
	if err != nil {
		return
	}

	refresh := RefreshToken{
		ID:        s.idGenerator(),
		UserID:    user.ID,
		Token:     s.tokenGenerator(),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err = s.refreshTokens.CreateRefreshToken(ctx, refresh); err != nil {
		err = mapRepoError(err)
		session = Session{}
		return
	}
	session.RefreshToken = refresh.Token
	session.RefreshExpiresAt = refresh.ExpiresAt
	return
}

// Refresh issues a new access token for a live refresh token of an active user.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (session Session, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Refresh")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", session.User.ID).InfoContext(ctx, "access token refreshed")
	}()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		err = ErrTokenInvalid
		return
	}

	var stored RefreshToken
	stored, err = s.refreshTokens.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if err = mapRepoError(err); errors.Is(err, ErrNotFound) {
			err = ErrTokenInvalid
		}
		return
	}

	now := s.now()
	switch {
	case stored.Revoked:
		err = ErrTokenRevoked
		return
	case !stored.ExpiresAt.After(now):
		err = ErrTokenExpired
		return
	}

	var user User
	user, err = s.credentials.GetUser(ctx, stored.UserID)
	if err != nil {
		if err = mapRepoError(err); errors.Is(err, ErrNotFound) {
			err = ErrTokenInvalid
		}
		return
	}
	if !user.Active {
		err = ErrAccountDisabled
		return
	}

	session, err = s.issueAccess(user, now)
	if err != nil {
		return
	}
	session.RefreshToken = stored.Token
	session.RefreshExpiresAt = stored.ExpiresAt
	return
}

// Logout revokes a refresh token. Unknown and already revoked tokens are accepted.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Logout")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "logout failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "refresh token revoked")
	}()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	if err = s.refreshTokens.RevokeRefreshToken(ctx, refreshToken); err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			err = nil
			return
		}
		err = mapRepoError(err)
	}
	return
}

// Authenticate resolves a bearer access token into the principal it was issued
// to. Roles are read from the current user record so role changes and
// deactivation apply before the token expires.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	if err := s.ready(); err != nil {
		return Principal{}, err
	}

	claimed, err := s.accessTokens.Verify(strings.TrimSpace(accessToken), s.now())
	if err != nil {
		if !errors.Is(err, ErrUnauthenticated) {
			err = fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		return Principal{}, err
	}

	user, err := s.credentials.GetUser(ctx, claimed.UserID)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			return Principal{}, ErrTokenInvalid
		}
		return Principal{}, err
	}
	if !user.Active {
		return Principal{}, ErrAccountDisabled
	}
	return user.Principal(), nil
}

func (s *AuthService) issueAccess(user User, now time.Time) (Session, error) {
	token, expiresAt, err := s.accessTokens.Issue(user.Principal(), now)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	return Session{AccessToken: token, AccessExpiresAt: expiresAt, User: user}, nil
}
