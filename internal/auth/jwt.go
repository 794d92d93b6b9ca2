// Package auth signs and verifies the bearer access tokens handed out at login.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/cart-scheduler/internal/application"
)

// DefaultAccessTTL is the lifetime of an access token.
const DefaultAccessTTL = 30 * time.Minute

// Claims is the JWT payload of an access token.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenManager constructs a TokenManager. The secret must not be empty.
func NewTokenManager(secret, issuer string, ttl time.Duration) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue signs an access token for principal valid from issuedAt.
func (m *TokenManager) Issue(principal application.Principal, issuedAt time.Time) (string, time.Time, error) {
	if principal.UserID == "" {
		return "", time.Time{}, errors.New("auth: principal has no user id")
	}
	expiresAt := issuedAt.Add(m.ttl)
	claims := Claims{
		Roles: principal.Roles.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, algorithm, issuer and expiry of token at now.
func (m *TokenManager) Verify(token string, now time.Time) (application.Principal, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		options = append(options, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, options...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return application.Principal{}, application.ErrTokenExpired
	case err != nil:
		return application.Principal{}, fmt.Errorf("%w: %v", application.ErrTokenInvalid, err)
	case !parsed.Valid || claims.Subject == "":
		return application.Principal{}, application.ErrTokenInvalid
	}

	roles, err := application.ParseRoles(claims.Roles)
	if err != nil {
		return application.Principal{}, fmt.Errorf("%w: %v", application.ErrTokenInvalid, err)
	}
	return application.Principal{UserID: claims.Subject, Roles: roles}, nil
}
