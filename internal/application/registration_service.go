package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/cart-scheduler/internal/persistence"
)

// UserReader loads a single user.
type UserReader interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// RegistrationService lets invited users redeem their invite and set a password.
type RegistrationService struct {
	invites InviteRepository
	users   UserReader
	hasher  *PasswordHasher
	now     func() time.Time
	logger  *slog.Logger
}

// NewRegistrationService constructs a registration service with the provided dependencies.
func NewRegistrationService(invites InviteRepository, users UserReader, hasher *PasswordHasher, now func() time.Time) *RegistrationService {
	return NewRegistrationServiceWithLogger(invites, users, hasher, now, nil)
}

// NewRegistrationServiceWithLogger constructs a registration service with a specified logger.
func NewRegistrationServiceWithLogger(invites InviteRepository, users UserReader, hasher *PasswordHasher, now func() time.Time, logger *slog.Logger) *RegistrationService {
	if hasher == nil {
		hasher = NewPasswordHasher(DefaultArgon2idParams)
	}
	if now == nil {
		now = time.Now
	}
	return &RegistrationService{invites: invites, users: users, hasher: hasher, now: now, logger: defaultLogger(logger)}
}

func (s *RegistrationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RegistrationService", operation, attrs...)
}

// ValidateInvite reports whether token can be redeemed. Unusable tokens yield
// a status with Valid false and a reason rather than an error.
func (s *RegistrationService) ValidateInvite(ctx context.Context, token string) (InviteStatus, error) {
	if s == nil {
		return InviteStatus{}, fmt.Errorf("RegistrationService is nil")
	}

	invite, user, err := s.redeemable(ctx, token)
	if errors.Is(err, ErrInviteInvalid) {
		return InviteStatus{Valid: false, Reason: InviteFailureReason(err)}, nil
	}
	if err != nil {
		return InviteStatus{}, err
	}
	return InviteStatus{
		Valid:     true,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		ExpiresAt: invite.ExpiresAt,
	}, nil
}

// CompleteRegistration sets the password of the invited user and consumes the
// token. A token can complete at most one registration.
func (s *RegistrationService) CompleteRegistration(ctx context.Context, token, password string) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("RegistrationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CompleteRegistration")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "registration completed")
	}()

	if vErr := validatePassword(password); vErr.HasErrors() {
		err = vErr
		return
	}

	var invite InviteToken
	invite, user, err = s.redeemable(ctx, token)
	if err != nil {
		user = User{}
		return
	}

	var hash string
	hash, err = s.hasher.Hash(password)
	if err != nil {
		user = User{}
		return
	}

	usedAt := s.now()
	if err = s.invites.CompleteRegistration(ctx, invite.ID, user.ID, hash, usedAt); err != nil {
		if errors.Is(err, persistence.ErrStale) {
			err = ErrInviteUsed
		} else {
			err = mapRepoError(err)
		}
		user = User{}
		return
	}

	user.PasswordHash = &hash
	user.UpdatedAt = usedAt
	return
}

// redeemable loads the invite and its user, failing with a refinement of
// ErrInviteInvalid when the invite cannot be used.
func (s *RegistrationService) redeemable(ctx context.Context, token string) (InviteToken, User, error) {
	if s.invites == nil || s.users == nil {
		return InviteToken{}, User{}, fmt.Errorf("registration repositories not configured")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return InviteToken{}, User{}, ErrInviteUnknown
	}

	invite, err := s.invites.GetInviteToken(ctx, token)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			return InviteToken{}, User{}, ErrInviteUnknown
		}
		return InviteToken{}, User{}, err
	}
	if invite.UsedAt != nil {
		return InviteToken{}, User{}, ErrInviteUsed
	}
	if invite.ExpiresAt.Before(s.now()) {
		return InviteToken{}, User{}, ErrInviteExpired
	}

	user, err := s.users.GetUser(ctx, invite.UserID)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			return InviteToken{}, User{}, ErrInviteUserNotFound
		}
		return InviteToken{}, User{}, err
	}
	if user.Registered() {
		return InviteToken{}, User{}, ErrAlreadyRegistered
	}
	return invite, user, nil
}

// InviteFailureReason returns the user facing explanation for an invite error.
func InviteFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInviteUsed):
		return "This invitation link has already been used"
	case errors.Is(err, ErrInviteExpired):
		return "This invitation link has expired"
	case errors.Is(err, ErrInviteUserNotFound):
		return "User not found"
	case errors.Is(err, ErrAlreadyRegistered):
		return "User has already registered"
	case errors.Is(err, ErrInviteInvalid):
		return "Invalid token"
	}
	return ""
}
