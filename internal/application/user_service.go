package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/cart-scheduler/internal/persistence"
)

const (
	// DefaultInviteTTL is how long an invite link stays redeemable.
	DefaultInviteTTL = 72 * time.Hour

	inviteTokenBytes = 32
	maxNameLength    = 100
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByLogin(ctx context.Context, login string) (User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
	UsernameExists(ctx context.Context, username string) (bool, error)
	MissingUserIDs(ctx context.Context, ids []string) ([]string, error)
	CountUsersWithRole(ctx context.Context, role Role) (int, error)
}

// InviteRepository stores invite tokens and completes registrations.
type InviteRepository interface {
	// IssueInviteToken consumes every unused token of the user and stores token atomically.
	IssueInviteToken(ctx context.Context, token InviteToken) error
	// ResetCredentials clears the user's password and issues token atomically.
	ResetCredentials(ctx context.Context, token InviteToken) error
	GetInviteToken(ctx context.Context, token string) (InviteToken, error)
	// CompleteRegistration sets the password and consumes the token atomically.
	CompleteRegistration(ctx context.Context, tokenID, userID, passwordHash string, usedAt time.Time) error
}

// BootstrapAdmin describes the administrator created on an empty installation.
type BootstrapAdmin struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// NewInviteToken returns 32 random bytes encoded as 64 hex characters.
func NewInviteToken() (string, error) {
	buf := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// UserService administers accounts and the invites used to activate them.
type UserService struct {
	users          UserRepository
	invites        InviteRepository
	hasher         *PasswordHasher
	idGenerator    func() string
	tokenGenerator func() (string, error)
	now            func() time.Time
	inviteTTL      time.Duration
	logger         *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, invites InviteRepository, hasher *PasswordHasher, idGenerator func() string, tokenGenerator func() (string, error), now func() time.Time, inviteTTL time.Duration) *UserService {
	return NewUserServiceWithLogger(users, invites, hasher, idGenerator, tokenGenerator, now, inviteTTL, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, invites InviteRepository, hasher *PasswordHasher, idGenerator func() string, tokenGenerator func() (string, error), now func() time.Time, inviteTTL time.Duration, logger *slog.Logger) *UserService {
	if hasher == nil {
		hasher = NewPasswordHasher(DefaultArgon2idParams)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if tokenGenerator == nil {
		tokenGenerator = NewInviteToken
	}
	if now == nil {
		now = time.Now
	}
	if inviteTTL <= 0 {
		inviteTTL = DefaultInviteTTL
	}
	return &UserService{
		users:          users,
		invites:        invites,
		hasher:         hasher,
		idGenerator:    idGenerator,
		tokenGenerator: tokenGenerator,
		now:            now,
		inviteTTL:      inviteTTL,
		logger:         defaultLogger(logger),
	}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

func (s *UserService) ready() error {
	if s == nil {
		return fmt.Errorf("UserService is nil")
	}
	if s.users == nil || s.invites == nil {
		return fmt.Errorf("user repositories not configured")
	}
	return nil
}

// CreateUser validates input, stores an unregistered user and issues the
// invite that lets them set a password.
func (s *UserService) CreateUser(ctx context.Context, params CreateUserParams) (result ProvisionedUser, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CreateUser", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.User.ID, "username", result.User.Username).InfoContext(ctx, "user created")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	var normalized normalizedUser
	normalized, err = s.normalizeUserInput(ctx, params.Input, "")
	if err != nil {
		return
	}

	now := s.now()
	user := User{
		ID:        s.idGenerator(),
		FirstName: normalized.FirstName,
		LastName:  normalized.LastName,
		Username:  normalized.Username,
		Email:     normalized.Email,
		Roles:     normalized.Roles,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.users.CreateUser(ctx, user); err != nil {
		err = mapUserRepoError(err)
		return
	}

	var invite Invite
	invite, err = s.issue(ctx, user.ID, s.invites.IssueInviteToken)
	if err != nil {
		err = fmt.Errorf("user %s created without invite: %w", user.ID, err)
		return
	}
	result = ProvisionedUser{User: user, Invite: invite}
	return
}

// UpdateUser replaces names, username, email and roles of a user.
func (s *UserService) UpdateUser(ctx context.Context, params UpdateUserParams) (user User, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateUser", "principal_id", params.Principal.UserID, "user_id", params.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user updated")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	user, err = s.users.GetUser(ctx, params.UserID)
	if err != nil {
		err = mapUserRepoError(err)
		return
	}

	var normalized normalizedUser
	normalized, err = s.normalizeUserInput(ctx, params.Input, user.Username)
	if err != nil {
		user = User{}
		return
	}
	if user.Active && user.Roles.Has(RoleAdmin) && !normalized.Roles.Has(RoleAdmin) {
		if err = s.ensureAnotherAdmin(ctx, "roles"); err != nil {
			user = User{}
			return
		}
	}

	user.FirstName = normalized.FirstName
	user.LastName = normalized.LastName
	user.Username = normalized.Username
	user.Email = normalized.Email
	user.Roles = normalized.Roles
	user.UpdatedAt = s.now()

	if err = s.users.UpdateUser(ctx, user); err != nil {
		err = mapUserRepoError(err)
		user = User{}
	}
	return
}

// SetActive enables or disables a user. Administrators cannot disable
// themselves or the last active administrator.
func (s *UserService) SetActive(ctx context.Context, principal Principal, userID string, active bool) (user User, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "SetActive", "principal_id", principal.UserID, "user_id", userID, "active", active)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change user status", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user status changed")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if !active && userID == principal.UserID {
		err = newValidationError("active", "you cannot deactivate your own account")
		return
	}

	user, err = s.users.GetUser(ctx, userID)
	if err != nil {
		err = mapUserRepoError(err)
		return
	}
	if user.Active == active {
		return
	}
	if !active && user.Roles.Has(RoleAdmin) {
		if err = s.ensureAnotherAdmin(ctx, "active"); err != nil {
			user = User{}
			return
		}
	}

	user.Active = active
	user.UpdatedAt = s.now()
	if err = s.users.UpdateUser(ctx, user); err != nil {
		err = mapUserRepoError(err)
		user = User{}
	}
	return
}

// DeleteUser removes a user. Bookings lose the participant and meeting points
// lose their conductor.
func (s *UserService) DeleteUser(ctx context.Context, principal Principal, userID string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "DeleteUser", "principal_id", principal.UserID, "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user deleted")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if userID == principal.UserID {
		err = newValidationError("id", "you cannot delete your own account")
		return
	}

	var user User
	user, err = s.users.GetUser(ctx, userID)
	if err != nil {
		err = mapUserRepoError(err)
		return
	}
	if user.Active && user.Roles.Has(RoleAdmin) {
		if err = s.ensureAnotherAdmin(ctx, "id"); err != nil {
			return
		}
	}
	err = mapUserRepoError(s.users.DeleteUser(ctx, userID))
	return
}

// IssueInvite replaces any pending invite of an unregistered user with a new one.
func (s *UserService) IssueInvite(ctx context.Context, principal Principal, userID string) (invite Invite, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "IssueInvite", "principal_id", principal.UserID, "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to issue invite", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "invite issued", "expires_at", invite.ExpiresAt)
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	var user User
	user, err = s.users.GetUser(ctx, userID)
	if err != nil {
		err = mapUserRepoError(err)
		return
	}
	if user.Registered() {
		err = newValidationError("id", "user is already registered; reset the password instead")
		return
	}

	invite, err = s.issue(ctx, user.ID, s.invites.IssueInviteToken)
	return
}

// ResetPassword clears a user's password and issues a fresh invite in one step.
func (s *UserService) ResetPassword(ctx context.Context, principal Principal, userID string) (invite Invite, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ResetPassword", "principal_id", principal.UserID, "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reset password", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "password reset", "expires_at", invite.ExpiresAt)
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if _, err = s.users.GetUser(ctx, userID); err != nil {
		err = mapUserRepoError(err)
		return
	}

	invite, err = s.issue(ctx, userID, s.invites.ResetCredentials)
	return
}

// CheckUsername reports whether the slug of username is free and suggests the
// first free variant.
func (s *UserService) CheckUsername(ctx context.Context, principal Principal, username string) (UsernameCheck, error) {
	if err := s.ready(); err != nil {
		return UsernameCheck{}, err
	}
	if !principal.IsAdmin() {
		return UsernameCheck{}, ErrUnauthorized
	}

	slug := SlugifyUsername(username)
	if slug == "" {
		return UsernameCheck{}, newValidationError("username", "username must contain letters or digits")
	}
	taken, err := s.users.UsernameExists(ctx, slug)
	if err != nil {
		return UsernameCheck{}, mapUserRepoError(err)
	}
	check := UsernameCheck{Username: slug, Available: !taken, Suggestion: slug}
	if taken {
		check.Suggestion, err = uniqueUsername(ctx, s.users.UsernameExists, slug)
		if err != nil {
			return UsernameCheck{}, mapUserRepoError(err)
		}
	}
	return check, nil
}

// ListUsers returns every user for administrators, ordered by name.
func (s *UserService) ListUsers(ctx context.Context, principal Principal) ([]User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !principal.IsAdmin() {
		return nil, ErrUnauthorized
	}
	users, err := s.users.ListUsers(ctx, false)
	if err != nil {
		return nil, mapUserRepoError(err)
	}
	return users, nil
}

// ListBookableUsers returns the active users any member may add to a booking.
func (s *UserService) ListBookableUsers(ctx context.Context, principal Principal) ([]Person, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !principal.Authenticated() {
		return nil, ErrUnauthenticated
	}
	users, err := s.users.ListUsers(ctx, true)
	if err != nil {
		return nil, mapUserRepoError(err)
	}
	people := make([]Person, 0, len(users))
	for _, u := range users {
		people = append(people, PersonOf(u))
	}
	return people, nil
}

// Me returns the account of the principal.
func (s *UserService) Me(ctx context.Context, principal Principal) (User, error) {
	if err := s.ready(); err != nil {
		return User{}, err
	}
	if !principal.Authenticated() {
		return User{}, ErrUnauthenticated
	}
	user, err := s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return User{}, ErrUnauthenticated
		}
		return User{}, mapUserRepoError(err)
	}
	return user, nil
}

// EnsureBootstrapAdmin creates the configured administrator when no active
// administrator exists. It reports whether a user was created.
func (s *UserService) EnsureBootstrapAdmin(ctx context.Context, admin BootstrapAdmin) (created bool, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if strings.TrimSpace(admin.Username) == "" || admin.Password == "" {
		return
	}

	logger := s.loggerWith(ctx, "EnsureBootstrapAdmin", "username", admin.Username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to bootstrap administrator", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if created {
			logger.InfoContext(ctx, "bootstrap administrator created")
		}
	}()

	var admins int
	admins, err = s.users.CountUsersWithRole(ctx, RoleAdmin)
	if err != nil || admins > 0 {
		err = mapUserRepoError(err)
		return
	}

	if vErr := validatePassword(admin.Password); vErr.HasErrors() {
		err = vErr
		return
	}
	firstName := strings.TrimSpace(admin.FirstName)
	if firstName == "" {
		firstName = "Admin"
	}
	var email *string
	if trimmed := strings.TrimSpace(admin.Email); trimmed != "" {
		email = &trimmed
	}

	var normalized normalizedUser
	normalized, err = s.normalizeUserInput(ctx, UserInput{
		FirstName: firstName,
		LastName:  admin.LastName,
		Username:  admin.Username,
		Email:     email,
		Roles:     []string{string(RoleAdmin), string(RolePublisher)},
	}, "")
	if err != nil {
		return
	}

	var hash string
	hash, err = s.hasher.Hash(admin.Password)
	if err != nil {
		return
	}

	now := s.now()
	user := User{
		ID:           s.idGenerator(),
		FirstName:    normalized.FirstName,
		LastName:     normalized.LastName,
		Username:     normalized.Username,
		Email:        normalized.Email,
		PasswordHash: &hash,
		Roles:        normalized.Roles,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = s.users.CreateUser(ctx, user); err != nil {
		err = mapUserRepoError(err)
		return
	}
	created = true
	return
}

func (s *UserService) issue(ctx context.Context, userID string, store func(context.Context, InviteToken) error) (Invite, error) {
	value, err := s.tokenGenerator()
	if err != nil {
		return Invite{}, err
	}
	now := s.now()
	token := InviteToken{
		ID:        s.idGenerator(),
		UserID:    userID,
		Token:     value,
		ExpiresAt: now.Add(s.inviteTTL),
		CreatedAt: now,
	}
	if err := store(ctx, token); err != nil {
		return Invite{}, mapUserRepoError(err)
	}
	return Invite{UserID: userID, Token: token.Token, ExpiresAt: token.ExpiresAt}, nil
}

func (s *UserService) ensureAnotherAdmin(ctx context.Context, field string) error {
	admins, err := s.users.CountUsersWithRole(ctx, RoleAdmin)
	if err != nil {
		return mapUserRepoError(err)
	}
	if admins <= 1 {
		return newValidationError(field, "at least one active administrator is required")
	}
	return nil
}

type normalizedUser struct {
	FirstName string
	LastName  string
	Username  string
	Email     *string
	Roles     RoleSet
}

// normalizeUserInput trims and validates input. An empty username is derived
// from the names; current is the username the user already holds.
func (s *UserService) normalizeUserInput(ctx context.Context, input UserInput, current string) (normalizedUser, error) {
	vErr := &ValidationError{}
	out := normalizedUser{
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
	}

	if out.FirstName == "" {
		vErr.add("first_name", "first name is required")
	} else if len(out.FirstName) > maxNameLength {
		vErr.add("first_name", "first name is too long")
	}
	if len(out.LastName) > maxNameLength {
		vErr.add("last_name", "last name is too long")
	}

	if email := normalizeOptionalString(input.Email); email != nil {
		lowered := strings.ToLower(*email)
		if addr, err := mail.ParseAddress(lowered); err != nil || addr.Address != lowered {
			vErr.add("email", "email is invalid")
		}
		out.Email = &lowered
	}

	roles, err := ParseRoles(input.Roles)
	switch {
	case err != nil:
		vErr.add("roles", err.Error())
	case len(roles) == 0:
		vErr.add("roles", "at least one role is required")
	}
	out.Roles = roles

	requested := strings.TrimSpace(input.Username)
	if requested != "" {
		out.Username = SlugifyUsername(requested)
		if out.Username == "" || out.Username != strings.ToLower(requested) {
			vErr.add("username", "username may contain only lowercase letters, digits and hyphens")
		}
	}
	if vErr.HasErrors() {
		return normalizedUser{}, vErr
	}

	switch {
	case requested != "" && out.Username != current:
		taken, err := s.users.UsernameExists(ctx, out.Username)
		if err != nil {
			return normalizedUser{}, mapUserRepoError(err)
		}
		if taken {
			return normalizedUser{}, newValidationError("username", "username is already taken")
		}
	case requested == "" && current != "":
		out.Username = current
	case requested == "":
		base := SlugifyUsername(strings.TrimSpace(out.FirstName + " " + out.LastName))
		if base == "" {
			return normalizedUser{}, newValidationError("username", "username cannot be derived from the name")
		}
		out.Username, err = uniqueUsername(ctx, s.users.UsernameExists, base)
		if err != nil {
			return normalizedUser{}, mapUserRepoError(err)
		}
	}
	return out, nil
}

func mapUserRepoError(err error) error {
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return newValidationError("user", "user attributes violate a storage constraint")
	}
	return mapRepoError(err)
}
