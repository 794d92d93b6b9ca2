package application

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func() (*RegistrationService, *UserService, *userRepoStub, *inviteRepoStub, *time.Time) {
		users, repo, invites := newUserFixture(User{ID: "new", FirstName: "Nora", LastName: "Vidal", Username: "nora-vidal", Roles: NewRoleSet(RolePublisher), Active: true})
		now := userTestNow
		reg := NewRegistrationService(invites, repo, NewPasswordHasher(testArgon2idParams), func() time.Time { return now })
		return reg, users, repo, invites, &now
	}

	t.Run("validates and completes a fresh invite once", func(t *testing.T) {
		t.Parallel()
		reg, users, repo, _, _ := setup()
		invite, err := users.IssueInvite(ctx, adminActor, "new")
		require.NoError(t, err)

		status, err := reg.ValidateInvite(ctx, invite.Token)
		require.NoError(t, err)
		assert.True(t, status.Valid)
		assert.Equal(t, "Nora", status.FirstName)
		assert.True(t, status.ExpiresAt.Equal(invite.ExpiresAt))

		user, err := reg.CompleteRegistration(ctx, invite.Token, "s3cret-pass")
		require.NoError(t, err)
		assert.True(t, user.Registered())
		require.True(t, repo.users["new"].Registered())
		assert.NoError(t, NewPasswordHasher(testArgon2idParams).Verify(*repo.users["new"].PasswordHash, "s3cret-pass"))

		_, err = reg.CompleteRegistration(ctx, invite.Token, "another-pass")
		assert.ErrorIs(t, err, ErrInviteUsed)

		status, err = reg.ValidateInvite(ctx, invite.Token)
		require.NoError(t, err)
		assert.False(t, status.Valid)
		assert.Equal(t, "This invitation link has already been used", status.Reason)
	})

	t.Run("superseded invite is rejected", func(t *testing.T) {
		t.Parallel()
		reg, users, _, _, _ := setup()
		first, err := users.IssueInvite(ctx, adminActor, "new")
		require.NoError(t, err)
		_, err = users.IssueInvite(ctx, adminActor, "new")
		require.NoError(t, err)

		_, err = reg.CompleteRegistration(ctx, first.Token, "s3cret-pass")
		assert.ErrorIs(t, err, ErrInviteUsed)
		assert.ErrorIs(t, err, ErrInviteInvalid)
	})

	t.Run("expired and unknown tokens", func(t *testing.T) {
		t.Parallel()
		reg, users, _, _, now := setup()
		invite, err := users.IssueInvite(ctx, adminActor, "new")
		require.NoError(t, err)

		*now = invite.ExpiresAt
		status, err := reg.ValidateInvite(ctx, invite.Token)
		require.NoError(t, err)
		assert.True(t, status.Valid, "a token is valid up to its expiry instant")

		*now = invite.ExpiresAt.Add(time.Second)
		_, err = reg.CompleteRegistration(ctx, invite.Token, "s3cret-pass")
		assert.ErrorIs(t, err, ErrInviteExpired)

		status, err = reg.ValidateInvite(ctx, strings.Repeat("f", 64))
		require.NoError(t, err)
		assert.Equal(t, InviteStatus{Valid: false, Reason: "Invalid token"}, status)
	})

	t.Run("password policy is checked first", func(t *testing.T) {
		t.Parallel()
		reg, _, _, _, _ := setup()
		_, err := reg.CompleteRegistration(ctx, "whatever", "short")
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "password")
	})
}
