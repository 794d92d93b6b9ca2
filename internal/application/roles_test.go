package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoles(t *testing.T) {
	t.Parallel()

	set, err := ParseRoles([]string{" Admin", "publisher", "admin"})
	require.NoError(t, err)
	assert.Equal(t, RoleSet{RoleAdmin, RolePublisher}, set)
	assert.Equal(t, []string{"admin", "publisher"}, set.Strings())

	_, err = ParseRoles([]string{"publisher", "owner"})
	assert.Error(t, err)
}

func TestPrincipalPredicates(t *testing.T) {
	t.Parallel()

	publisher := Principal{UserID: "u1", Roles: NewRoleSet(RolePublisher)}
	planner := Principal{UserID: "u2", Roles: NewRoleSet(RolePublisher, RoleFieldServicePlanner)}
	admin := Principal{UserID: "u3", Roles: NewRoleSet(RoleAdmin)}
	anonymous := Principal{Roles: NewRoleSet(RoleAdmin)}

	assert.False(t, publisher.IsAdmin())
	assert.False(t, publisher.CanPlan())
	assert.True(t, planner.CanPlan())
	assert.False(t, planner.IsAdmin())
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.CanPlan())
	assert.False(t, anonymous.Authenticated())
	assert.False(t, anonymous.IsAdmin())
}
