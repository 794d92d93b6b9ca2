package application

import (
	"fmt"
	"sort"
	"strings"
)

// Role names a capability granted to a user.
type Role string

const (
	RolePublisher           Role = "publisher"
	RoleFieldServicePlanner Role = "fieldserviceplanner"
	RoleAdmin               Role = "admin"
)

var knownRoles = map[Role]struct{}{
	RolePublisher:           {},
	RoleFieldServicePlanner: {},
	RoleAdmin:               {},
}

// RoleSet is a sorted, duplicate free set of roles.
type RoleSet []Role

// NewRoleSet normalizes roles into a set.
func NewRoleSet(roles ...Role) RoleSet {
	seen := make(map[Role]struct{}, len(roles))
	set := make(RoleSet, 0, len(roles))
	for _, role := range roles {
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		set = append(set, role)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

// ParseRoles converts raw role names into a set, rejecting unknown names.
func ParseRoles(raw []string) (RoleSet, error) {
	roles := make([]Role, 0, len(raw))
	for _, name := range raw {
		role := Role(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := knownRoles[role]; !ok {
			return nil, fmt.Errorf("unknown role %q", name)
		}
		roles = append(roles, role)
	}
	return NewRoleSet(roles...), nil
}

// Has reports whether role is a member of the set.
func (s RoleSet) Has(role Role) bool {
	for _, candidate := range s {
		if candidate == role {
			return true
		}
	}
	return false
}

// HasAny reports whether any of roles is a member of the set.
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, role := range roles {
		if s.Has(role) {
			return true
		}
	}
	return false
}

// Strings returns the role names in set order.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, role := range s {
		out[i] = string(role)
	}
	return out
}

// Principal identifies the authenticated caller of a service operation.
type Principal struct {
	UserID string
	Roles  RoleSet
}

// Authenticated reports whether the principal carries an identity.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// IsAdmin reports whether the principal administers users, carts and events.
func (p Principal) IsAdmin() bool {
	return p.Authenticated() && p.Roles.Has(RoleAdmin)
}

// CanPlan reports whether the principal may manage meeting points and read
// conductor statistics.
func (p Principal) CanPlan() bool {
	return p.Authenticated() && p.Roles.HasAny(RoleFieldServicePlanner, RoleAdmin)
}
