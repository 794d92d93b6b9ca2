package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/cart-scheduler/internal/persistence"
)

var (
	userCounter         uint64
	cartCounter         uint64
	meetingPointCounter uint64
)

var referenceTime = time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// UserOption configures a generated user.
type UserOption func(*persistence.User)

// NewUser returns a registered, active publisher with unique identifiers.
func NewUser(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	email := id + "@example.com"
	hash := "hash-" + id
	user := persistence.User{
		ID:           id,
		FirstName:    fmt.Sprintf("First%03d", idx),
		LastName:     fmt.Sprintf("Last%03d", idx),
		Username:     id,
		Email:        &email,
		PasswordHash: &hash,
		Roles:        []string{"publisher"},
		Active:       true,
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

// WithUserName overrides the first and last name.
func WithUserName(first, last string) UserOption {
	return func(u *persistence.User) {
		u.FirstName = first
		u.LastName = last
	}
}

// WithUserRoles overrides the role set.
func WithUserRoles(roles ...string) UserOption {
	return func(u *persistence.User) {
		u.Roles = roles
	}
}

// WithUserInactive marks the user inactive.
func WithUserInactive() UserOption {
	return func(u *persistence.User) {
		u.Active = false
	}
}

// WithUserUnregistered removes the password so the user counts as invited.
func WithUserUnregistered() UserOption {
	return func(u *persistence.User) {
		u.PasswordHash = nil
	}
}

// CartOption configures a generated cart.
type CartOption func(*persistence.Cart)

// NewCart returns an active cart with unique identifiers.
func NewCart(opts ...CartOption) persistence.Cart {
	idx := atomic.AddUint64(&cartCounter, 1)
	cart := persistence.Cart{
		ID:        fmt.Sprintf("cart-%03d", idx),
		Name:      fmt.Sprintf("Cart %03d", idx),
		Location:  "Plaza",
		Active:    true,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&cart)
	}
	return cart
}

// WithCartInactive marks the cart inactive.
func WithCartInactive() CartOption {
	return func(c *persistence.Cart) {
		c.Active = false
	}
}

// WithCartName overrides the cart name.
func WithCartName(name string) CartOption {
	return func(c *persistence.Cart) {
		c.Name = name
	}
}

// NewMeetingPoint returns an unassigned meeting point on date (YYYY-MM-DD).
func NewMeetingPoint(date string, conductorID *string) persistence.MeetingPoint {
	idx := atomic.AddUint64(&meetingPointCounter, 1)
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		panic(err)
	}
	return persistence.MeetingPoint{
		ID:          fmt.Sprintf("mp-%03d", idx),
		Date:        d,
		Time:        "09:30",
		Location:    "Kingdom Hall",
		ConductorID: conductorID,
		Month:       d.Format("2006-01"),
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
}

// SeedUsers inserts users through repo, failing the test on error.
func SeedUsers(tb testing.TB, repo persistence.UserRepository, users ...persistence.User) {
	tb.Helper()
	for _, user := range users {
		if err := repo.CreateUser(context.Background(), user); err != nil {
			tb.Fatalf("failed to seed user %s: %v", user.ID, err)
		}
	}
}

// SeedCarts inserts carts through repo, failing the test on error.
func SeedCarts(tb testing.TB, repo persistence.CartRepository, carts ...persistence.Cart) {
	tb.Helper()
	for _, cart := range carts {
		if err := repo.CreateCart(context.Background(), cart); err != nil {
			tb.Fatalf("failed to seed cart %s: %v", cart.ID, err)
		}
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
