package persistence

import (
	"context"
	"time"
)

// UserFilter narrows user listings.
type UserFilter struct {
	ActiveOnly bool
}

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByLogin(ctx context.Context, login string) (User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
	UsernameExists(ctx context.Context, username string) (bool, error)
	MissingUserIDs(ctx context.Context, ids []string) ([]string, error)
	CountUsersWithRole(ctx context.Context, role string) (int, error)
}

// CartRepository exposes CRUD operations for carts.
type CartRepository interface {
	CreateCart(ctx context.Context, cart Cart) error
	UpdateCart(ctx context.Context, cart Cart) error
	GetCart(ctx context.Context, id string) (Cart, error)
	ListCarts(ctx context.Context, activeOnly bool) ([]Cart, error)
	DeleteCart(ctx context.Context, id string) error
}

// BookingRepository stores bookings and their participants.
type BookingRepository interface {
	// CreateBookingWithinCapacity inserts the booking and its participants
	// only when fewer than capacity bookings overlap it, serialized per cart.
	CreateBookingWithinCapacity(ctx context.Context, booking Booking, capacity int) error
	GetBooking(ctx context.Context, id string) (BookingDetail, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]BookingDetail, error)
	CountOverlapping(ctx context.Context, cartID string, start, end time.Time) (int, error)
	CountOverlappingByCart(ctx context.Context, start, end time.Time) (map[string]int, error)
	DeleteBooking(ctx context.Context, id string) error
}

// MeetingPointRepository stores meeting points and aggregates conductor assignments.
type MeetingPointRepository interface {
	// CreateMeetingPoints inserts all points in one transaction.
	CreateMeetingPoints(ctx context.Context, points []MeetingPoint) error
	UpdateMeetingPoint(ctx context.Context, point MeetingPoint) error
	GetMeetingPoint(ctx context.Context, id string) (MeetingPointDetail, error)
	ListMeetingPointsByMonth(ctx context.Context, month string) ([]MeetingPointDetail, error)
	DeleteMeetingPoint(ctx context.Context, id string) error
	DeleteSeries(ctx context.Context, seriesID string) (int, error)
	CountByConductor(ctx context.Context, year int) ([]ConductorCount, error)
	CountByMonthAndConductor(ctx context.Context, year int) ([]MonthlyConductorCount, error)
}

// InviteTokenRepository stores invite tokens and completes registrations.
type InviteTokenRepository interface {
	// IssueInviteToken marks every unused token of the user as used at
	// token.CreatedAt and inserts token, atomically.
	IssueInviteToken(ctx context.Context, token InviteToken) error
	// ResetCredentials clears the user's password and issues token atomically.
	ResetCredentials(ctx context.Context, token InviteToken) error
	GetInviteToken(ctx context.Context, token string) (InviteToken, error)
	ListInviteTokens(ctx context.Context, userID string) ([]InviteToken, error)
	// CompleteRegistration sets the password of an unregistered user and
	// consumes the token, atomically.
	CompleteRegistration(ctx context.Context, tokenID, userID, passwordHash string, usedAt time.Time) error
	DeleteExpiredInviteTokens(ctx context.Context, before time.Time) (int64, error)
}

// RefreshTokenRepository stores refresh tokens.
type RefreshTokenRepository interface {
	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	DeleteExpiredRefreshTokens(ctx context.Context, reference time.Time) (int64, error)
}

// EventRepository exposes CRUD operations for events.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
}
