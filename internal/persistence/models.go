package persistence

import "time"

// User represents a member account. A nil PasswordHash marks an invited user
// who has not completed registration yet.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Username     string
	Email        *string
	PasswordHash *string
	Roles        []string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Person is the minimal user projection embedded in read models.
type Person struct {
	ID        string
	FirstName string
	LastName  string
}

// Cart represents a bookable resource.
type Cart struct {
	ID        string
	Name      string
	Location  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Booking represents a cart reservation and the users sharing it.
type Booking struct {
	ID             string
	CartID         string
	Start          time.Time
	End            time.Time
	ParticipantIDs []string
	CreatedAt      time.Time
}

// BookingDetail is a booking joined with its cart name and participants.
type BookingDetail struct {
	Booking
	CartName     string
	Participants []Person
}

// BookingFilter narrows booking listings. Zero values are ignored; Start and
// End select bookings overlapping [Start, End).
type BookingFilter struct {
	CartID        string
	ParticipantID string
	Start         *time.Time
	End           *time.Time
}

// MeetingPoint represents a field-service meeting assignment. Date is a civil
// date at midnight UTC and Month is always Date formatted as YYYY-MM.
type MeetingPoint struct {
	ID          string
	Date        time.Time
	Time        string
	Location    string
	ConductorID *string
	Outline     *string
	Link        *string
	Month       string
	SeriesID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MeetingPointDetail is a meeting point joined with its conductor.
type MeetingPointDetail struct {
	MeetingPoint
	Conductor *Person
}

// ConductorCount aggregates the assignments of one conductor within a year.
type ConductorCount struct {
	ConductorID string
	Count       int
	LastDate    time.Time
}

// MonthlyConductorCount aggregates the assignments of one conductor within a month.
type MonthlyConductorCount struct {
	Month       string
	ConductorID string
	Count       int
}

// InviteToken grants a user one-time access to set their password.
type InviteToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// RefreshToken allows renewing access tokens until it expires or is revoked.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Event represents an organization-wide calendar entry.
type Event struct {
	ID          string
	Name        string
	Description *string
	Start       time.Time
	End         time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
