package application

import "time"

// User represents a member account. A nil PasswordHash marks an invited user
// who has not completed registration.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Username     string
	Email        *string
	PasswordHash *string
	Roles        RoleSet
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Registered reports whether the user has set a password.
func (u User) Registered() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Principal returns the identity the user acts as.
func (u User) Principal() Principal {
	return Principal{UserID: u.ID, Roles: u.Roles}
}

// Person is the public projection of a user embedded in read models.
type Person struct {
	ID        string
	FirstName string
	LastName  string
}

// DisplayName joins first and last name.
func (p Person) DisplayName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// PersonOf projects a user into a Person.
func PersonOf(u User) Person {
	return Person{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
}

// UserInput captures caller provided user attributes. An empty Username is
// derived from the names.
type UserInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     *string
	Roles     []string
}

// CreateUserParams wraps the data required to create a user.
type CreateUserParams struct {
	Principal Principal
	Input     UserInput
}

// UpdateUserParams wraps the data required to update a user.
type UpdateUserParams struct {
	Principal Principal
	UserID    string
	Input     UserInput
}

// Invite is an issued registration token.
type Invite struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// ProvisionedUser is a newly created user with the invite that lets them register.
type ProvisionedUser struct {
	User   User
	Invite Invite
}

// UsernameCheck reports whether a username is free and proposes an alternative.
type UsernameCheck struct {
	Username   string
	Available  bool
	Suggestion string
}

// InviteToken is the stored form of an invite.
type InviteToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// InviteStatus describes whether an invite can still be redeemed.
type InviteStatus struct {
	Valid     bool
	Reason    string
	FirstName string
	LastName  string
	Username  string
	ExpiresAt time.Time
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

// Session is the outcome of a successful login or refresh.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             User
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

// CartInput captures caller provided cart attributes. A nil Active keeps the
// current flag on update and defaults to true on create.
type CartInput struct {
	Name     string
	Location string
	Active   *bool
}

// CartAvailability is a cart with the number of bookings it can still accept
// within a window.
type CartAvailability struct {
	Cart           Cart
	SlotsRemaining int
}

// Booking is the write model of a cart reservation.
type Booking struct {
	ID             string
	CartID         string
	Start          time.Time
	End            time.Time
	ParticipantIDs []string
	CreatedAt      time.Time
}

// BookingSummary is a booking with its cart name and participants resolved.
type BookingSummary struct {
	ID           string
	CartID       string
	CartName     string
	Start        time.Time
	End          time.Time
	Participants []Person
	CreatedAt    time.Time
}

// HasParticipant reports whether userID shares the booking.
func (b BookingSummary) HasParticipant(userID string) bool {
	for _, p := range b.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// BookingQuery narrows booking listings. Start and End select bookings
// overlapping [Start, End).
type BookingQuery struct {
	CartID        string
	ParticipantID string
	Start         *time.Time
	End           *time.Time
}

// CreateBookingParams wraps the data required to book a cart.
type CreateBookingParams struct {
	Principal      Principal
	CartID         string
	Start          time.Time
	End            time.Time
	ParticipantIDs []string
}

// MeetingPoint is a field-service meeting assignment. Date is a civil date at
// midnight UTC and Month always equals Date formatted as YYYY-MM.
type MeetingPoint struct {
	ID          string
	Date        time.Time
	Time        string
	Location    string
	ConductorID *string
	Conductor   *Person
	Outline     *string
	Link        *string
	Month       string
	SeriesID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MeetingPointInput captures the attributes of a single meeting point.
type MeetingPointInput struct {
	Date        time.Time
	Time        string
	Location    string
	ConductorID *string
	Outline     *string
	Link        *string
}

// MeetingPointSeriesInput describes a recurring run of meeting points.
type MeetingPointSeriesInput struct {
	StartDate   time.Time
	EndDate     time.Time
	Frequency   string
	Time        string
	Location    string
	ConductorID *string
	Outline     *string
	Link        *string
}

// Nullable is an optional field of a partial update. Set distinguishes an
// explicit null from an absent field.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// NullableOf returns a set field holding value.
func NullableOf[T any](value T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &value}
}

// MeetingPointPatch lists the fields changed by a partial update.
type MeetingPointPatch struct {
	Date        *time.Time
	Time        *string
	Location    *string
	ConductorID Nullable[string]
	Outline     Nullable[string]
	Link        Nullable[string]
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

// ConductorStat ranks a user by how often they conducted in a year.
type ConductorStat struct {
	Conductor        Person
	AssignmentCount  int
	LastAssignedDate *time.Time
}

// MonthlyConductorStat is the assignment count of a conductor in one month.
type MonthlyConductorStat struct {
	Month           string
	Conductor       Person
	AssignmentCount int
}

// Event is an organization-wide calendar entry.
type Event struct {
	ID          string
	Name        string
	Description *string
	Start       time.Time
	End         time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventInput captures caller provided event attributes.
type EventInput struct {
	Name        string
	Description *string
	Start       time.Time
	End         time.Time
}
