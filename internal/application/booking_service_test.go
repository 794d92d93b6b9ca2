package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cart-scheduler/internal/persistence"
	"github.com/example/cart-scheduler/internal/scheduler"
)

type cartRepoStub struct {
	carts     map[string]Cart
	createErr error
	created   []Cart
	updated   []Cart
	deleted   []string
}

func newCartRepoStub(carts ...Cart) *cartRepoStub {
	stub := &cartRepoStub{carts: make(map[string]Cart)}
	for _, cart := range carts {
		stub.carts[cart.ID] = cart
	}
	return stub
}

func (r *cartRepoStub) CreateCart(_ context.Context, cart Cart) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, cart)
	r.carts[cart.ID] = cart
	return nil
}

func (r *cartRepoStub) GetCart(_ context.Context, id string) (Cart, error) {
	cart, ok := r.carts[id]
	if !ok {
		return Cart{}, persistence.ErrNotFound
	}
	return cart, nil
}

func (r *cartRepoStub) UpdateCart(_ context.Context, cart Cart) error {
	if _, ok := r.carts[cart.ID]; !ok {
		return persistence.ErrNotFound
	}
	r.updated = append(r.updated, cart)
	r.carts[cart.ID] = cart
	return nil
}

func (r *cartRepoStub) DeleteCart(_ context.Context, id string) error {
	if _, ok := r.carts[id]; !ok {
		return persistence.ErrNotFound
	}
	r.deleted = append(r.deleted, id)
	delete(r.carts, id)
	return nil
}

func (r *cartRepoStub) ListCarts(_ context.Context, activeOnly bool) ([]Cart, error) {
	var out []Cart
	for _, cart := range r.carts {
		if activeOnly && !cart.Active {
			continue
		}
		out = append(out, cart)
	}
	return out, nil
}

// bookingRepoStub keeps bookings in memory and applies the same overlap rule
// as the SQLite repository.
type bookingRepoStub struct {
	bookings  map[string]Booking
	people    map[string]Person
	cartNames map[string]string
	countErr  error
	createErr error
	deleted   []string
	queries   []BookingQuery
}

func newBookingRepoStub() *bookingRepoStub {
	return &bookingRepoStub{
		bookings:  make(map[string]Booking),
		people:    make(map[string]Person),
		cartNames: make(map[string]string),
	}
}

func (r *bookingRepoStub) intervals(cartID string) []scheduler.Interval {
	var out []scheduler.Interval
	for _, b := range r.bookings {
		if b.CartID == cartID {
			out = append(out, scheduler.Interval{ID: b.ID, Start: b.Start, End: b.End})
		}
	}
	return out
}

func (r *bookingRepoStub) CreateBookingWithinCapacity(_ context.Context, booking Booking, capacity int) error {
	if r.createErr != nil {
		return r.createErr
	}
	candidate := scheduler.Interval{ID: booking.ID, Start: booking.Start, End: booking.End}
	if !scheduler.HasCapacity(capacity, scheduler.OverlapCount(r.intervals(booking.CartID), candidate, "")) {
		return persistence.ErrCapacityExceeded
	}
	r.bookings[booking.ID] = booking
	return nil
}

func (r *bookingRepoStub) summary(b Booking) BookingSummary {
	summary := BookingSummary{ID: b.ID, CartID: b.CartID, CartName: r.cartNames[b.CartID], Start: b.Start, End: b.End, CreatedAt: b.CreatedAt}
	for _, id := range b.ParticipantIDs {
		person, ok := r.people[id]
		if !ok {
			person = Person{ID: id}
		}
		summary.Participants = append(summary.Participants, person)
	}
	return summary
}

func (r *bookingRepoStub) GetBooking(_ context.Context, id string) (BookingSummary, error) {
	b, ok := r.bookings[id]
	if !ok {
		return BookingSummary{}, persistence.ErrNotFound
	}
	return r.summary(b), nil
}

func (r *bookingRepoStub) ListBookings(_ context.Context, query BookingQuery) ([]BookingSummary, error) {
	r.queries = append(r.queries, query)
	var out []BookingSummary
	for _, b := range r.bookings {
		if query.CartID != "" && b.CartID != query.CartID {
			continue
		}
		out = append(out, r.summary(b))
	}
	return out, nil
}

func (r *bookingRepoStub) CountOverlapping(_ context.Context, cartID string, start, end time.Time) (int, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return scheduler.OverlapCount(r.intervals(cartID), scheduler.Interval{Start: start, End: end}, ""), nil
}

func (r *bookingRepoStub) CountOverlappingByCart(_ context.Context, start, end time.Time) (map[string]int, error) {
	counts := make(map[string]int)
	window := scheduler.Interval{Start: start, End: end}
	for _, b := range r.bookings {
		if scheduler.Overlaps(scheduler.Interval{Start: b.Start, End: b.End}, window) {
			counts[b.CartID]++
		}
	}
	return counts, nil
}

func (r *bookingRepoStub) DeleteBooking(_ context.Context, id string) error {
	if _, ok := r.bookings[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.bookings, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type userDirectoryStub struct {
	known map[string]bool
	err   error
}

func (d userDirectoryStub) MissingUserIDs(_ context.Context, ids []string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	var missing []string
	for _, id := range ids {
		if !d.known[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func sequence(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + string(rune('0'+n))
	}
}

type bookingFixture struct {
	svc      *BookingService
	bookings *bookingRepoStub
	carts    *cartRepoStub
	alice    Principal
	bob      Principal
	base     time.Time
}

func newBookingFixture(t *testing.T) bookingFixture {
	t.Helper()

	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	carts := newCartRepoStub(
		Cart{ID: "cart-a", Name: "Plaza", Location: "Centro", Active: true},
		Cart{ID: "cart-b", Name: "Estación", Location: "Norte", Active: true},
		Cart{ID: "cart-off", Name: "Almacén", Location: "Sur", Active: false},
	)
	bookings := newBookingRepoStub()
	bookings.people["alice"] = Person{ID: "alice", FirstName: "Alice", LastName: "Ayala"}
	bookings.people["bob"] = Person{ID: "bob", FirstName: "Bob", LastName: "Benítez"}
	bookings.cartNames["cart-a"] = "Plaza"
	users := userDirectoryStub{known: map[string]bool{"alice": true, "bob": true, "carol": true}}

	svc := NewBookingService(bookings, carts, users, sequence("booking-"), func() time.Time { return base })
	return bookingFixture{
		svc:      svc,
		bookings: bookings,
		carts:    carts,
		alice:    Principal{UserID: "alice", Roles: NewRoleSet(RolePublisher)},
		bob:      Principal{UserID: "bob", Roles: NewRoleSet(RolePublisher)},
		base:     base,
	}
}

func (f bookingFixture) params(cartID string, startOffset, endOffset time.Duration, participants ...string) CreateBookingParams {
	return CreateBookingParams{
		Principal:      f.alice,
		CartID:         cartID,
		Start:          f.base.Add(startOffset),
		End:            f.base.Add(endOffset),
		ParticipantIDs: participants,
	}
}

func TestBookingService_CreateBooking(t *testing.T) {
	t.Parallel()

	t.Run("persists booking with participants", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)

		got, err := f.svc.CreateBooking(context.Background(), f.params("cart-a", 0, time.Hour, "alice", "bob"))
		require.NoError(t, err)

		assert.Equal(t, "booking-1", got.ID)
		assert.Equal(t, "Plaza", got.CartName)
		assert.ElementsMatch(t, []string{"alice", "bob"}, []string{got.Participants[0].ID, got.Participants[1].ID})
		assert.True(t, f.bookings.bookings["booking-1"].CreatedAt.Equal(f.base))
	})

	t.Run("rejects end not after start", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)

		_, err := f.svc.CreateBooking(context.Background(), f.params("missing", time.Hour, time.Hour, "alice"))

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "end")
	})

	t.Run("rejects an interval that collapses at storage precision", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)
		params := f.params("cart-a", 100*time.Nanosecond, 900*time.Nanosecond, "alice")

		_, err := f.svc.CreateBooking(context.Background(), params)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "end")
		assert.Empty(t, f.bookings.bookings)
	})

	t.Run("stores sub-microsecond times truncated", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)
		params := f.params("cart-a", 0, time.Hour+999*time.Nanosecond, "alice")

		got, err := f.svc.CreateBooking(context.Background(), params)
		require.NoError(t, err)
		assert.True(t, got.End.Equal(f.base.Add(time.Hour)))
	})

	t.Run("maps storage constraint violations to validation errors", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)
		f.bookings.createErr = persistence.ErrConstraintViolation

		_, err := f.svc.CreateBooking(context.Background(), f.params("cart-a", 0, time.Hour, "alice"))

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "validation", ErrorKind(err))
	})

	t.Run("reports missing cart before inactive or participant checks", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)

		_, err := f.svc.CreateBooking(context.Background(), f.params("missing", 0, time.Hour, "ghost"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejects inactive cart", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)

		_, err := f.svc.CreateBooking(context.Background(), f.params("cart-off", 0, time.Hour, "ghost"))

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "cart_id")
	})

	t.Run("validates participant count and uniqueness", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)

		for _, ids := range [][]string{nil, {"alice", "bob", "carol"}, {"alice", "alice"}, {" "}} {
			_, err := f.svc.CreateBooking(context.Background(), f.params("cart-a", 0, time.Hour, ids...))
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr, "participants %v", ids)
			assert.Contains(t, vErr.FieldErrors, "participant_ids")
		}
		assert.Empty(t, f.bookings.bookings)
	})

	t.Run("reports unknown participant as not found", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)

		_, err := f.svc.CreateBooking(context.Background(), f.params("cart-a", 0, time.Hour, "alice", "ghost"))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, f.bookings.bookings)
	})

	t.Run("allows two overlapping bookings and rejects the third", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)
		ctx := context.Background()

		_, err := f.svc.CreateBooking(ctx, f.params("cart-a", 0, 2*time.Hour, "alice"))
		require.NoError(t, err)
		_, err = f.svc.CreateBooking(ctx, f.params("cart-a", time.Hour, 3*time.Hour, "bob"))
		require.NoError(t, err)

		_, err = f.svc.CreateBooking(ctx, f.params("cart-a", 90*time.Minute, 2*time.Hour, "carol"))
		assert.ErrorIs(t, err, ErrCapacityExceeded)
		assert.Len(t, f.bookings.bookings, 2)

		_, err = f.svc.CreateBooking(ctx, f.params("cart-a", 3*time.Hour, 4*time.Hour, "carol"))
		assert.NoError(t, err, "touching endpoints do not overlap")

		_, err = f.svc.CreateBooking(ctx, f.params("cart-b", 90*time.Minute, 2*time.Hour, "carol"))
		assert.NoError(t, err, "capacity is per cart")
	})

	t.Run("maps capacity lost inside the transaction", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)
		f.bookings.createErr = persistence.ErrCapacityExceeded

		_, err := f.svc.CreateBooking(context.Background(), f.params("cart-a", 0, time.Hour, "alice"))
		assert.ErrorIs(t, err, ErrCapacityExceeded)
	})

	t.Run("requires an authenticated principal", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)
		params := f.params("cart-a", 0, time.Hour, "alice")
		params.Principal = Principal{}

		_, err := f.svc.CreateBooking(context.Background(), params)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("propagates unexpected repository errors", func(t *testing.T) {
		t.Parallel()
		f := newBookingFixture(t)
		boom := errors.New("disk full")
		f.bookings.countErr = boom

		_, err := f.svc.CreateBooking(context.Background(), f.params("cart-a", 0, time.Hour, "alice"))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "unexpected", ErrorKind(err))
	})
}

func TestBookingService_DeleteBooking(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateBooking(ctx, f.params("cart-a", 0, time.Hour, "alice"))
	require.NoError(t, err)

	err = f.svc.DeleteBooking(ctx, f.bob, created.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	admin := Principal{UserID: "root", Roles: NewRoleSet(RoleAdmin)}
	assert.ErrorIs(t, f.svc.DeleteBooking(ctx, admin, created.ID), ErrUnauthorized, "only participants may delete")

	require.NoError(t, f.svc.DeleteBooking(ctx, f.alice, created.ID))
	assert.Equal(t, []string{created.ID}, f.bookings.deleted)

	assert.ErrorIs(t, f.svc.DeleteBooking(ctx, f.alice, created.ID), ErrNotFound)
}

func TestBookingService_AvailableSlots(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateBooking(ctx, f.params("cart-a", 0, time.Hour, "alice"))
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(ctx, f.params("cart-a", 0, time.Hour, "bob"))
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(ctx, f.params("cart-b", 0, time.Hour, "carol"))
	require.NoError(t, err)

	got, err := f.svc.AvailableSlots(ctx, f.alice, f.base, f.base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cart-b", got[0].Cart.ID)
	assert.Equal(t, 1, got[0].SlotsRemaining)

	got, err = f.svc.AvailableSlots(ctx, f.alice, f.base.Add(time.Hour), f.base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Estación", got[0].Cart.Name)
	assert.Equal(t, "Plaza", got[1].Cart.Name)
	assert.Equal(t, 2, got[0].SlotsRemaining)

	_, err = f.svc.AvailableSlots(ctx, f.alice, f.base, f.base)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestBookingService_Listings(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListByParticipant(ctx, f.alice, "bob")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.ListByParticipant(ctx, f.alice, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", f.bookings.queries[len(f.bookings.queries)-1].ParticipantID)

	_, err = f.svc.ListByCart(ctx, f.alice, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	_, err = f.svc.ListInWindow(ctx, f.alice, start, start.Add(time.Hour), " cart-a ")
	require.NoError(t, err)
	last := f.bookings.queries[len(f.bookings.queries)-1]
	assert.Equal(t, "cart-a", last.CartID)
	assert.Equal(t, time.UTC, last.Start.Location())
	assert.True(t, last.Start.Equal(start))

	_, err = f.svc.ListInWindow(ctx, Principal{}, start, start.Add(time.Hour), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
