package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/cart-scheduler/internal/persistence"
	"github.com/example/cart-scheduler/internal/scheduler"
)

const maxBookingParticipants = 2

// BookingRepository captures the persistence operations needed by the booking service.
type BookingRepository interface {
	// CreateBookingWithinCapacity inserts the booking and its participants
	// only when fewer than capacity bookings of the cart overlap it.
	CreateBookingWithinCapacity(ctx context.Context, booking Booking, capacity int) error
	GetBooking(ctx context.Context, id string) (BookingSummary, error)
	ListBookings(ctx context.Context, query BookingQuery) ([]BookingSummary, error)
	CountOverlapping(ctx context.Context, cartID string, start, end time.Time) (int, error)
	CountOverlappingByCart(ctx context.Context, start, end time.Time) (map[string]int, error)
	DeleteBooking(ctx context.Context, id string) error
}

// UserDirectory resolves user identifiers referenced by other aggregates.
type UserDirectory interface {
	MissingUserIDs(ctx context.Context, ids []string) ([]string, error)
}

// BookingService enforces cart capacity and participant membership for bookings.
type BookingService struct {
	bookings    BookingRepository
	carts       CartRepository
	users       UserDirectory
	capacity    int
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBookingService constructs a booking service with the provided dependencies.
func NewBookingService(bookings BookingRepository, carts CartRepository, users UserDirectory, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, carts, users, idGenerator, now, nil)
}

// NewBookingServiceWithLogger constructs a booking service with a specified logger.
func NewBookingServiceWithLogger(bookings BookingRepository, carts CartRepository, users UserDirectory, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		bookings:    bookings,
		carts:       carts,
		users:       users,
		capacity:    scheduler.CartCapacity,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateBooking validates the request and books the cart when capacity allows.
//
// Checks run in order and the first failure wins: interval, cart existence,
// cart active, participants, capacity. The capacity check is repeated by the
// repository inside the insert transaction.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (summary BookingSummary, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil || s.carts == nil {
		err = fmt.Errorf("booking repositories not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateBooking",
		"principal_id", params.Principal.UserID,
		"cart_id", params.CartID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", summary.ID).InfoContext(ctx, "booking created")
	}()

	if !params.Principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}

	// Storage keeps microseconds; compare what will be stored.
	start, end := params.Start.UTC().Truncate(time.Microsecond), params.End.UTC().Truncate(time.Microsecond)
	if !end.After(start) {
		err = newValidationError("end", "end must be after start")
		return
	}

	var cart Cart
	cart, err = s.carts.GetCart(ctx, params.CartID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	if !cart.Active {
		err = newValidationError("cart_id", "cart is not active")
		return
	}

	participants, vErr := normalizeParticipants(params.ParticipantIDs)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if s.users != nil {
		var missing []string
		missing, err = s.users.MissingUserIDs(ctx, participants)
		if err != nil {
			err = mapBookingRepoError(err)
			return
		}
		if len(missing) > 0 {
			err = fmt.Errorf("participant %s: %w", missing[0], ErrNotFound)
			return
		}
	}

	var overlapping int
	overlapping, err = s.bookings.CountOverlapping(ctx, cart.ID, start, end)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	if !scheduler.HasCapacity(s.capacity, overlapping) {
		err = ErrCapacityExceeded
		return
	}

	booking := Booking{
		ID:             s.idGenerator(),
		CartID:         cart.ID,
		Start:          start,
		End:            end,
		ParticipantIDs: participants,
		CreatedAt:      s.now(),
	}
	if err = s.bookings.CreateBookingWithinCapacity(ctx, booking, s.capacity); err != nil {
		err = mapBookingRepoError(err)
		return
	}

	summary, err = s.bookings.GetBooking(ctx, booking.ID)
	if err != nil {
		err = mapBookingRepoError(err)
	}
	return
}

// DeleteBooking removes a booking when the principal is one of its participants.
func (s *BookingService) DeleteBooking(ctx context.Context, principal Principal, bookingID string) (err error) {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return fmt.Errorf("booking repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteBooking",
		"principal_id", principal.UserID,
		"booking_id", bookingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking deleted")
	}()

	if !principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}

	var existing BookingSummary
	existing, err = s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	if !existing.HasParticipant(principal.UserID) {
		err = ErrUnauthorized
		return
	}

	err = mapBookingRepoError(s.bookings.DeleteBooking(ctx, bookingID))
	return
}

// ListByCart returns every booking of a cart ordered by start.
func (s *BookingService) ListByCart(ctx context.Context, principal Principal, cartID string) ([]BookingSummary, error) {
	if err := s.readable(principal); err != nil {
		return nil, err
	}
	if _, err := s.carts.GetCart(ctx, cartID); err != nil {
		return nil, mapBookingRepoError(err)
	}
	return s.list(ctx, BookingQuery{CartID: cartID})
}

// ListByParticipant returns the bookings userID takes part in. Principals may
// list their own bookings; administrators may list anyone's.
func (s *BookingService) ListByParticipant(ctx context.Context, principal Principal, userID string) ([]BookingSummary, error) {
	if err := s.readable(principal); err != nil {
		return nil, err
	}
	if userID == "" {
		userID = principal.UserID
	}
	if userID != principal.UserID && !principal.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return s.list(ctx, BookingQuery{ParticipantID: userID})
}

// ListInWindow returns bookings overlapping [start, end), optionally limited to one cart.
func (s *BookingService) ListInWindow(ctx context.Context, principal Principal, start, end time.Time, cartID string) ([]BookingSummary, error) {
	if err := s.readable(principal); err != nil {
		return nil, err
	}
	if vErr := validateWindow(start, end); vErr.HasErrors() {
		return nil, vErr
	}
	windowStart, windowEnd := start.UTC(), end.UTC()
	return s.list(ctx, BookingQuery{CartID: strings.TrimSpace(cartID), Start: &windowStart, End: &windowEnd})
}

// AvailableSlots reports, for every active cart with room left in
// [start, end), how many more bookings it accepts. Results are ordered by
// cart name.
func (s *BookingService) AvailableSlots(ctx context.Context, principal Principal, start, end time.Time) ([]CartAvailability, error) {
	if err := s.readable(principal); err != nil {
		return nil, err
	}
	if vErr := validateWindow(start, end); vErr.HasErrors() {
		return nil, vErr
	}

	carts, err := s.carts.ListCarts(ctx, true)
	if err != nil {
		return nil, mapBookingRepoError(err)
	}
	counts, err := s.bookings.CountOverlappingByCart(ctx, start.UTC(), end.UTC())
	if err != nil {
		return nil, mapBookingRepoError(err)
	}

	available := make([]CartAvailability, 0, len(carts))
	for _, cart := range carts {
		remaining := scheduler.SlotsRemaining(s.capacity, counts[cart.ID])
		if remaining == 0 {
			continue
		}
		available = append(available, CartAvailability{Cart: cart, SlotsRemaining: remaining})
	}
	sort.SliceStable(available, func(i, j int) bool {
		return available[i].Cart.Name < available[j].Cart.Name
	})
	return available, nil
}

func (s *BookingService) readable(principal Principal) error {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil || s.carts == nil {
		return fmt.Errorf("booking repositories not configured")
	}
	if !principal.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

func (s *BookingService) list(ctx context.Context, query BookingQuery) ([]BookingSummary, error) {
	bookings, err := s.bookings.ListBookings(ctx, query)
	if err != nil {
		return nil, mapBookingRepoError(err)
	}
	return bookings, nil
}

func normalizeParticipants(ids []string) ([]string, *ValidationError) {
	vErr := &ValidationError{}
	seen := make(map[string]struct{}, len(ids))
	participants := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			vErr.add("participant_ids", "participant ids must not be empty")
			continue
		}
		if _, dup := seen[id]; dup {
			vErr.add("participant_ids", "participant ids must be distinct")
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}
	if len(ids) == 0 || len(ids) > maxBookingParticipants {
		vErr.add("participant_ids", fmt.Sprintf("a booking needs between 1 and %d participants", maxBookingParticipants))
	}
	return participants, vErr
}

func validateWindow(start, end time.Time) *ValidationError {
	vErr := &ValidationError{}
	if start.IsZero() {
		vErr.add("start", "start is required")
	}
	if end.IsZero() {
		vErr.add("end", "end is required")
	}
	if !vErr.HasErrors() && !end.After(start) {
		vErr.add("end", "end must be after start")
	}
	return vErr
}

func mapBookingRepoError(err error) error {
	if errors.Is(err, persistence.ErrInactive) {
		return newValidationError("cart_id", "cart is not active")
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return fmt.Errorf("cart or participant: %w", ErrNotFound)
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return newValidationError("end", "booking interval violates a storage constraint")
	}
	return mapRepoError(err)
}
