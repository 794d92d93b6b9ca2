package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/cart-scheduler/internal/persistence"
)

// overlapPredicate selects bookings overlapping a half-open window. It binds
// the window end first and the window start second.
const overlapPredicate = `b.start_at < ? AND b.end_at > ?`

// BookingRepository implements persistence.BookingRepository using SQLite.
type BookingRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewBookingRepository creates a new SQLite booking repository.
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateBookingWithinCapacity inserts the booking and its participants in one
// transaction. The cart row is written first so concurrent creators for the
// same cart queue behind each other before counting overlaps.
func (r *BookingRepository) CreateBookingWithinCapacity(ctx context.Context, booking persistence.Booking, capacity int) error {
	if booking.ID == "" || booking.CartID == "" || len(booking.ParticipantIDs) == 0 {
		return persistence.ErrConstraintViolation
	}
	if !booking.End.After(booking.Start) {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = updated_at WHERE id = ?`, booking.CartID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}

		var active int
		if err := tx.QueryRowContext(ctx, `SELECT active FROM carts WHERE id = ?`, booking.CartID).Scan(&active); err != nil {
			return r.mapper.MapError(err)
		}
		if active != 1 {
			return persistence.ErrInactive
		}

		overlap, err := countOverlapping(ctx, tx, r.mapper, booking.CartID, booking.Start, booking.End)
		if err != nil {
			return err
		}
		if overlap >= capacity {
			return persistence.ErrCapacityExceeded
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookings (id, cart_id, start_at, end_at, created_at) VALUES (?, ?, ?, ?, ?)
		`, booking.ID, booking.CartID, formatTime(booking.Start), formatTime(booking.End), formatTime(booking.CreatedAt))
		if err != nil {
			return r.mapper.MapError(err)
		}

		for _, userID := range booking.ParticipantIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO booking_participants (booking_id, user_id) VALUES (?, ?)`, booking.ID, userID); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// GetBooking retrieves a booking with its cart name and participants.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.BookingDetail, error) {
	if id == "" {
		return persistence.BookingDetail{}, persistence.ErrNotFound
	}
	details, err := r.queryDetails(ctx, `WHERE b.id = ?`, id)
	if err != nil {
		return persistence.BookingDetail{}, err
	}
	if len(details) == 0 {
		return persistence.BookingDetail{}, persistence.ErrNotFound
	}
	return details[0], nil
}

// ListBookings returns bookings matching the filter ordered by start time.
func (r *BookingRepository) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.BookingDetail, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.CartID != "" {
		clauses = append(clauses, `b.cart_id = ?`)
		args = append(args, filter.CartID)
	}
	if filter.ParticipantID != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM booking_participants p WHERE p.booking_id = b.id AND p.user_id = ?)`)
		args = append(args, filter.ParticipantID)
	}
	if filter.End != nil {
		clauses = append(clauses, `b.start_at < ?`)
		args = append(args, formatTime(*filter.End))
	}
	if filter.Start != nil {
		clauses = append(clauses, `b.end_at > ?`)
		args = append(args, formatTime(*filter.Start))
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	return r.queryDetails(ctx, where, args...)
}

// CountOverlapping counts bookings of the cart overlapping [start, end).
func (r *BookingRepository) CountOverlapping(ctx context.Context, cartID string, start, end time.Time) (int, error) {
	return countOverlapping(ctx, r.pool.DB(), r.mapper, cartID, start, end)
}

// CountOverlappingByCart counts bookings overlapping [start, end) per cart.
// Carts without overlapping bookings are absent from the result.
func (r *BookingRepository) CountOverlappingByCart(ctx context.Context, start, end time.Time) (map[string]int, error) {
	rows, err := r.pool.DB().QueryContext(ctx,
		`SELECT b.cart_id, COUNT(*) FROM bookings b WHERE `+overlapPredicate+` GROUP BY b.cart_id`,
		formatTime(end), formatTime(start))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			cartID string
			count  int
		)
		if err := rows.Scan(&cartID, &count); err != nil {
			return nil, r.mapper.MapError(err)
		}
		counts[cartID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return counts, nil
}

// DeleteBooking removes a booking and, by cascade, its participants.
func (r *BookingRepository) DeleteBooking(ctx context.Context, id string) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM booking_participants WHERE booking_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

func countOverlapping(ctx context.Context, q queryer, mapper *ErrorMapper, cartID string, start, end time.Time) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings b WHERE b.cart_id = ? AND `+overlapPredicate,
		cartID, formatTime(end), formatTime(start)).Scan(&count)
	if err != nil {
		return 0, mapper.MapError(err)
	}
	return count, nil
}

// queryDetails loads bookings together with their participants in a single
// statement, so every returned booking carries the participant set it was
// committed with.
func (r *BookingRepository) queryDetails(ctx context.Context, where string, args ...any) ([]persistence.BookingDetail, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT b.id, b.cart_id, c.name, b.start_at, b.end_at, b.created_at,
		       u.id, u.first_name, u.last_name
		FROM bookings b
		JOIN carts c ON c.id = b.cart_id
		JOIN booking_participants bp ON bp.booking_id = b.id
		JOIN users u ON u.id = bp.user_id
		`+where+`
		ORDER BY b.start_at, b.id, u.last_name, u.first_name, u.id
	`, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var details []persistence.BookingDetail
	for rows.Next() {
		var (
			detail                    persistence.BookingDetail
			person                    persistence.Person
			startAt, endAt, createdAt string
		)
		if err := rows.Scan(&detail.ID, &detail.CartID, &detail.CartName, &startAt, &endAt, &createdAt,
			&person.ID, &person.FirstName, &person.LastName); err != nil {
			return nil, r.mapper.MapError(err)
		}

		if n := len(details); n == 0 || details[n-1].ID != detail.ID {
			if detail.Start, err = parseTime(startAt); err != nil {
				return nil, err
			}
			if detail.End, err = parseTime(endAt); err != nil {
				return nil, err
			}
			if detail.CreatedAt, err = parseTime(createdAt); err != nil {
				return nil, err
			}
			details = append(details, detail)
		}
		last := &details[len(details)-1]
		last.Participants = append(last.Participants, person)
		last.ParticipantIDs = append(last.ParticipantIDs, person.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return details, nil
}
