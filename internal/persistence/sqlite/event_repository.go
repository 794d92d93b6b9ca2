package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/cart-scheduler/internal/persistence"
)

const eventColumns = `id, name, description, start_at, end_at, created_at, updated_at`

// EventRepository implements persistence.EventRepository using SQLite.
type EventRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateEvent inserts a new event.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx, `INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Name, nullString(event.Description),
		formatTime(event.Start), formatTime(event.End),
		formatTime(event.CreatedAt), formatTime(event.UpdatedAt))
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// UpdateEvent overwrites the mutable columns of an event.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE events SET name = ?, description = ?, start_at = ?, end_at = ?, updated_at = ? WHERE id = ?
	`, event.Name, nullString(event.Description), formatTime(event.Start), formatTime(event.End), formatTime(event.UpdatedAt), event.ID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetEvent retrieves an event by ID.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if id == "" {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return r.scan(r.pool.DB().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
}

// ListEvents returns events ordered by start time.
func (r *EventRepository) ListEvents(ctx context.Context) ([]persistence.Event, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY start_at, id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var events []persistence.Event
	for rows.Next() {
		event, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

// DeleteEvent removes an event.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

func (r *EventRepository) scan(row rowScanner) (persistence.Event, error) {
	var (
		event                                persistence.Event
		description                          sql.NullString
		startAt, endAt, createdAt, updatedAt string
	)
	if err := row.Scan(&event.ID, &event.Name, &description, &startAt, &endAt, &createdAt, &updatedAt); err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	event.Description = stringPtr(description)

	var err error
	if event.Start, err = parseTime(startAt); err != nil {
		return persistence.Event{}, err
	}
	if event.End, err = parseTime(endAt); err != nil {
		return persistence.Event{}, err
	}
	if event.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Event{}, err
	}
	if event.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}
