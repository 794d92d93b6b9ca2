package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/cart-scheduler/internal/persistence"
)

const meetingPointSelect = `
	SELECT m.id, m.date, m.time, m.location, m.conductor_id, m.outline, m.link, m.month, m.series_id,
	       m.created_at, m.updated_at, u.first_name, u.last_name
	FROM meeting_points m
	LEFT JOIN users u ON u.id = m.conductor_id
`

// MeetingPointRepository implements persistence.MeetingPointRepository using SQLite.
type MeetingPointRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewMeetingPointRepository creates a new SQLite meeting point repository.
func NewMeetingPointRepository(pool *ConnectionPool) *MeetingPointRepository {
	return &MeetingPointRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateMeetingPoints inserts every point or none of them.
func (r *MeetingPointRepository) CreateMeetingPoints(ctx context.Context, points []persistence.MeetingPoint) error {
	if len(points) == 0 {
		return nil
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO meeting_points (id, date, time, location, conductor_id, outline, link, month, series_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return r.mapper.MapError(err)
		}
		defer stmt.Close()

		for _, point := range points {
			if point.ID == "" {
				return persistence.ErrConstraintViolation
			}
			_, err := stmt.ExecContext(ctx,
				point.ID,
				formatDate(point.Date),
				point.Time,
				point.Location,
				nullString(point.ConductorID),
				nullString(point.Outline),
				nullString(point.Link),
				point.Month,
				nullString(point.SeriesID),
				formatTime(point.CreatedAt),
				formatTime(point.UpdatedAt),
			)
			if err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// UpdateMeetingPoint overwrites the mutable columns of a meeting point.
func (r *MeetingPointRepository) UpdateMeetingPoint(ctx context.Context, point persistence.MeetingPoint) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE meeting_points
		SET date = ?, time = ?, location = ?, conductor_id = ?, outline = ?, link = ?, month = ?, updated_at = ?
		WHERE id = ?
	`,
		formatDate(point.Date),
		point.Time,
		point.Location,
		nullString(point.ConductorID),
		nullString(point.Outline),
		nullString(point.Link),
		point.Month,
		formatTime(point.UpdatedAt),
		point.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetMeetingPoint retrieves a meeting point with its conductor.
func (r *MeetingPointRepository) GetMeetingPoint(ctx context.Context, id string) (persistence.MeetingPointDetail, error) {
	if id == "" {
		return persistence.MeetingPointDetail{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, meetingPointSelect+` WHERE m.id = ?`, id)
	return r.scan(row)
}

// ListMeetingPointsByMonth returns the month's points ordered by date and time.
func (r *MeetingPointRepository) ListMeetingPointsByMonth(ctx context.Context, month string) ([]persistence.MeetingPointDetail, error) {
	rows, err := r.pool.DB().QueryContext(ctx, meetingPointSelect+` WHERE m.month = ? ORDER BY m.date, m.time, m.id`, month)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var points []persistence.MeetingPointDetail
	for rows.Next() {
		point, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return points, nil
}

// DeleteMeetingPoint removes a single meeting point.
func (r *MeetingPointRepository) DeleteMeetingPoint(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM meeting_points WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// DeleteSeries removes every point sharing seriesID and returns how many were
// removed. It fails with persistence.ErrNotFound when the series is empty.
func (r *MeetingPointRepository) DeleteSeries(ctx context.Context, seriesID string) (int, error) {
	if seriesID == "" {
		return 0, persistence.ErrNotFound
	}

	var deleted int64
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM meeting_points WHERE series_id = ?`, seriesID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if deleted, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if deleted == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// CountByConductor aggregates assignments per conductor within year.
func (r *MeetingPointRepository) CountByConductor(ctx context.Context, year int) ([]persistence.ConductorCount, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT conductor_id, COUNT(*), MAX(date)
		FROM meeting_points
		WHERE month LIKE ? AND conductor_id IS NOT NULL
		GROUP BY conductor_id
	`, yearPattern(year))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var counts []persistence.ConductorCount
	for rows.Next() {
		var (
			count    persistence.ConductorCount
			lastDate string
		)
		if err := rows.Scan(&count.ConductorID, &count.Count, &lastDate); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if count.LastDate, err = parseDate(lastDate); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return counts, nil
}

// CountByMonthAndConductor aggregates assignments per month and conductor
// within year, ordered by month.
func (r *MeetingPointRepository) CountByMonthAndConductor(ctx context.Context, year int) ([]persistence.MonthlyConductorCount, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT month, conductor_id, COUNT(*)
		FROM meeting_points
		WHERE month LIKE ? AND conductor_id IS NOT NULL
		GROUP BY month, conductor_id
		ORDER BY month
	`, yearPattern(year))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var counts []persistence.MonthlyConductorCount
	for rows.Next() {
		var count persistence.MonthlyConductorCount
		if err := rows.Scan(&count.Month, &count.ConductorID, &count.Count); err != nil {
			return nil, r.mapper.MapError(err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return counts, nil
}

func (r *MeetingPointRepository) scan(row rowScanner) (persistence.MeetingPointDetail, error) {
	var (
		point                persistence.MeetingPointDetail
		date                 string
		conductorID          sql.NullString
		outline, link        sql.NullString
		seriesID             sql.NullString
		createdAt, updatedAt string
		firstName, lastName  sql.NullString
	)
	err := row.Scan(&point.ID, &date, &point.Time, &point.Location, &conductorID, &outline, &link,
		&point.Month, &seriesID, &createdAt, &updatedAt, &firstName, &lastName)
	if err != nil {
		return persistence.MeetingPointDetail{}, r.mapper.MapError(err)
	}

	if point.Date, err = parseDate(date); err != nil {
		return persistence.MeetingPointDetail{}, err
	}
	if point.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.MeetingPointDetail{}, err
	}
	if point.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.MeetingPointDetail{}, err
	}
	point.ConductorID = stringPtr(conductorID)
	point.Outline = stringPtr(outline)
	point.Link = stringPtr(link)
	point.SeriesID = stringPtr(seriesID)
	if point.ConductorID != nil && firstName.Valid {
		point.Conductor = &persistence.Person{
			ID:        *point.ConductorID,
			FirstName: firstName.String,
			LastName:  lastName.String,
		}
	}
	return point, nil
}

func yearPattern(year int) string {
	return fmt.Sprintf("%04d-%%", year)
}
