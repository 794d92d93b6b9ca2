package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/cart-scheduler/internal/persistence"
)

const userColumns = `id, first_name, last_name, username, email, password_hash, roles, active, created_at, updated_at`

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateUser inserts a new user.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.Username == "" {
		return persistence.ErrConstraintViolation
	}

	roles, err := encodeRoles(user.Roles)
	if err != nil {
		return err
	}

	_, err = r.pool.DB().ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		user.ID,
		user.FirstName,
		user.LastName,
		normalizeUsername(user.Username),
		nullString(normalizeEmail(user.Email)),
		nullString(user.PasswordHash),
		roles,
		boolToInt(user.Active),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// UpdateUser overwrites every mutable column of an existing user.
func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" {
		return persistence.ErrNotFound
	}

	roles, err := encodeRoles(user.Roles)
	if err != nil {
		return err
	}

	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE users
		SET first_name = ?, last_name = ?, username = ?, email = ?, password_hash = ?, roles = ?, active = ?, updated_at = ?
		WHERE id = ?
	`,
		user.FirstName,
		user.LastName,
		normalizeUsername(user.Username),
		nullString(normalizeEmail(user.Email)),
		nullString(user.PasswordHash),
		roles,
		boolToInt(user.Active),
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanUser(row)
}

// GetUserByLogin retrieves a user by username or email, case-insensitively.
func (r *UserRepository) GetUserByLogin(ctx context.Context, login string) (persistence.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ? LIMIT 1`, login, login)
	return r.scanUser(row)
}

// ListUsers returns users ordered by last name, first name.
func (r *UserRepository) ListUsers(ctx context.Context, filter persistence.UserFilter) ([]persistence.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if filter.ActiveOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY last_name, first_name, id`

	rows, err := r.pool.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return users, nil
}

// DeleteUser removes a user. Bookings they shared lose the participant row and
// bookings they held alone are removed; meeting points they conducted keep
// the assignment without a conductor.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM bookings
			WHERE id IN (SELECT booking_id FROM booking_participants WHERE user_id = ?)
			  AND NOT EXISTS (
				SELECT 1 FROM booking_participants other
				WHERE other.booking_id = bookings.id AND other.user_id <> ?
			  )
		`, id, id)
		if err != nil {
			return r.mapper.MapError(err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

// UsernameExists reports whether the username is taken.
func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists int
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)`, normalizeUsername(username)).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists == 1, nil
}

// MissingUserIDs returns the ids that do not resolve to a stored user, in input order.
func (r *UserRepository) MissingUserIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.pool.DB().QueryContext(ctx,
		`SELECT id FROM users WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, r.mapper.MapError(err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// CountUsersWithRole counts active users holding role.
func (r *UserRepository) CountUsersWithRole(ctx context.Context, role string) (int, error) {
	var count int
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM users, json_each(users.roles)
		WHERE users.active = 1 AND json_each.value = ?
	`, role).Scan(&count)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanUser(row rowScanner) (persistence.User, error) {
	var (
		user         persistence.User
		email        sql.NullString
		passwordHash sql.NullString
		roles        string
		active       int
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Username, &email, &passwordHash, &roles, &active, &createdAt, &updatedAt)
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}

	user.Email = stringPtr(email)
	user.PasswordHash = stringPtr(passwordHash)
	user.Active = active == 1
	if user.Roles, err = decodeRoles(roles); err != nil {
		return persistence.User{}, err
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func encodeRoles(roles []string) (string, error) {
	if roles == nil {
		roles = []string{}
	}
	encoded, err := json.Marshal(roles)
	if err != nil {
		return "", fmt.Errorf("encode roles: %w", err)
	}
	return string(encoded), nil
}

func decodeRoles(value string) ([]string, error) {
	var roles []string
	if err := json.Unmarshal([]byte(value), &roles); err != nil {
		return nil, fmt.Errorf("decode roles %q: %w", value, err)
	}
	return roles, nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(*email))
	if normalized == "" {
		return nil
	}
	return &normalized
}
