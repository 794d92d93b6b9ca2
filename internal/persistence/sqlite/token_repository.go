package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/cart-scheduler/internal/persistence"
)

// InviteTokenRepository implements persistence.InviteTokenRepository using SQLite.
type InviteTokenRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewInviteTokenRepository creates a new SQLite invite token repository.
func NewInviteTokenRepository(pool *ConnectionPool) *InviteTokenRepository {
	return &InviteTokenRepository{pool: pool, mapper: NewErrorMapper()}
}

// IssueInviteToken consumes every unused token of the user and inserts token.
func (r *InviteTokenRepository) IssueInviteToken(ctx context.Context, token persistence.InviteToken) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return r.issue(ctx, tx, token)
	})
}

// ResetCredentials clears the user's password and issues token in one transaction.
func (r *InviteTokenRepository) ResetCredentials(ctx context.Context, token persistence.InviteToken) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = NULL, updated_at = ? WHERE id = ?`,
			formatTime(token.CreatedAt), token.UserID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}
		return r.issue(ctx, tx, token)
	})
}

func (r *InviteTokenRepository) issue(ctx context.Context, tx *sql.Tx, token persistence.InviteToken) error {
	if token.ID == "" || token.Token == "" || token.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE invite_tokens SET used_at = ? WHERE user_id = ? AND used_at IS NULL`,
		formatTime(token.CreatedAt), token.UserID)
	if err != nil {
		return r.mapper.MapError(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invite_tokens (id, user_id, token, expires_at, used_at, created_at)
		VALUES (?, ?, ?, ?, NULL, ?)
	`, token.ID, token.UserID, token.Token, formatTime(token.ExpiresAt), formatTime(token.CreatedAt))
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetInviteToken retrieves a token by its opaque value.
func (r *InviteTokenRepository) GetInviteToken(ctx context.Context, token string) (persistence.InviteToken, error) {
	if token == "" {
		return persistence.InviteToken{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, used_at, created_at FROM invite_tokens WHERE token = ?
	`, token)
	return r.scan(row)
}

// ListInviteTokens returns every token issued to the user, oldest first.
func (r *InviteTokenRepository) ListInviteTokens(ctx context.Context, userID string) ([]persistence.InviteToken, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, user_id, token, expires_at, used_at, created_at
		FROM invite_tokens WHERE user_id = ? ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var tokens []persistence.InviteToken
	for rows.Next() {
		token, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return tokens, nil
}

// CompleteRegistration consumes the token and sets the password of a user who
// has none. Either condition failing yields persistence.ErrStale.
func (r *InviteTokenRepository) CompleteRegistration(ctx context.Context, tokenID, userID, passwordHash string, usedAt time.Time) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE invite_tokens SET used_at = ? WHERE id = ? AND user_id = ? AND used_at IS NULL`,
			formatTime(usedAt), tokenID, userID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return persistence.ErrStale
		}

		result, err = tx.ExecContext(ctx,
			`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND password_hash IS NULL`,
			passwordHash, formatTime(usedAt), userID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return persistence.ErrStale
		}
		return nil
	})
}

// DeleteExpiredInviteTokens removes tokens that expired before the reference time.
func (r *InviteTokenRepository) DeleteExpiredInviteTokens(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM invite_tokens WHERE expires_at < ?`, formatTime(before))
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return deleted, nil
}

func (r *InviteTokenRepository) scan(row rowScanner) (persistence.InviteToken, error) {
	var (
		token                persistence.InviteToken
		expiresAt, createdAt string
		usedAt               sql.NullString
	)
	if err := row.Scan(&token.ID, &token.UserID, &token.Token, &expiresAt, &usedAt, &createdAt); err != nil {
		return persistence.InviteToken{}, r.mapper.MapError(err)
	}

	var err error
	if token.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.InviteToken{}, err
	}
	if token.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.InviteToken{}, err
	}
	if token.UsedAt, err = timePtr(usedAt); err != nil {
		return persistence.InviteToken{}, err
	}
	return token, nil
}

// RefreshTokenRepository implements persistence.RefreshTokenRepository using SQLite.
type RefreshTokenRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewRefreshTokenRepository creates a new SQLite refresh token repository.
func NewRefreshTokenRepository(pool *ConnectionPool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateRefreshToken inserts a refresh token.
func (r *RefreshTokenRepository) CreateRefreshToken(ctx context.Context, token persistence.RefreshToken) error {
	if token.ID == "" || token.Token == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at, revoked, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`, token.ID, token.UserID, token.Token, formatTime(token.ExpiresAt), boolToInt(token.Revoked), formatTime(token.CreatedAt))
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token by its opaque value.
func (r *RefreshTokenRepository) GetRefreshToken(ctx context.Context, token string) (persistence.RefreshToken, error) {
	if token == "" {
		return persistence.RefreshToken{}, persistence.ErrNotFound
	}

	var (
		stored               persistence.RefreshToken
		revoked              int
		expiresAt, createdAt string
	)
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, revoked, created_at FROM refresh_tokens WHERE token = ?
	`, token).Scan(&stored.ID, &stored.UserID, &stored.Token, &expiresAt, &revoked, &createdAt)
	if err != nil {
		return persistence.RefreshToken{}, r.mapper.MapError(err)
	}

	stored.Revoked = revoked == 1
	if stored.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.RefreshToken{}, err
	}
	if stored.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.RefreshToken{}, err
	}
	return stored, nil
}

// RevokeRefreshToken marks the token revoked. Revoking twice is not an error.
func (r *RefreshTokenRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	result, err := r.pool.DB().ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE token = ?`, token)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// DeleteExpiredRefreshTokens removes tokens that are revoked or expired at reference.
func (r *RefreshTokenRepository) DeleteExpiredRefreshTokens(ctx context.Context, reference time.Time) (int64, error) {
	result, err := r.pool.DB().ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE revoked = 1 OR expires_at <= ?`, formatTime(reference))
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return deleted, nil
}
