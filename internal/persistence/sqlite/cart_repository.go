package sqlite

import (
	"context"

	"github.com/example/cart-scheduler/internal/persistence"
)

const cartColumns = `id, name, location, active, created_at, updated_at`

// CartRepository implements persistence.CartRepository using SQLite.
type CartRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewCartRepository creates a new SQLite cart repository.
func NewCartRepository(pool *ConnectionPool) *CartRepository {
	return &CartRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateCart inserts a new cart.
func (r *CartRepository) CreateCart(ctx context.Context, cart persistence.Cart) error {
	if cart.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO carts (`+cartColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, cart.ID, cart.Name, cart.Location, boolToInt(cart.Active), formatTime(cart.CreatedAt), formatTime(cart.UpdatedAt))
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// UpdateCart overwrites the mutable columns of a cart.
func (r *CartRepository) UpdateCart(ctx context.Context, cart persistence.Cart) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE carts SET name = ?, location = ?, active = ?, updated_at = ? WHERE id = ?
	`, cart.Name, cart.Location, boolToInt(cart.Active), formatTime(cart.UpdatedAt), cart.ID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetCart retrieves a cart by ID.
func (r *CartRepository) GetCart(ctx context.Context, id string) (persistence.Cart, error) {
	return getCart(ctx, r.pool.DB(), r.mapper, id)
}

// ListCarts returns carts ordered by name.
func (r *CartRepository) ListCarts(ctx context.Context, activeOnly bool) ([]persistence.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := r.pool.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var carts []persistence.Cart
	for rows.Next() {
		cart, err := scanCart(rows, r.mapper)
		if err != nil {
			return nil, err
		}
		carts = append(carts, cart)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return carts, nil
}

// DeleteCart removes a cart together with its bookings.
func (r *CartRepository) DeleteCart(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM carts WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

func getCart(ctx context.Context, q queryer, mapper *ErrorMapper, id string) (persistence.Cart, error) {
	if id == "" {
		return persistence.Cart{}, persistence.ErrNotFound
	}
	row := q.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = ?`, id)
	return scanCart(row, mapper)
}

func scanCart(row rowScanner, mapper *ErrorMapper) (persistence.Cart, error) {
	var (
		cart      persistence.Cart
		active    int
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&cart.ID, &cart.Name, &cart.Location, &active, &createdAt, &updatedAt); err != nil {
		return persistence.Cart{}, mapper.MapError(err)
	}
	cart.Active = active == 1

	var err error
	if cart.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Cart{}, err
	}
	if cart.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Cart{}, err
	}
	return cart, nil
}
