package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/cart-scheduler/internal/persistence"
)

// CartRepository captures the persistence operations needed by the cart service.
type CartRepository interface {
	CreateCart(ctx context.Context, cart Cart) error
	GetCart(ctx context.Context, id string) (Cart, error)
	UpdateCart(ctx context.Context, cart Cart) error
	DeleteCart(ctx context.Context, id string) error
	ListCarts(ctx context.Context, activeOnly bool) ([]Cart, error)
}

// CartService orchestrates validation, authorization, and persistence for carts.
type CartService struct {
	carts       CartRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCartService constructs a cart service with the provided dependencies.
func NewCartService(carts CartRepository, idGenerator func() string, now func() time.Time) *CartService {
	return NewCartServiceWithLogger(carts, idGenerator, now, nil)
}

// NewCartServiceWithLogger constructs a cart service with a specified logger.
func NewCartServiceWithLogger(carts CartRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CartService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CartService{carts: carts, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *CartService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CartService", operation, attrs...)
}

// CreateCart validates input and persists a new cart for administrators.
func (s *CartService) CreateCart(ctx context.Context, principal Principal, input CartInput) (cart Cart, err error) {
	if s == nil {
		err = fmt.Errorf("CartService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateCart", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create cart", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("cart_id", cart.ID).InfoContext(ctx, "cart created")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if vErr := validateCartInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	cart = Cart{
		ID:        s.idGenerator(),
		Name:      strings.TrimSpace(input.Name),
		Location:  strings.TrimSpace(input.Location),
		Active:    input.Active == nil || *input.Active,
		CreatedAt: s.now(),
	}
	cart.UpdatedAt = cart.CreatedAt

	if s.carts == nil {
		return
	}
	if err = s.carts.CreateCart(ctx, cart); err != nil {
		err = mapCartRepoError(err)
		cart = Cart{}
	}
	return
}

// UpdateCart replaces the attributes of an existing cart for administrators.
func (s *CartService) UpdateCart(ctx context.Context, principal Principal, cartID string, input CartInput) (cart Cart, err error) {
	if s == nil {
		err = fmt.Errorf("CartService is nil")
		return
	}
	if s.carts == nil {
		err = fmt.Errorf("cart repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateCart", "principal_id", principal.UserID, "cart_id", cartID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update cart", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "cart updated")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if vErr := validateCartInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	cart, err = s.carts.GetCart(ctx, cartID)
	if err != nil {
		err = mapCartRepoError(err)
		return
	}

	cart.Name = strings.TrimSpace(input.Name)
	cart.Location = strings.TrimSpace(input.Location)
	if input.Active != nil {
		cart.Active = *input.Active
	}
	cart.UpdatedAt = s.now()

	if err = s.carts.UpdateCart(ctx, cart); err != nil {
		err = mapCartRepoError(err)
		cart = Cart{}
	}
	return
}

// ToggleCart flips the active flag of a cart for administrators.
func (s *CartService) ToggleCart(ctx context.Context, principal Principal, cartID string) (cart Cart, err error) {
	if s == nil {
		err = fmt.Errorf("CartService is nil")
		return
	}
	if s.carts == nil {
		err = fmt.Errorf("cart repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ToggleCart", "principal_id", principal.UserID, "cart_id", cartID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to toggle cart", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "cart toggled", "active", cart.Active)
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	cart, err = s.carts.GetCart(ctx, cartID)
	if err != nil {
		err = mapCartRepoError(err)
		return
	}
	cart.Active = !cart.Active
	cart.UpdatedAt = s.now()

	if err = s.carts.UpdateCart(ctx, cart); err != nil {
		err = mapCartRepoError(err)
		cart = Cart{}
	}
	return
}

// DeleteCart removes a cart and, by cascade, its bookings.
func (s *CartService) DeleteCart(ctx context.Context, principal Principal, cartID string) (err error) {
	if s == nil {
		return fmt.Errorf("CartService is nil")
	}
	if s.carts == nil {
		return fmt.Errorf("cart repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteCart", "principal_id", principal.UserID, "cart_id", cartID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete cart", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "cart deleted")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	err = mapCartRepoError(s.carts.DeleteCart(ctx, cartID))
	return
}

// GetCart returns a cart to any authenticated principal.
func (s *CartService) GetCart(ctx context.Context, principal Principal, cartID string) (Cart, error) {
	if s == nil {
		return Cart{}, fmt.Errorf("CartService is nil")
	}
	if !principal.Authenticated() {
		return Cart{}, ErrUnauthenticated
	}
	if s.carts == nil {
		return Cart{}, ErrNotFound
	}
	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		return Cart{}, mapCartRepoError(err)
	}
	return cart, nil
}

// ListCarts returns carts ordered by name.
func (s *CartService) ListCarts(ctx context.Context, principal Principal, activeOnly bool) ([]Cart, error) {
	if s == nil {
		return nil, fmt.Errorf("CartService is nil")
	}
	if !principal.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if s.carts == nil {
		return nil, nil
	}
	carts, err := s.carts.ListCarts(ctx, activeOnly)
	if err != nil {
		return nil, mapCartRepoError(err)
	}
	return carts, nil
}

func validateCartInput(input CartInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if strings.TrimSpace(input.Location) == "" {
		vErr.add("location", "location is required")
	}
	return vErr
}

func mapCartRepoError(err error) error {
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return newValidationError("name", "cart attributes violate a storage constraint")
	}
	return mapRepoError(err)
}

// mapRepoError converts persistence sentinels shared by all repositories.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrCapacityExceeded):
		return ErrCapacityExceeded
	}
	return err
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
