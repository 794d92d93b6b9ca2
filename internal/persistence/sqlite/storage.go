package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/cart-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles the connection pool with every repository.
type Storage struct {
	pool *ConnectionPool

	Users         *UserRepository
	Carts         *CartRepository
	Bookings      *BookingRepository
	MeetingPoints *MeetingPointRepository
	InviteTokens  *InviteTokenRepository
	RefreshTokens *RefreshTokenRepository
	Events        *EventRepository
}

// Open connects to the SQLite database at path using the default settings.
func Open(path string) (*Storage, error) {
	return OpenWithConfig(migration.DefaultSQLiteConfig(path))
}

// OpenWithConfig connects to SQLite using config.
func OpenWithConfig(config migration.SQLiteConfig) (*Storage, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		pool:          pool,
		Users:         NewUserRepository(pool),
		Carts:         NewCartRepository(pool),
		Bookings:      NewBookingRepository(pool),
		MeetingPoints: NewMeetingPointRepository(pool),
		InviteTokens:  NewInviteTokenRepository(pool),
		RefreshTokens: NewRefreshTokenRepository(pool),
		Events:        NewEventRepository(pool),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context, logger *slog.Logger) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("sqlite: storage is not open")
	}
	if _, err := migration.NewManager(s.pool.DB(), migrationFiles, "migrations", logger).Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	return s.pool.Close()
}
