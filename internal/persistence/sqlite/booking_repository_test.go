package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cart-scheduler/internal/persistence"
	"github.com/example/cart-scheduler/internal/scheduler"
	"github.com/example/cart-scheduler/internal/testfixtures"
)

func slot(hour, minute int) time.Time {
	return time.Date(2026, time.March, 2, hour, minute, 0, 0, time.UTC)
}

func newBooking(id, cartID string, start, end time.Time, participants ...string) persistence.Booking {
	return persistence.Booking{
		ID:             id,
		CartID:         cartID,
		Start:          start,
		End:            end,
		ParticipantIDs: participants,
		CreatedAt:      testfixtures.ReferenceTime(),
	}
}

func TestBookingRepository_CreateWithinCapacity(t *testing.T) {
	ctx := context.Background()
	storage := testfixtures.NewSQLiteStorage(t)

	alice := testfixtures.NewUser(testfixtures.WithUserName("Alice", "Able"))
	bob := testfixtures.NewUser(testfixtures.WithUserName("Bob", "Baker"))
	carol := testfixtures.NewUser(testfixtures.WithUserName("Carol", "Cole"))
	testfixtures.SeedUsers(t, storage.Users, alice, bob, carol)
	cart := testfixtures.NewCart()
	testfixtures.SeedCarts(t, storage.Carts, cart)

	repo := storage.Bookings

	t.Run("participants round trip as a set", func(t *testing.T) {
		require.NoError(t, repo.CreateBookingWithinCapacity(ctx,
			newBooking("b-1", cart.ID, slot(10, 0), slot(11, 0), bob.ID, alice.ID), scheduler.CartCapacity))

		detail, err := repo.GetBooking(ctx, "b-1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{alice.ID, bob.ID}, detail.ParticipantIDs)
		assert.Equal(t, cart.Name, detail.CartName)
		assert.True(t, detail.Start.Equal(slot(10, 0)))
		assert.True(t, detail.End.Equal(slot(11, 0)))
	})

	t.Run("second overlapping booking fits", func(t *testing.T) {
		require.NoError(t, repo.CreateBookingWithinCapacity(ctx,
			newBooking("b-2", cart.ID, slot(10, 30), slot(11, 30), carol.ID), scheduler.CartCapacity))
	})

	t.Run("third overlapping booking is rejected without partial rows", func(t *testing.T) {
		err := repo.CreateBookingWithinCapacity(ctx,
			newBooking("b-3", cart.ID, slot(10, 45), slot(11, 15), carol.ID, bob.ID), scheduler.CartCapacity)
		assert.ErrorIs(t, err, persistence.ErrCapacityExceeded)

		_, err = repo.GetBooking(ctx, "b-3")
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		mine, err := repo.ListBookings(ctx, persistence.BookingFilter{ParticipantID: carol.ID})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "b-2", mine[0].ID)
	})

	t.Run("touching endpoints do not count as overlap", func(t *testing.T) {
		require.NoError(t, repo.CreateBookingWithinCapacity(ctx,
			newBooking("b-4", cart.ID, slot(11, 30), slot(12, 30), alice.ID), scheduler.CartCapacity))
		require.NoError(t, repo.CreateBookingWithinCapacity(ctx,
			newBooking("b-5", cart.ID, slot(9, 0), slot(10, 0), alice.ID), scheduler.CartCapacity))

		count, err := repo.CountOverlapping(ctx, cart.ID, slot(11, 30), slot(12, 0))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("stored bookings never exceed capacity at any instant", func(t *testing.T) {
		all, err := repo.ListBookings(ctx, persistence.BookingFilter{CartID: cart.ID})
		require.NoError(t, err)

		intervals := make([]scheduler.Interval, 0, len(all))
		for _, b := range all {
			intervals = append(intervals, scheduler.Interval{ID: b.ID, Start: b.Start, End: b.End})
		}
		assert.LessOrEqual(t, scheduler.MaxConcurrent(intervals), scheduler.CartCapacity)
	})

	t.Run("unknown cart", func(t *testing.T) {
		err := repo.CreateBookingWithinCapacity(ctx,
			newBooking("b-6", "missing", slot(14, 0), slot(15, 0), alice.ID), scheduler.CartCapacity)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("unknown participant rolls back the booking", func(t *testing.T) {
		err := repo.CreateBookingWithinCapacity(ctx,
			newBooking("b-7", cart.ID, slot(15, 0), slot(16, 0), alice.ID, "ghost"), scheduler.CartCapacity)
		assert.ErrorIs(t, err, persistence.ErrForeignKeyViolation)

		_, err = repo.GetBooking(ctx, "b-7")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("inactive cart", func(t *testing.T) {
		inactive := testfixtures.NewCart(testfixtures.WithCartInactive())
		testfixtures.SeedCarts(t, storage.Carts, inactive)

		err := repo.CreateBookingWithinCapacity(ctx,
			newBooking("b-8", inactive.ID, slot(10, 0), slot(11, 0), alice.ID), scheduler.CartCapacity)
		assert.ErrorIs(t, err, persistence.ErrInactive)
	})
}

func TestBookingRepository_ConcurrentCreatesRespectCapacity(t *testing.T) {
	ctx := context.Background()
	storage := testfixtures.NewSQLiteStorage(t)

	user := testfixtures.NewUser()
	testfixtures.SeedUsers(t, storage.Users, user)
	cart := testfixtures.NewCart()
	testfixtures.SeedCarts(t, storage.Carts, cart)

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
		other    []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := storage.Bookings.CreateBookingWithinCapacity(ctx,
				newBooking(fmt.Sprintf("race-%d", i), cart.ID, slot(10, i), slot(11, i), user.ID), scheduler.CartCapacity)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, persistence.ErrCapacityExceeded):
				rejected++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, scheduler.CartCapacity, created)
	assert.Equal(t, attempts-scheduler.CartCapacity, rejected)

	count, err := storage.Bookings.CountOverlapping(ctx, cart.ID, slot(10, 30), slot(10, 31))
	require.NoError(t, err)
	assert.Equal(t, scheduler.CartCapacity, count)
}

func TestBookingRepository_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	storage := testfixtures.NewSQLiteStorage(t)

	user := testfixtures.NewUser()
	other := testfixtures.NewUser()
	testfixtures.SeedUsers(t, storage.Users, user, other)
	first := testfixtures.NewCart(testfixtures.WithCartName("Alpha"))
	second := testfixtures.NewCart(testfixtures.WithCartName("Beta"))
	testfixtures.SeedCarts(t, storage.Carts, first, second)

	require.NoError(t, storage.Bookings.CreateBookingWithinCapacity(ctx,
		newBooking("l-1", first.ID, slot(8, 0), slot(9, 0), user.ID), scheduler.CartCapacity))
	require.NoError(t, storage.Bookings.CreateBookingWithinCapacity(ctx,
		newBooking("l-2", second.ID, slot(9, 0), slot(10, 0), other.ID), scheduler.CartCapacity))
	require.NoError(t, storage.Bookings.CreateBookingWithinCapacity(ctx,
		newBooking("l-3", first.ID, slot(12, 0), slot(13, 0), user.ID, other.ID), scheduler.CartCapacity))

	t.Run("window filter uses overlap semantics", func(t *testing.T) {
		start, end := slot(8, 30), slot(12, 0)
		got, err := storage.Bookings.ListBookings(ctx, persistence.BookingFilter{Start: &start, End: &end})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "l-1", got[0].ID)
		assert.Equal(t, "l-2", got[1].ID)
	})

	t.Run("counts per cart", func(t *testing.T) {
		counts, err := storage.Bookings.CountOverlappingByCart(ctx, slot(8, 0), slot(23, 0))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{first.ID: 2, second.ID: 1}, counts)
	})

	t.Run("delete removes participants", func(t *testing.T) {
		require.NoError(t, storage.Bookings.DeleteBooking(ctx, "l-3"))

		mine, err := storage.Bookings.ListBookings(ctx, persistence.BookingFilter{ParticipantID: other.ID})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "l-2", mine[0].ID)

		assert.ErrorIs(t, storage.Bookings.DeleteBooking(ctx, "l-3"), persistence.ErrNotFound)
	})

	t.Run("deleting a cart cascades to its bookings", func(t *testing.T) {
		require.NoError(t, storage.Carts.DeleteCart(ctx, first.ID))
		_, err := storage.Bookings.GetBooking(ctx, "l-1")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})
}

func TestBookingRepository_DeletingUserNeverLeavesEmptyBookings(t *testing.T) {
	ctx := context.Background()
	storage := testfixtures.NewSQLiteStorage(t)

	leaving := testfixtures.NewUser()
	staying := testfixtures.NewUser()
	testfixtures.SeedUsers(t, storage.Users, leaving, staying)
	cart := testfixtures.NewCart()
	testfixtures.SeedCarts(t, storage.Carts, cart)

	require.NoError(t, storage.Bookings.CreateBookingWithinCapacity(ctx,
		newBooking("solo", cart.ID, slot(8, 0), slot(9, 0), leaving.ID), scheduler.CartCapacity))
	require.NoError(t, storage.Bookings.CreateBookingWithinCapacity(ctx,
		newBooking("shared", cart.ID, slot(8, 0), slot(9, 0), leaving.ID, staying.ID), scheduler.CartCapacity))

	require.NoError(t, storage.Users.DeleteUser(ctx, leaving.ID))

	_, err := storage.Bookings.GetBooking(ctx, "solo")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	shared, err := storage.Bookings.GetBooking(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, []string{staying.ID}, shared.ParticipantIDs)
}

func TestBookingRepository_ReadsNeverSeePartialParticipants(t *testing.T) {
	ctx := context.Background()
	storage := testfixtures.NewSQLiteStorage(t)

	alice := testfixtures.NewUser(testfixtures.WithUserName("Alice", "Able"))
	bob := testfixtures.NewUser(testfixtures.WithUserName("Bob", "Baker"))
	testfixtures.SeedUsers(t, storage.Users, alice, bob)
	cart := testfixtures.NewCart()
	testfixtures.SeedCarts(t, storage.Carts, cart)

	const readers = 4
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		partial  int
		readErrs []error
		done     = make(chan struct{})
	)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				bookings, err := storage.Bookings.ListBookings(ctx, persistence.BookingFilter{CartID: cart.ID})
				mu.Lock()
				if err != nil {
					readErrs = append(readErrs, err)
				}
				for _, b := range bookings {
					if len(b.ParticipantIDs) != 2 {
						partial++
					}
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < 300; i++ {
		id := fmt.Sprintf("churn-%d", i)
		require.NoError(t, storage.Bookings.CreateBookingWithinCapacity(ctx,
			newBooking(id, cart.ID, slot(10, 0), slot(11, 0), alice.ID, bob.ID), scheduler.CartCapacity))
		require.NoError(t, storage.Bookings.DeleteBooking(ctx, id))
	}
	close(done)
	wg.Wait()

	assert.Empty(t, readErrs)
	assert.Zero(t, partial)
}
