package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booking-mirror/backend/internal/storage/models"
)

func newTestStore(t *testing.T) *SyncStore {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db))
	return NewSyncStore(db)
}

func strPtr(s string) *string { return &s }

func testDay(date string, price string) models.CalendarDay {
	return models.CalendarDay{
		ListingID:    "listing-1",
		Date:         date,
		Status:       models.DayStatusAvailable,
		Price:        decimal.RequireFromString(price),
		MinNights:    2,
		LastSyncedAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}
}

func testReservation(id, checkIn, checkOut string) models.Reservation {
	return models.Reservation{
		ID:           id,
		ListingID:    "listing-1",
		CheckIn:      checkIn,
		CheckOut:     checkOut,
		GuestName:    "Ada Lovelace",
		GuestsCount:  2,
		Status:       "confirmed",
		Source:       "airbnb",
		Fare:         decimal.RequireFromString("300"),
		Payout:       decimal.RequireFromString("270.50"),
		Taxes:        decimal.RequireFromString("24"),
		Balance:      decimal.Zero,
		Currency:     "USD",
		LastSyncedAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}
}

func TestMergeBatch_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	days := []models.CalendarDay{
		testDay("2026-09-01", "150"),
		testDay("2026-09-02", "225.50"),
	}
	days[1].Status = models.DayStatusBooked
	days[1].BlockType = strPtr(models.BlockTypeReservation)
	days[1].BlockRef = strPtr("res-1")

	reservations := []models.Reservation{testReservation("res-1", "2026-09-02", "2026-09-04")}

	require.NoError(t, store.MergeBatch(ctx, days, reservations))

	got, err := store.Days.ListRange(ctx, "listing-1", "2026-09-01", "2026-09-30")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-09-01", got[0].Date)
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("150")))
	assert.Nil(t, got[0].BlockType)
	assert.True(t, got[1].Price.Equal(decimal.RequireFromString("225.50")))
	require.NotNil(t, got[1].BlockType)
	assert.Equal(t, models.BlockTypeReservation, *got[1].BlockType)
	require.NotNil(t, got[1].BlockRef)
	assert.Equal(t, "res-1", *got[1].BlockRef)

	res, err := store.Reservations.GetByID(ctx, "res-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Ada Lovelace", res.GuestName)
	assert.True(t, res.Payout.Equal(decimal.RequireFromString("270.50")), "money must survive storage exactly")
	assert.True(t, res.Balance.Equal(decimal.Zero))
}

func TestMergeBatch_UpsertOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MergeBatch(ctx,
		[]models.CalendarDay{testDay("2026-09-01", "150")},
		[]models.Reservation{testReservation("res-1", "2026-09-01", "2026-09-03")}))

	updatedDay := testDay("2026-09-01", "175")
	updatedDay.Status = models.DayStatusBlocked
	updatedRes := testReservation("res-1", "2026-09-01", "2026-09-03")
	updatedRes.Status = "checked_in"

	require.NoError(t, store.MergeBatch(ctx,
		[]models.CalendarDay{updatedDay},
		[]models.Reservation{updatedRes}))

	count, err := store.Days.Count(ctx, "listing-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-merging the same day must not duplicate rows")

	got, err := store.Days.ListRange(ctx, "listing-1", "2026-09-01", "2026-09-01")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.DayStatusBlocked, got[0].Status)
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("175")))

	res, err := store.Reservations.GetByID(ctx, "res-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "checked_in", res.Status)
}

func TestMaxFutureDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	max, err := store.MaxFutureDate(ctx, "listing-1", "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, "", max, "empty mirror has no coverage")

	require.NoError(t, store.MergeBatch(ctx, []models.CalendarDay{
		testDay("2026-01-15", "150"), // in the past relative to from
		testDay("2026-09-01", "150"),
		testDay("2027-06-30", "150"),
	}, nil))

	max, err = store.MaxFutureDate(ctx, "listing-1", "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, "2027-06-30", max)

	max, err = store.MaxFutureDate(ctx, "other-listing", "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, "", max)
}

func TestReservationIDsByCheckInRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MergeBatch(ctx, nil, []models.Reservation{
		testReservation("res-before", "2026-08-15", "2026-08-18"),
		testReservation("res-start", "2026-09-01", "2026-09-03"),
		testReservation("res-end", "2026-11-30", "2026-12-02"),
		testReservation("res-after", "2026-12-01", "2026-12-05"),
	}))

	ids, err := store.ReservationIDsByCheckInRange(ctx, "listing-1", "2026-09-01", "2026-11-30")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"res-start", "res-end"}, ids, "range bounds are inclusive")
}

func TestDeleteReservations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MergeBatch(ctx, nil, []models.Reservation{
		testReservation("res-1", "2026-09-01", "2026-09-03"),
		testReservation("res-2", "2026-09-05", "2026-09-08"),
	}))

	n, err := store.DeleteReservations(ctx, "listing-1", []string{"res-1", "res-missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err := store.Reservations.GetByID(ctx, "res-1")
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = store.Reservations.GetByID(ctx, "res-2")
	require.NoError(t, err)
	assert.NotNil(t, res)

	n, err = store.DeleteReservations(ctx, "listing-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDeleteReservations_ScopedToListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	other := testReservation("res-other", "2026-09-01", "2026-09-03")
	other.ListingID = "listing-2"
	require.NoError(t, store.MergeBatch(ctx, nil, []models.Reservation{other}))

	n, err := store.DeleteReservations(ctx, "listing-1", []string{"res-other"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "deletes must not cross listings")
}

func TestPurgeBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MergeBatch(ctx,
		[]models.CalendarDay{
			testDay("2025-06-01", "150"),
			testDay("2025-07-28", "150"),
			testDay("2025-07-29", "150"),
			testDay("2026-09-01", "150"),
		},
		[]models.Reservation{
			testReservation("res-old", "2025-06-01", "2025-06-05"),
			testReservation("res-straddling", "2025-07-27", "2025-07-29"),
			testReservation("res-current", "2026-09-01", "2026-09-03"),
		}))

	n, err := store.PurgeBefore(ctx, "listing-1", "2025-07-29")
	require.NoError(t, err)
	// 2 days plus res-old; res-straddling checks out on the cutoff and stays.
	assert.Equal(t, int64(3), n)

	days, err := store.Days.Count(ctx, "listing-1")
	require.NoError(t, err)
	assert.Equal(t, 2, days)

	res, err := store.Reservations.GetByID(ctx, "res-straddling")
	require.NoError(t, err)
	assert.NotNil(t, res, "a stay ending on the cutoff is kept")

	res, err = store.Reservations.GetByID(ctx, "res-old")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	days, err := store.Days.Count(ctx, "listing-1")
	require.NoError(t, err)
	assert.Equal(t, 0, days)

	require.NoError(t, store.MergeBatch(ctx,
		[]models.CalendarDay{testDay("2026-09-01", "150"), testDay("2026-09-02", "150")},
		[]models.Reservation{testReservation("res-1", "2026-09-01", "2026-09-03")}))

	days, err = store.Days.Count(ctx, "listing-1")
	require.NoError(t, err)
	assert.Equal(t, 2, days)

	reservations, err := store.Reservations.Count(ctx, "listing-1")
	require.NoError(t, err)
	assert.Equal(t, 1, reservations)
}
