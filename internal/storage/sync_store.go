package storage

import (
	"context"
	"database/sql"

	"github.com/booking-mirror/backend/internal/storage/models"
)

// SyncStore composes the day and reservation repositories behind the
// operations a sync run needs. The merge is all-or-nothing per batch:
// days and reservations from one chunk land in one transaction.
type SyncStore struct {
	db           *DB
	Days         *CalendarDayRepository
	Reservations *ReservationRepository
}

// NewSyncStore creates a sync store over the given database.
func NewSyncStore(db *DB) *SyncStore {
	return &SyncStore{
		db:           db,
		Days:         NewCalendarDayRepository(db),
		Reservations: NewReservationRepository(db),
	}
}

// MergeBatch upserts one chunk's days and reservations atomically.
func (s *SyncStore) MergeBatch(ctx context.Context, days []models.CalendarDay, reservations []models.Reservation) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := s.Days.UpsertBatchTx(ctx, tx, days); err != nil {
			return err
		}
		return s.Reservations.UpsertBatchTx(ctx, tx, reservations)
	})
}

// MaxFutureDate reports local coverage for the freshness check.
func (s *SyncStore) MaxFutureDate(ctx context.Context, listingID, from string) (string, error) {
	return s.Days.MaxFutureDate(ctx, listingID, from)
}

// ReservationIDsByCheckInRange lists stored reservation IDs inside a window.
func (s *SyncStore) ReservationIDsByCheckInRange(ctx context.Context, listingID, start, end string) ([]string, error) {
	return s.Reservations.IDsByCheckInRange(ctx, listingID, start, end)
}

// DeleteReservations removes reservations no longer present upstream.
func (s *SyncStore) DeleteReservations(ctx context.Context, listingID string, ids []string) (int64, error) {
	return s.Reservations.DeleteByIDs(ctx, listingID, ids)
}

// PurgeBefore removes days and finished reservations older than the
// retention cutoff.
func (s *SyncStore) PurgeBefore(ctx context.Context, listingID, cutoff string) (int64, error) {
	days, err := s.Days.DeleteBefore(ctx, listingID, cutoff)
	if err != nil {
		return 0, err
	}
	reservations, err := s.Reservations.DeleteCheckedOutBefore(ctx, listingID, cutoff)
	if err != nil {
		return days, err
	}
	return days + reservations, nil
}
