package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/booking-mirror/backend/internal/storage/models"
)

// CalendarDayRepository provides data access for mirrored calendar days.
type CalendarDayRepository struct {
	BaseRepository
}

// NewCalendarDayRepository creates a new calendar day repository.
func NewCalendarDayRepository(db *DB) *CalendarDayRepository {
	return &CalendarDayRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const calendarDayColumns = `listing_id, date, status, price, min_nights,
	closed_to_arrival, closed_to_departure, block_type, block_ref, last_synced_at`

// UpsertBatch writes the given days in a single transaction.
func (r *CalendarDayRepository) UpsertBatch(ctx context.Context, days []models.CalendarDay) error {
	return r.DB().Transaction(ctx, func(tx *sql.Tx) error {
		return r.UpsertBatchTx(ctx, tx, days)
	})
}

// UpsertBatchTx writes the given days using the caller's transaction.
func (r *CalendarDayRepository) UpsertBatchTx(ctx context.Context, q Queryable, days []models.CalendarDay) error {
	for _, day := range days {
		_, err := q.ExecContext(ctx, `
			INSERT INTO calendar_days (`+calendarDayColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(listing_id, date) DO UPDATE SET
				status = excluded.status,
				price = excluded.price,
				min_nights = excluded.min_nights,
				closed_to_arrival = excluded.closed_to_arrival,
				closed_to_departure = excluded.closed_to_departure,
				block_type = excluded.block_type,
				block_ref = excluded.block_ref,
				last_synced_at = excluded.last_synced_at
		`,
			day.ListingID, day.Date, day.Status, day.Price.String(), day.MinNights,
			day.ClosedToArrival, day.ClosedToDeparture, day.BlockType, day.BlockRef,
			day.LastSyncedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting calendar day %s: %w", day.Date, err)
		}
	}
	return nil
}

// ListRange returns the days for a listing with start <= date <= end,
// in date order.
func (r *CalendarDayRepository) ListRange(ctx context.Context, listingID, start, end string) ([]models.CalendarDay, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+calendarDayColumns+`
		FROM calendar_days
		WHERE listing_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, listingID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying calendar days: %w", err)
	}
	defer rows.Close()

	var days []models.CalendarDay
	for rows.Next() {
		var day models.CalendarDay
		if err := rows.Scan(
			&day.ListingID, &day.Date, &day.Status, &day.Price, &day.MinNights,
			&day.ClosedToArrival, &day.ClosedToDeparture, &day.BlockType, &day.BlockRef,
			&day.LastSyncedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning calendar day: %w", err)
		}
		days = append(days, day)
	}

	return days, rows.Err()
}

// MaxFutureDate returns the latest stored date on or after from, or ""
// when the listing has no such rows. The sync freshness check reads
// coverage off this value.
func (r *CalendarDayRepository) MaxFutureDate(ctx context.Context, listingID, from string) (string, error) {
	var max sql.NullString
	err := r.DB().QueryRowContext(ctx, `
		SELECT MAX(date) FROM calendar_days WHERE listing_id = ? AND date >= ?
	`, listingID, from).Scan(&max)
	if err != nil {
		return "", fmt.Errorf("querying max calendar date: %w", err)
	}
	if !max.Valid {
		return "", nil
	}
	return max.String, nil
}

// DeleteBefore removes days older than the cutoff date, bounding
// storage growth.
func (r *CalendarDayRepository) DeleteBefore(ctx context.Context, listingID, cutoff string) (int64, error) {
	result, err := r.DB().ExecContext(ctx, `
		DELETE FROM calendar_days WHERE listing_id = ? AND date < ?
	`, listingID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging calendar days: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Count returns the number of stored days for a listing.
func (r *CalendarDayRepository) Count(ctx context.Context, listingID string) (int, error) {
	var count int
	err := r.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM calendar_days WHERE listing_id = ?", listingID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting calendar days: %w", err)
	}
	return count, nil
}
