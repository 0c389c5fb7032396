package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/booking-mirror/backend/internal/storage/models"
)

// ReservationRepository provides data access for mirrored reservations.
type ReservationRepository struct {
	BaseRepository
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(db *DB) *ReservationRepository {
	return &ReservationRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const reservationColumns = `id, listing_id, check_in, check_out, guest_name,
	guests_count, status, source, fare, payout, taxes, balance, currency, last_synced_at`

// UpsertBatch writes the given reservations in a single transaction.
func (r *ReservationRepository) UpsertBatch(ctx context.Context, reservations []models.Reservation) error {
	return r.DB().Transaction(ctx, func(tx *sql.Tx) error {
		return r.UpsertBatchTx(ctx, tx, reservations)
	})
}

// UpsertBatchTx writes the given reservations using the caller's transaction.
func (r *ReservationRepository) UpsertBatchTx(ctx context.Context, q Queryable, reservations []models.Reservation) error {
	for _, res := range reservations {
		_, err := q.ExecContext(ctx, `
			INSERT INTO reservations (`+reservationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				listing_id = excluded.listing_id,
				check_in = excluded.check_in,
				check_out = excluded.check_out,
				guest_name = excluded.guest_name,
				guests_count = excluded.guests_count,
				status = excluded.status,
				source = excluded.source,
				fare = excluded.fare,
				payout = excluded.payout,
				taxes = excluded.taxes,
				balance = excluded.balance,
				currency = excluded.currency,
				last_synced_at = excluded.last_synced_at
		`,
			res.ID, res.ListingID, res.CheckIn, res.CheckOut, res.GuestName,
			res.GuestsCount, res.Status, res.Source, res.Fare.String(), res.Payout.String(),
			res.Taxes.String(), res.Balance.String(), res.Currency, res.LastSyncedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting reservation %s: %w", res.ID, err)
		}
	}
	return nil
}

// GetByID returns a reservation, or nil when it is not stored.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	res := &models.Reservation{}
	err := r.DB().QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE id = ?
	`, id).Scan(
		&res.ID, &res.ListingID, &res.CheckIn, &res.CheckOut, &res.GuestName,
		&res.GuestsCount, &res.Status, &res.Source, &res.Fare, &res.Payout,
		&res.Taxes, &res.Balance, &res.Currency, &res.LastSyncedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying reservation: %w", err)
	}
	return res, nil
}

// IDsByCheckInRange returns the IDs of stored reservations whose
// check-in falls inside [start, end]. The sync purge step diffs these
// against the freshly fetched set.
func (r *ReservationRepository) IDsByCheckInRange(ctx context.Context, listingID, start, end string) ([]string, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id FROM reservations
		WHERE listing_id = ? AND check_in >= ? AND check_in <= ?
	`, listingID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying reservation IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning reservation ID: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DeleteByIDs removes the given reservations. Used when the upstream
// stops returning a booking (cancellation or decline).
func (r *ReservationRepository) DeleteByIDs(ctx context.Context, listingID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	args = append(args, listingID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := r.DB().ExecContext(ctx,
		"DELETE FROM reservations WHERE listing_id = ? AND id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("deleting reservations: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// DeleteCheckedOutBefore removes reservations whose stay ended before
// the cutoff date, bounding storage growth.
func (r *ReservationRepository) DeleteCheckedOutBefore(ctx context.Context, listingID, cutoff string) (int64, error) {
	result, err := r.DB().ExecContext(ctx, `
		DELETE FROM reservations WHERE listing_id = ? AND check_out < ?
	`, listingID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging reservations: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Count returns the number of stored reservations for a listing.
func (r *ReservationRepository) Count(ctx context.Context, listingID string) (int, error) {
	var count int
	err := r.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reservations WHERE listing_id = ?", listingID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting reservations: %w", err)
	}
	return count, nil
}
