// Package models contains the domain models for the application.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalendarDay statuses.
const (
	DayStatusAvailable = "available"
	DayStatusBooked    = "booked"
	DayStatusBlocked   = "blocked"
)

// Block types for unavailable days.
const (
	BlockTypeReservation = "reservation"
	BlockTypeOwner       = "owner"
	BlockTypeMaintenance = "maintenance"
	BlockTypeManual      = "manual"
)

// CalendarDay is the locally mirrored availability and pricing for one
// property-local calendar date. Keyed by (ListingID, Date); mutated
// only by the sync merge step.
type CalendarDay struct {
	ListingID         string          `json:"listing_id"`
	Date              string          `json:"date"` // YYYY-MM-DD
	Status            string          `json:"status"`
	Price             decimal.Decimal `json:"price"`
	MinNights         int             `json:"min_nights"`
	ClosedToArrival   bool            `json:"closed_to_arrival"`
	ClosedToDeparture bool            `json:"closed_to_departure"`
	BlockType         *string         `json:"block_type,omitempty"`
	BlockRef          *string         `json:"block_ref,omitempty"`
	LastSyncedAt      time.Time       `json:"last_synced_at"`
}

// Reservation is the locally mirrored booking record. IDs are assigned
// upstream and globally unique; a multi-night stay collapses to one row
// no matter how many calendar days it spans.
type Reservation struct {
	ID           string          `json:"id"`
	ListingID    string          `json:"listing_id"`
	CheckIn      string          `json:"check_in"`  // YYYY-MM-DD
	CheckOut     string          `json:"check_out"` // YYYY-MM-DD
	GuestName    string          `json:"guest_name"`
	GuestsCount  int             `json:"guests_count"`
	Status       string          `json:"status"`
	Source       string          `json:"source"`
	Fare         decimal.Decimal `json:"fare"`
	Payout       decimal.Decimal `json:"payout"`
	Taxes        decimal.Decimal `json:"taxes"`
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
	LastSyncedAt time.Time       `json:"last_synced_at"`
}

// SyncRunResult reports one sync run up the call chain. It is
// observational only and never stored as authoritative state.
type SyncRunResult struct {
	RunID                string    `json:"run_id"`
	ListingID            string    `json:"listing_id"`
	Success              bool      `json:"success"`
	PartialSuccess       bool      `json:"partial_success"`
	Skipped              bool      `json:"skipped"`
	DaysUpserted         int       `json:"days_upserted"`
	ReservationsUpserted int       `json:"reservations_upserted"`
	ReservationsDeleted  int       `json:"reservations_deleted"`
	FailedChunks         int       `json:"failed_chunks"`
	Error                string    `json:"error,omitempty"`
	StartedAt            time.Time `json:"started_at"`
	DurationMs           int64     `json:"duration_ms"`
}
