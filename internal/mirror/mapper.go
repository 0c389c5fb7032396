// Package mirror implements the booking-state synchronization engine:
// mapping upstream calendar snapshots into local rows, the incremental
// merge with stale-booking cleanup, and the periodic sync scheduler.
package mirror

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/booking-mirror/backend/internal/pms"
	"github.com/booking-mirror/backend/internal/storage/models"
)

const dateLayout = "2006-01-02"

// MapCalendarDay converts one upstream calendar day to a local row.
// Price and min-nights fall back to the listing's base fields when the
// day carries no override. Days missing required fields are rejected.
func MapCalendarDay(day pms.WireDay, listing *pms.Listing, syncedAt time.Time) (models.CalendarDay, error) {
	if _, err := time.Parse(dateLayout, day.Date); err != nil {
		return models.CalendarDay{}, fmt.Errorf("calendar day has invalid date %q: %w", day.Date, err)
	}

	listingID := day.ListingID
	if listingID == "" {
		listingID = listing.ID
	}
	if listingID == "" {
		return models.CalendarDay{}, fmt.Errorf("calendar day %s has no listing", day.Date)
	}

	price := listing.BasePrice
	if day.Price != nil {
		price = *day.Price
	}

	minNights := listing.MinNights
	if day.MinNights != nil {
		minNights = *day.MinNights
	}
	if minNights < 1 {
		minNights = 1
	}

	blockType, blockRef := resolveBlock(day)

	return models.CalendarDay{
		ListingID:         listingID,
		Date:              day.Date,
		Status:            normalizeStatus(day.Status, blockType),
		Price:             decimal.NewFromFloat(price),
		MinNights:         minNights,
		ClosedToArrival:   day.ClosedToArrival,
		ClosedToDeparture: day.ClosedToDeparture,
		BlockType:         blockType,
		BlockRef:          blockRef,
		LastSyncedAt:      syncedAt,
	}, nil
}

// resolveBlock picks the effective block type and reference from
// whichever indicator field is populated. A reservation wins over an
// owner hold, which wins over maintenance, which wins over a manual
// block.
func resolveBlock(day pms.WireDay) (*string, *string) {
	switch {
	case day.Reservation != nil:
		return ptr(models.BlockTypeReservation), ptr(day.Reservation.ID)
	case day.OwnerHold != nil:
		return ptr(models.BlockTypeOwner), ptr(day.OwnerHold.ID)
	case day.Maintenance != nil:
		return ptr(models.BlockTypeMaintenance), ptr(day.Maintenance.ID)
	case day.ManualBlock != nil:
		return ptr(models.BlockTypeManual), ptr(day.ManualBlock.ID)
	}
	return nil, nil
}

// normalizeStatus maps the upstream status vocabulary onto the local
// one. The block indicators override a stale upstream status field.
func normalizeStatus(status string, blockType *string) string {
	if blockType != nil {
		if *blockType == models.BlockTypeReservation {
			return models.DayStatusBooked
		}
		return models.DayStatusBlocked
	}

	switch status {
	case "available", "":
		return models.DayStatusAvailable
	case "booked", "reserved":
		return models.DayStatusBooked
	default:
		return models.DayStatusBlocked
	}
}

// ExtractReservations collects the reservations embedded in a day
// sequence and deduplicates them by reservation ID. A multi-night stay
// appears once per night upstream; the merge keeps the most recently
// observed copy (last write wins in day order). Malformed records are
// dropped and logged, never fatal.
func ExtractReservations(days []pms.WireDay, listing *pms.Listing, syncedAt time.Time) []models.Reservation {
	byID := make(map[string]models.Reservation)
	for _, day := range days {
		if day.Reservation == nil {
			continue
		}
		res, err := mapReservation(*day.Reservation, listing, syncedAt)
		if err != nil {
			log.Printf("Dropping reservation on %s: %v", day.Date, err)
			continue
		}
		byID[res.ID] = res
	}

	reservations := make([]models.Reservation, 0, len(byID))
	for _, res := range byID {
		reservations = append(reservations, res)
	}
	sort.Slice(reservations, func(i, j int) bool {
		if reservations[i].CheckIn != reservations[j].CheckIn {
			return reservations[i].CheckIn < reservations[j].CheckIn
		}
		return reservations[i].ID < reservations[j].ID
	})

	return reservations
}

// mapReservation converts one wire reservation, rejecting records with
// missing required fields.
func mapReservation(wire pms.WireReservation, listing *pms.Listing, syncedAt time.Time) (models.Reservation, error) {
	if wire.ID == "" {
		return models.Reservation{}, fmt.Errorf("reservation has no ID")
	}
	if wire.Status == "" {
		return models.Reservation{}, fmt.Errorf("reservation %s has no status", wire.ID)
	}
	if _, err := time.Parse(dateLayout, wire.CheckIn); err != nil {
		return models.Reservation{}, fmt.Errorf("reservation %s has invalid check-in %q", wire.ID, wire.CheckIn)
	}
	if _, err := time.Parse(dateLayout, wire.CheckOut); err != nil {
		return models.Reservation{}, fmt.Errorf("reservation %s has invalid check-out %q", wire.ID, wire.CheckOut)
	}

	listingID := wire.ListingID
	if listingID == "" {
		listingID = listing.ID
	}
	if listingID == "" {
		return models.Reservation{}, fmt.Errorf("reservation %s has no listing", wire.ID)
	}

	res := models.Reservation{
		ID:           wire.ID,
		ListingID:    listingID,
		CheckIn:      wire.CheckIn,
		CheckOut:     wire.CheckOut,
		GuestsCount:  wire.GuestsCount,
		Status:       wire.Status,
		Source:       wire.Source,
		Currency:     listing.Currency,
		LastSyncedAt: syncedAt,
	}
	if wire.Guest != nil {
		res.GuestName = wire.Guest.FullName
	}
	if wire.Money != nil {
		res.Fare = decimal.NewFromFloat(wire.Money.Fare)
		res.Payout = decimal.NewFromFloat(wire.Money.Payout)
		res.Taxes = decimal.NewFromFloat(wire.Money.Taxes)
		res.Balance = decimal.NewFromFloat(wire.Money.Balance)
		if wire.Money.Currency != "" {
			res.Currency = wire.Money.Currency
		}
	}

	return res, nil
}

func ptr(s string) *string {
	return &s
}
