package pms

// Listing is the upstream listing resource. Only the fields the sync
// engine needs are selected; basePrice and minNights supply per-day
// defaults when a calendar day carries no override.
type Listing struct {
	ID        string  `json:"_id"`
	Title     string  `json:"title"`
	Currency  string  `json:"currency"`
	Timezone  string  `json:"timezone"`
	BasePrice float64 `json:"basePrice"`
	MinNights int     `json:"minNights"`
}

// WireDay is one day of the upstream calendar response. At most one of
// the block-indicator fields is populated; a day with none of them set
// is open for booking.
type WireDay struct {
	Date              string   `json:"date"`
	ListingID         string   `json:"listingId"`
	Status            string   `json:"status"`
	Price             *float64 `json:"price,omitempty"`
	MinNights         *int     `json:"minNights,omitempty"`
	ClosedToArrival   bool     `json:"cta"`
	ClosedToDeparture bool     `json:"ctd"`

	Reservation *WireReservation `json:"reservation,omitempty"`
	OwnerHold   *WireBlockRef    `json:"ownerReservation,omitempty"`
	Maintenance *WireBlockRef    `json:"maintenance,omitempty"`
	ManualBlock *WireBlockRef    `json:"manualBlock,omitempty"`
}

// WireBlockRef identifies a non-reservation calendar block.
type WireBlockRef struct {
	ID   string `json:"_id"`
	Note string `json:"note,omitempty"`
}

// WireReservation is a reservation as embedded in calendar days and
// returned by the reservations endpoint. A multi-night reservation is
// attached to every day it spans.
type WireReservation struct {
	ID          string     `json:"_id"`
	ListingID   string     `json:"listingId"`
	CheckIn     string     `json:"checkIn"`
	CheckOut    string     `json:"checkOut"`
	Status      string     `json:"status"`
	Source      string     `json:"source"`
	GuestsCount int        `json:"guestsCount"`
	Guest       *WireGuest `json:"guest,omitempty"`
	Money       *WireMoney `json:"money,omitempty"`
}

// WireGuest carries the guest fields the mirror keeps.
type WireGuest struct {
	FullName string `json:"fullName"`
}

// WireMoney is the money block attached to a reservation.
type WireMoney struct {
	Fare     float64 `json:"fareAccommodation"`
	Payout   float64 `json:"payout"`
	Taxes    float64 `json:"totalTaxes"`
	Balance  float64 `json:"balanceDue"`
	Currency string  `json:"currency"`
}

// calendarEnvelope wraps the calendar response; callers only ever see
// the flat day list.
type calendarEnvelope struct {
	Status string `json:"status"`
	Data   struct {
		Days []WireDay `json:"days"`
	} `json:"data"`
}

// ReservationPage is one page of the reservations endpoint.
type ReservationPage struct {
	Results []WireReservation `json:"results"`
	Count   int               `json:"count"`
	Limit   int               `json:"limit"`
	Skip    int               `json:"skip"`
}
