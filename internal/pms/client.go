package pms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// reservationFields is the field selection for the reservations
// endpoint; fetching full documents blows the response size budget for
// no benefit.
const reservationFields = "_id listingId checkIn checkOut status source guestsCount guest.fullName money"

// Filter is one predicate of the JSON-encoded filter array the
// reservations endpoint accepts.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// FilterEq matches a field against a single value.
func FilterEq(field string, value any) Filter {
	return Filter{Field: field, Operator: "$eq", Value: value}
}

// FilterIn matches a field against any of the given values.
func FilterIn(field string, values ...string) Filter {
	return Filter{Field: field, Operator: "$in", Value: values}
}

// Client exposes the typed upstream operations the sync engine needs.
// All throttling, retry and credential handling lives in the executor;
// this layer only shapes requests and unwraps response envelopes.
type Client struct {
	exec *Executor
}

// NewClient creates a client with its own token source and executor.
func NewClient(cfg Config) *Client {
	return &Client{exec: NewExecutor(cfg, NewTokenSource(cfg))}
}

// NewClientWithExecutor creates a client over an existing executor, so
// several callers can share one admission-control queue.
func NewClientWithExecutor(exec *Executor) *Client {
	return &Client{exec: exec}
}

// Quotas returns the most recently observed upstream rate-limit state.
func (c *Client) Quotas() map[string]Quota {
	return c.exec.Quotas()
}

// GetListing fetches a single listing.
func (c *Client) GetListing(ctx context.Context, id string) (*Listing, error) {
	query := url.Values{}
	query.Set("fields", "_id title currency timezone basePrice minNights")

	body, err := c.exec.Do(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/listings/" + id,
		Query:  query,
	})
	if err != nil {
		return nil, err
	}

	var listing Listing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decoding listing %s: %w", id, err)
	}

	return &listing, nil
}

// GetCalendar fetches the date-ranged calendar for a listing and
// unwraps the response envelope into a flat day list.
func (c *Client) GetCalendar(ctx context.Context, listingID string, start, end time.Time) ([]WireDay, error) {
	query := url.Values{}
	query.Set("startDate", start.Format("2006-01-02"))
	query.Set("endDate", end.Format("2006-01-02"))

	body, err := c.exec.Do(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/listings/" + listingID + "/calendar",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}

	var envelope calendarEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding calendar for %s: %w", listingID, err)
	}

	return envelope.Data.Days, nil
}

// GetReservations fetches one page of reservations matching the given
// filters.
func (c *Client) GetReservations(ctx context.Context, filters []Filter, limit, skip int) (*ReservationPage, error) {
	encoded, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("encoding reservation filters: %w", err)
	}

	query := url.Values{}
	query.Set("filters", string(encoded))
	query.Set("fields", reservationFields)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("skip", strconv.Itoa(skip))

	body, err := c.exec.Do(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/reservations",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}

	var page ReservationPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decoding reservations page: %w", err)
	}

	return &page, nil
}
