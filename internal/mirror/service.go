package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/booking-mirror/backend/internal/pms"
	"github.com/booking-mirror/backend/internal/storage"
	"github.com/booking-mirror/backend/internal/storage/models"
)

// UpstreamClient is the slice of the upstream API a sync run needs.
type UpstreamClient interface {
	GetListing(ctx context.Context, id string) (*pms.Listing, error)
	GetCalendar(ctx context.Context, listingID string, start, end time.Time) ([]pms.WireDay, error)
	GetReservations(ctx context.Context, filters []pms.Filter, limit, skip int) (*pms.ReservationPage, error)
}

// Store is the local persistence a sync run needs. *storage.SyncStore
// implements it.
type Store interface {
	MergeBatch(ctx context.Context, days []models.CalendarDay, reservations []models.Reservation) error
	MaxFutureDate(ctx context.Context, listingID, from string) (string, error)
	ReservationIDsByCheckInRange(ctx context.Context, listingID, start, end string) ([]string, error)
	DeleteReservations(ctx context.Context, listingID string, ids []string) (int64, error)
	PurgeBefore(ctx context.Context, listingID, cutoff string) (int64, error)
}

// Options tune a sync run. Zero values take the defaults below.
type Options struct {
	ListingID string

	// Fetch window around today.
	PastMonths   int
	FutureMonths int

	// FreshnessMonths is the forward coverage that lets a non-forced
	// run skip fetching entirely.
	FreshnessMonths int

	// RetentionMonths bounds how far back rows are kept.
	RetentionMonths int

	// ChunkMonths splits the window into sequential sub-range requests;
	// 0 keeps the default, negative values fetch the window in one shot.
	ChunkMonths int

	// ChunkDelay smooths burst load between chunk requests.
	ChunkDelay time.Duration

	// PageSize for the reservation detail pass.
	PageSize int
}

func (o Options) withDefaults() Options {
	if o.PastMonths == 0 {
		o.PastMonths = 12
	}
	if o.FutureMonths == 0 {
		o.FutureMonths = 12
	}
	if o.FreshnessMonths == 0 {
		o.FreshnessMonths = 11
	}
	if o.RetentionMonths == 0 {
		o.RetentionMonths = 13
	}
	if o.ChunkMonths == 0 {
		o.ChunkMonths = 3
	}
	if o.ChunkDelay == 0 {
		o.ChunkDelay = time.Second
	}
	if o.PageSize == 0 {
		o.PageSize = 100
	}
	return o
}

// Service drives one listing's sync runs: freshness check, chunked
// fetch, merge, stale purge, retention purge.
type Service struct {
	client UpstreamClient
	store  Store
	opts   Options

	// runMu serializes runs; a manual trigger never interleaves with a
	// scheduled one.
	runMu sync.Mutex

	// injected in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a sync service.
func NewService(client UpstreamClient, store Store, opts Options) *Service {
	return &Service{
		client: client,
		store:  store,
		opts:   opts.withDefaults(),
		now:    time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

type chunk struct {
	start time.Time
	end   time.Time // inclusive
}

// Sync performs one run and reports the result. Unless forced, a run
// whose local coverage already reaches the freshness horizon is
// skipped without touching the upstream. Per-chunk failures accumulate
// into a partial result; only a failure before any data was fetched
// fails the whole run.
func (s *Service) Sync(ctx context.Context, force bool) *models.SyncRunResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := s.now().UTC()
	result := &models.SyncRunResult{
		RunID:     storage.GenerateID(),
		ListingID: s.opts.ListingID,
		StartedAt: started,
	}
	defer func() {
		result.DurationMs = s.now().UTC().Sub(started).Milliseconds()
	}()

	today := started.Truncate(24 * time.Hour)

	if !force && s.isFresh(ctx, today) {
		log.Printf("Sync skipped for listing %s: local coverage is fresh", s.opts.ListingID)
		result.Skipped = true
		result.Success = true
		return result
	}

	listing, err := s.client.GetListing(ctx, s.opts.ListingID)
	if err != nil {
		log.Printf("Sync failed for listing %s before fetching any data: %v", s.opts.ListingID, err)
		result.Error = summarize(err)
		s.purgeRetention(ctx, today)
		return result
	}

	windowStart := today.AddDate(0, -s.opts.PastMonths, 0)
	windowEnd := today.AddDate(0, s.opts.FutureMonths, 0)
	chunks := s.splitWindow(windowStart, windowEnd)

	fetchedIDs := make(map[string]struct{})
	var merged []chunk
	aborted := false

	for i, ch := range chunks {
		if i > 0 {
			if err := s.sleep(ctx, s.opts.ChunkDelay); err != nil {
				// Cancellation mid-run leaves the rest of the window
				// unfetched; count those chunks as failed so the run
				// cannot classify as a full success.
				result.Error = summarize(err)
				result.FailedChunks += len(chunks) - i
				break
			}
		}

		days, err := s.client.GetCalendar(ctx, s.opts.ListingID, ch.start, ch.end)
		if err != nil {
			log.Printf("Sync chunk %s..%s failed for listing %s: %v",
				ch.start.Format(dateLayout), ch.end.Format(dateLayout), s.opts.ListingID, err)
			result.FailedChunks++

			// An auth failure on the first chunk means no credential;
			// no later chunk can do better.
			var authErr *pms.AuthError
			if i == 0 && errors.As(err, &authErr) {
				result.Error = summarize(err)
				aborted = true
				break
			}
			continue
		}

		mappedDays := make([]models.CalendarDay, 0, len(days))
		for _, day := range days {
			mapped, err := MapCalendarDay(day, listing, started)
			if err != nil {
				log.Printf("Dropping calendar day for listing %s: %v", s.opts.ListingID, err)
				continue
			}
			mappedDays = append(mappedDays, mapped)
		}
		reservations := ExtractReservations(days, listing, started)

		if err := s.store.MergeBatch(ctx, mappedDays, reservations); err != nil {
			log.Printf("Sync merge %s..%s failed for listing %s: %v",
				ch.start.Format(dateLayout), ch.end.Format(dateLayout), s.opts.ListingID, err)
			result.FailedChunks++
			continue
		}

		for _, res := range reservations {
			fetchedIDs[res.ID] = struct{}{}
		}
		result.DaysUpserted += len(mappedDays)
		result.ReservationsUpserted += len(reservations)
		merged = append(merged, ch)
	}

	if !aborted && len(merged) > 0 {
		if err := s.enrichReservations(ctx, listing, fetchedIDs, started); err != nil {
			log.Printf("Reservation detail pass failed for listing %s: %v", s.opts.ListingID, err)
		}
		result.ReservationsDeleted = s.purgeStale(ctx, merged, fetchedIDs)
	}

	s.purgeRetention(ctx, today)

	switch {
	case aborted || len(merged) == 0:
		result.Success = false
		if result.Error == "" {
			result.Error = "all calendar chunks failed"
		}
	case result.FailedChunks > 0:
		result.Success = false
		result.PartialSuccess = true
		if result.Error == "" {
			result.Error = fmt.Sprintf("%d of %d chunks failed", result.FailedChunks, len(chunks))
		}
	default:
		result.Success = true
	}

	log.Printf("Sync finished for listing %s: success=%t partial=%t days=%d reservations=%d deleted=%d",
		s.opts.ListingID, result.Success, result.PartialSuccess,
		result.DaysUpserted, result.ReservationsUpserted, result.ReservationsDeleted)

	return result
}

// isFresh reports whether stored forward coverage reaches the
// freshness horizon. Coverage is read off the maximum future date
// present, so a run that merged through the horizon keeps later runs
// cheap until the TTL elapses.
func (s *Service) isFresh(ctx context.Context, today time.Time) bool {
	maxDate, err := s.store.MaxFutureDate(ctx, s.opts.ListingID, today.Format(dateLayout))
	if err != nil {
		log.Printf("Freshness check failed for listing %s: %v", s.opts.ListingID, err)
		return false
	}
	if maxDate == "" {
		return false
	}

	horizon := today.AddDate(0, s.opts.FreshnessMonths, 0).Format(dateLayout)
	return maxDate >= horizon
}

// splitWindow cuts [start, end) into chunk-sized inclusive date ranges.
// A non-positive chunk size yields the whole window as one request.
func (s *Service) splitWindow(start, end time.Time) []chunk {
	if s.opts.ChunkMonths < 0 {
		return []chunk{{start: start, end: end.AddDate(0, 0, -1)}}
	}

	var chunks []chunk
	for cursor := start; cursor.Before(end); {
		next := cursor.AddDate(0, s.opts.ChunkMonths, 0)
		if next.After(end) {
			next = end
		}
		chunks = append(chunks, chunk{start: cursor, end: next.AddDate(0, 0, -1)})
		cursor = next
	}
	return chunks
}

// purgeStale deletes reservations recorded inside successfully merged
// windows whose IDs the upstream no longer returns. The upstream
// calendar simply omits cancelled and declined bookings, so absence is
// the only removal signal. Windows whose fetch failed are left alone.
func (s *Service) purgeStale(ctx context.Context, merged []chunk, fetchedIDs map[string]struct{}) int {
	deleted := 0
	for _, ch := range merged {
		ids, err := s.store.ReservationIDsByCheckInRange(ctx, s.opts.ListingID,
			ch.start.Format(dateLayout), ch.end.Format(dateLayout))
		if err != nil {
			log.Printf("Stale purge listing failed for %s: %v", s.opts.ListingID, err)
			continue
		}

		var stale []string
		for _, id := range ids {
			if _, ok := fetchedIDs[id]; !ok {
				stale = append(stale, id)
			}
		}
		if len(stale) == 0 {
			continue
		}

		n, err := s.store.DeleteReservations(ctx, s.opts.ListingID, stale)
		if err != nil {
			log.Printf("Stale purge delete failed for %s: %v", s.opts.ListingID, err)
			continue
		}
		deleted += int(n)
	}
	return deleted
}

// enrichReservations pages through the reservations endpoint and
// re-upserts full records for the bookings seen in this run. The
// calendar embeds trimmed reservation objects; the detail endpoint
// carries the complete money block.
func (s *Service) enrichReservations(ctx context.Context, listing *pms.Listing, fetchedIDs map[string]struct{}, syncedAt time.Time) error {
	if len(fetchedIDs) == 0 {
		return nil
	}

	filters := []pms.Filter{
		pms.FilterEq("listingId", s.opts.ListingID),
		pms.FilterIn("status", "confirmed", "checked_in", "checked_out"),
	}

	for skip := 0; ; {
		page, err := s.client.GetReservations(ctx, filters, s.opts.PageSize, skip)
		if err != nil {
			return err
		}

		var batch []models.Reservation
		for _, wire := range page.Results {
			if _, ok := fetchedIDs[wire.ID]; !ok {
				continue
			}
			res, err := mapReservation(wire, listing, syncedAt)
			if err != nil {
				log.Printf("Dropping reservation detail: %v", err)
				continue
			}
			batch = append(batch, res)
		}
		if len(batch) > 0 {
			if err := s.store.MergeBatch(ctx, nil, batch); err != nil {
				return err
			}
		}

		skip += len(page.Results)
		if len(page.Results) == 0 || skip >= page.Count {
			return nil
		}
	}
}

// PurgeRetention deletes rows older than the retention boundary. The
// scheduler also calls this nightly so storage stays bounded even when
// every sync fails.
func (s *Service) PurgeRetention(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, -s.opts.RetentionMonths, 0).Format(dateLayout)
	return s.store.PurgeBefore(ctx, s.opts.ListingID, cutoff)
}

func (s *Service) purgeRetention(ctx context.Context, today time.Time) {
	cutoff := today.AddDate(0, -s.opts.RetentionMonths, 0).Format(dateLayout)
	if _, err := s.store.PurgeBefore(ctx, s.opts.ListingID, cutoff); err != nil {
		log.Printf("Retention purge failed for listing %s: %v", s.opts.ListingID, err)
	}
}

// summarize turns an upstream error into a message safe to hand to API
// consumers: no raw upstream bodies.
func summarize(err error) string {
	var authErr *pms.AuthError
	if errors.As(err, &authErr) {
		if authErr.Status != 0 {
			return fmt.Sprintf("authentication failed (status %d)", authErr.Status)
		}
		return "authentication failed"
	}
	var rateErr *pms.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Sprintf("rate limit exceeded after %d attempts", rateErr.Attempts)
	}
	var netErr *pms.NetworkError
	if errors.As(err, &netErr) {
		return fmt.Sprintf("network failure after %d attempts", netErr.Attempts)
	}
	var upErr *pms.UpstreamError
	if errors.As(err, &upErr) {
		return fmt.Sprintf("upstream error (status %d)", upErr.Status)
	}
	return err.Error()
}
