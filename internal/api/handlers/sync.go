package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/booking-mirror/backend/internal/api/middleware"
	"github.com/booking-mirror/backend/internal/mirror"
	"github.com/booking-mirror/backend/internal/pms"
	"github.com/booking-mirror/backend/internal/storage"
)

// QuotaSource exposes the most recently observed upstream rate-limit
// state. *pms.Client implements it.
type QuotaSource interface {
	Quotas() map[string]pms.Quota
}

// TriggerSync returns a handler that runs a sync and reports its
// result. The run happens on the request goroutine; force=true in the
// query bypasses the freshness check.
func TriggerSync(scheduler *mirror.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		force := r.URL.Query().Get("force") == "true"

		result := scheduler.TriggerSync(r.Context(), force)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	Scheduler        mirror.SchedulerStatus `json:"scheduler"`
	CalendarDays     int                    `json:"calendar_days"`
	Reservations     int                    `json:"reservations"`
	UpstreamQuotas   map[string]pms.Quota   `json:"upstream_quotas,omitempty"`
	ConnectedClients int                    `json:"connected_clients"`
}

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

// Status returns a handler that provides scheduler and store status.
func Status(scheduler *mirror.Scheduler, store *storage.SyncStore, listingID string, quotas QuotaSource, clients ClientCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		days, err := store.Days.Count(ctx, listingID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to count calendar days")
			return
		}
		reservations, err := store.Reservations.Count(ctx, listingID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to count reservations")
			return
		}

		response := StatusResponse{
			Scheduler:    scheduler.Status(),
			CalendarDays: days,
			Reservations: reservations,
		}
		if quotas != nil {
			response.UpstreamQuotas = quotas.Quotas()
		}
		if clients != nil {
			response.ConnectedClients = clients.ClientCount()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
