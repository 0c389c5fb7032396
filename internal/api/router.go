// Package api provides HTTP routing and handlers for the admin API.
package api

import (
	"github.com/gorilla/mux"

	"github.com/booking-mirror/backend/internal/api/handlers"
	"github.com/booking-mirror/backend/internal/api/middleware"
	"github.com/booking-mirror/backend/internal/mirror"
	"github.com/booking-mirror/backend/internal/storage"
	"github.com/booking-mirror/backend/internal/websocket"
)

// NewRouter creates and configures the HTTP router. The booking site
// itself is served elsewhere; this surface only triggers syncs and
// reports status.
func NewRouter(
	db *storage.DB,
	store *storage.SyncStore,
	hub *websocket.Hub,
	scheduler *mirror.Scheduler,
	listingID string,
	quotas handlers.QuotaSource,
) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck(db)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(scheduler, store, listingID, quotas, hub)).Methods("GET")
	api.HandleFunc("/sync", handlers.TriggerSync(scheduler)).Methods("POST")
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(hub)).Methods("GET")

	return r
}
