// Package main is the entry point for the booking mirror server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/booking-mirror/backend/internal/api"
	"github.com/booking-mirror/backend/internal/mirror"
	"github.com/booking-mirror/backend/internal/pms"
	"github.com/booking-mirror/backend/internal/storage"
	"github.com/booking-mirror/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	addr := flag.String("addr", ":8090", "HTTP server address")
	dataDir := flag.String("data", "/data", "Data directory for SQLite database")
	syncInterval := flag.Duration("sync-interval", 6*time.Hour, "Scheduled sync interval (freshness TTL)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(*addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	log.Printf("Starting booking mirror (version: %s)...", version)

	cfg := pms.DefaultConfig()
	if cfg.ListingID == "" {
		log.Fatal("PMS_LISTING_ID is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		log.Fatal("PMS_CLIENT_ID and PMS_CLIENT_SECRET are required")
	}

	// Initialize database
	db, err := storage.NewDB(*dataDir + "/booking-mirror.db")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	// Upstream client and sync engine
	client := pms.NewClient(cfg)
	store := storage.NewSyncStore(db)
	service := mirror.NewService(client, store, mirror.Options{ListingID: cfg.ListingID})

	// WebSocket hub for sync event fan-out
	hub := websocket.NewHub()
	broadcaster := websocket.NewEventBroadcaster(hub)

	scheduler := mirror.NewScheduler(service, broadcaster, *syncInterval)
	scheduler.Start()

	router := api.NewRouter(db, store, hub, scheduler, cfg.ListingID, client)

	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", *addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}
