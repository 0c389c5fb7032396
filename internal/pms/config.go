// Package pms provides the client for the upstream property-management
// API: OAuth credential caching, rate-limited request execution, and
// typed calendar and reservation operations.
package pms

import (
	"os"
	"strconv"
	"time"
)

// Config holds the configuration for upstream API access.
type Config struct {
	// BaseURL is the API base URL
	BaseURL string

	// AuthURL is the OAuth token endpoint
	AuthURL string

	// ClientID and ClientSecret are the pre-shared credentials for the
	// client_credentials exchange
	ClientID     string
	ClientSecret string

	// Scope requested during the credential exchange
	Scope string

	// ListingID is the property this instance mirrors
	ListingID string

	// Timeout for API requests
	Timeout time.Duration

	// RequestsPerSecond is the token-bucket refill rate. Keep it below
	// the upstream's published ceiling to leave headroom.
	RequestsPerSecond int

	// Burst is the token-bucket reservoir capacity
	Burst int

	// MaxInFlight caps concurrently executing requests
	MaxInFlight int
}

// DefaultConfig returns the default configuration, reading from environment variables.
func DefaultConfig() Config {
	return Config{
		BaseURL:           getEnv("PMS_API_URL", "https://api.pms.example.com/v1"),
		AuthURL:           getEnv("PMS_AUTH_URL", "https://auth.pms.example.com/oauth2/token"),
		ClientID:          getEnv("PMS_CLIENT_ID", ""),
		ClientSecret:      getEnv("PMS_CLIENT_SECRET", ""),
		Scope:             getEnv("PMS_SCOPE", "open-api"),
		ListingID:         getEnv("PMS_LISTING_ID", ""),
		Timeout:           30 * time.Second,
		RequestsPerSecond: getEnvInt("PMS_RATE_PER_SECOND", 10),
		Burst:             getEnvInt("PMS_RATE_BURST", 10),
		MaxInFlight:       getEnvInt("PMS_MAX_IN_FLIGHT", 10),
	}
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable value or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
