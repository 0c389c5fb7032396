package pms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthConfig(authURL string) Config {
	cfg := DefaultConfig()
	cfg.AuthURL = authURL
	cfg.ClientID = "client-1"
	cfg.ClientSecret = "secret-1"
	cfg.Scope = "open-api"
	return cfg
}

// noSleep records requested delays without waiting.
func noSleep(recorded *[]time.Duration, mu *sync.Mutex) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		*recorded = append(*recorded, d)
		return nil
	}
}

func tokenHandler(exchanges *int32, expiresIn int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(exchanges, 1)

		if r.FormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   expiresIn,
			"token_type":   "Bearer",
			"scope":        "open-api",
		})
	}
}

func TestToken_CachedUntilRefreshMargin(t *testing.T) {
	var exchanges int32
	server := httptest.NewServer(tokenHandler(&exchanges, 86400))
	defer server.Close()

	ts := NewTokenSource(testAuthConfig(server.URL))

	for i := 0; i < 3; i++ {
		token, err := ts.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&exchanges), "valid token must be served from cache")
}

func TestToken_RefreshesInsideMargin(t *testing.T) {
	var exchanges int32
	// Expires in 60s, inside the 5 minute refresh margin, so every call
	// must exchange again.
	server := httptest.NewServer(tokenHandler(&exchanges, 60))
	defer server.Close()

	ts := NewTokenSource(testAuthConfig(server.URL))

	_, err := ts.Token(context.Background())
	require.NoError(t, err)
	_, err = ts.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&exchanges))
}

func TestToken_SingleFlightRefresh(t *testing.T) {
	var exchanges int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond) // widen the race window
		tokenHandler(&exchanges, 86400)(w, r)
	}))
	defer server.Close()

	ts := NewTokenSource(testAuthConfig(server.URL))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := ts.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&exchanges),
		"concurrent callers must share one in-flight exchange")
}

func TestToken_RetriesOn429WithRetryAfter(t *testing.T) {
	var exchanges int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&exchanges, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-2", "expires_in": 86400})
	}))
	defer server.Close()

	ts := NewTokenSource(testAuthConfig(server.URL))
	var delays []time.Duration
	var mu sync.Mutex
	ts.sleep = noSleep(&delays, &mu)

	token, err := ts.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	require.Len(t, delays, 1)
	// Retry-After: 2 with ±20% jitter
	assert.GreaterOrEqual(t, delays[0], 1600*time.Millisecond)
	assert.LessOrEqual(t, delays[0], 2400*time.Millisecond)
}

func TestToken_GivesUpAfterRetryCap(t *testing.T) {
	var exchanges int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchanges, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ts := NewTokenSource(testAuthConfig(server.URL))
	var delays []time.Duration
	var mu sync.Mutex
	ts.sleep = noSleep(&delays, &mu)

	_, err := ts.Token(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	// 1 initial + 5 retries
	assert.Equal(t, int32(6), atomic.LoadInt32(&exchanges))
}

func TestToken_FailsImmediatelyOnBadStatus(t *testing.T) {
	var exchanges int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchanges, 1)
		http.Error(w, "invalid_client", http.StatusUnauthorized)
	}))
	defer server.Close()

	ts := NewTokenSource(testAuthConfig(server.URL))

	_, err := ts.Token(context.Background())

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&exchanges), "non-429 failures must not be retried")
}
