package pms

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// refreshMargin is how long before expiry a cached token is considered
// stale. The upstream issues 24h tokens; refreshing early keeps a run
// from starting with a token that dies mid-flight.
const refreshMargin = 5 * time.Minute

// authMaxRetries caps 429/network retries during the credential
// exchange. The upstream enforces a strict per-day issuance quota, so
// hammering the token endpoint is worse than failing the run.
const authMaxRetries = 5

// tokenResponse is the wire shape of a successful credential exchange.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// TokenSource holds the single cached bearer credential and refreshes
// it on demand. The mutex is held for the whole refresh, so concurrent
// callers wait on one in-flight exchange instead of issuing their own.
type TokenSource struct {
	cfg        Config
	httpClient *http.Client
	policy     RetryPolicy

	// injected in tests
	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewTokenSource creates a token source for the given configuration.
func NewTokenSource(cfg Config) *TokenSource {
	return &TokenSource{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		policy: RetryPolicy{
			MaxRetries: authMaxRetries,
			BaseDelay:  2 * time.Second,
			JitterFrac: 0.2,
		},
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Token returns a valid bearer token, exchanging credentials with the
// authorization endpoint when the cached one is missing or inside the
// refresh margin.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.accessToken != "" && ts.now().Before(ts.expiresAt.Add(-refreshMargin)) {
		return ts.accessToken, nil
	}

	for attempt := 1; ; attempt++ {
		token, sig, err := ts.exchange(ctx)
		if err != nil {
			return "", err
		}
		if sig == nil {
			ts.accessToken = token.AccessToken
			ts.expiresAt = ts.now().Add(time.Duration(token.ExpiresIn) * time.Second)
			return ts.accessToken, nil
		}

		decision := ts.policy.Decide(attempt, *sig)
		if !decision.Retry {
			return "", &AuthError{Status: sig.Status, Err: sig.Err,
				Body: "retries exhausted against token endpoint"}
		}

		log.Printf("Credential exchange attempt %d failed (status %d), retrying in %s",
			attempt, sig.Status, decision.Delay)
		if err := ts.sleep(ctx, decision.Delay); err != nil {
			return "", err
		}
	}
}

// exchange performs one client_credentials POST. A nil Signal with nil
// error means success; a non-nil Signal means a transient failure the
// policy may retry; a non-nil error is fatal.
func (ts *TokenSource) exchange(ctx context.Context) (*tokenResponse, *Signal, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", ts.cfg.Scope)
	form.Set("client_id", ts.cfg.ClientID)
	form.Set("client_secret", ts.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.cfg.AuthURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return nil, &Signal{Err: err}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &Signal{
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header, ts.now()),
		}, nil
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &AuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, nil, &AuthError{Status: resp.StatusCode, Err: err, Body: "malformed token response"}
	}
	if token.AccessToken == "" {
		return nil, nil, &AuthError{Status: resp.StatusCode, Body: "token response missing access_token"}
	}

	return &token, nil, nil
}

// sleepContext sleeps for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
