package pms

import "fmt"

// AuthError indicates the credential exchange failed. No data can be
// fetched for the rest of the run once this is returned.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("credential exchange failed (status %d): %s", e.Status, e.Body)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RateLimitError indicates retries were exhausted while the upstream
// kept answering 429.
type RateLimitError struct {
	Endpoint string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded on %s after %d attempts", e.Endpoint, e.Attempts)
}

// NetworkError indicates retries were exhausted on connectivity failures.
type NetworkError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure on %s after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-retryable non-2xx response. The body is kept
// for diagnostics only and must not be surfaced to API consumers.
type UpstreamError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error on %s (status %d): %s", e.Endpoint, e.Status, e.Body)
}
