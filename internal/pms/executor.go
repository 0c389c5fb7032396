package pms

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// executorMaxRetries caps 429/network retries for data requests.
const executorMaxRetries = 3

// quotaWarnThreshold triggers a log warning when remaining capacity for
// any interval drops under this fraction of its limit.
const quotaWarnThreshold = 0.2

// quotaIntervals are the per-interval rate-limit headers the upstream
// returns on every response.
var quotaIntervals = []string{"second", "minute", "hour"}

// RequestSpec describes one upstream API request. Bodies are not
// supported; every operation the sync engine needs is a GET.
type RequestSpec struct {
	Method string
	Path   string
	Query  url.Values
}

// Quota is the upstream-reported limit/remaining pair for one interval.
type Quota struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// Executor performs upstream requests under admission control: a
// token-bucket limiter plus a concurrency cap, both set below the
// upstream's published ceiling. Waiting callers queue in FIFO order.
type Executor struct {
	cfg        Config
	tokens     *TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	inflight   chan struct{}
	policy     RetryPolicy

	// injected in tests
	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu     sync.Mutex
	quotas map[string]Quota
	warned map[string]bool
}

// NewExecutor creates an executor backed by the given token source.
func NewExecutor(cfg Config, tokens *TokenSource) *Executor {
	return &Executor{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		inflight:   make(chan struct{}, cfg.MaxInFlight),
		policy: RetryPolicy{
			MaxRetries: executorMaxRetries,
			BaseDelay:  2 * time.Second,
			JitterFrac: 0.2,
		},
		now:    time.Now,
		sleep:  sleepContext,
		quotas: make(map[string]Quota),
		warned: make(map[string]bool),
	}
}

// Do executes the request and returns the raw response body. Transient
// failures (429, network) are retried per the policy; any other non-2xx
// fails immediately with UpstreamError.
func (e *Executor) Do(ctx context.Context, spec RequestSpec) ([]byte, error) {
	select {
	case e.inflight <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.inflight }()

	for attempt := 1; ; attempt++ {
		// Retries draw from the token bucket too; a retried request is
		// still a request against the upstream ceiling.
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, sig, err := e.attempt(ctx, spec)
		if err != nil {
			return nil, err
		}
		if sig == nil {
			return body, nil
		}

		decision := e.policy.Decide(attempt, *sig)
		if !decision.Retry {
			if sig.Status == http.StatusTooManyRequests {
				return nil, &RateLimitError{Endpoint: spec.Path, Attempts: attempt}
			}
			return nil, &NetworkError{Endpoint: spec.Path, Attempts: attempt, Err: sig.Err}
		}

		log.Printf("Request %s attempt %d failed (status %d), retrying in %s",
			spec.Path, attempt, sig.Status, decision.Delay)
		if err := e.sleep(ctx, decision.Delay); err != nil {
			return nil, err
		}
	}
}

// attempt performs a single request. A non-nil Signal marks a transient
// failure; a non-nil error is permanent.
func (e *Executor) attempt(ctx context.Context, spec RequestSpec) ([]byte, *Signal, error) {
	token, err := e.tokens.Token(ctx)
	if err != nil {
		return nil, nil, err
	}

	endpoint := e.cfg.BaseURL + spec.Path
	if len(spec.Query) > 0 {
		endpoint += "?" + spec.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &Signal{Err: err}, nil
	}
	defer resp.Body.Close()

	e.captureQuotas(resp.Header)

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, &Signal{
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header, e.now()),
		}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Signal{Err: err}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &UpstreamError{Endpoint: spec.Path, Status: resp.StatusCode, Body: string(body)}
	}

	return body, nil, nil
}

// captureQuotas records the per-interval rate-limit headers and warns
// once per dip when remaining capacity falls under the threshold.
func (e *Executor) captureQuotas(h http.Header) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, interval := range quotaIntervals {
		limit := headerInt(h, "X-RateLimit-Limit-"+interval)
		remaining := headerInt(h, "X-RateLimit-Remaining-"+interval)
		if limit <= 0 || remaining < 0 {
			continue
		}

		e.quotas[interval] = Quota{Limit: limit, Remaining: remaining}

		low := float64(remaining) < float64(limit)*quotaWarnThreshold
		if low && !e.warned[interval] {
			log.Printf("Upstream rate-limit capacity low: %d/%d remaining this %s",
				remaining, limit, interval)
		}
		e.warned[interval] = low
	}
}

// Quotas returns the most recently observed rate-limit headers.
func (e *Executor) Quotas() map[string]Quota {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := make(map[string]Quota, len(e.quotas))
	for k, v := range e.quotas {
		snapshot[k] = v
	}
	return snapshot
}

func headerInt(h http.Header, key string) int {
	value := h.Get(key)
	if value == "" {
		return -1
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return n
}
