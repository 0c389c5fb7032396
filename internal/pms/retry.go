package pms

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Signal describes the outcome of a single request attempt for the
// retry policy. Status is the HTTP status code, or 0 when the attempt
// failed before a response was received (Err is set in that case).
type Signal struct {
	Status     int
	RetryAfter time.Duration
	Err        error
}

// retryable reports whether the attempt outcome is transient: a 429 or
// a network-level failure. Any other non-2xx is permanent.
func (s Signal) retryable() bool {
	return s.Status == http.StatusTooManyRequests || (s.Status == 0 && s.Err != nil)
}

// Decision is the policy's verdict for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// RetryPolicy computes retry decisions without touching the clock or
// the network. The caller owns sleeping and counting attempts.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration

	// JitterFrac spreads each delay by ±JitterFrac to desynchronize
	// retries across processes.
	JitterFrac float64

	// Rand overrides the jitter source in tests. Defaults to math/rand.
	Rand func() float64
}

// Decide returns the verdict for the given failed attempt. attempt is
// 1-based: 1 means the initial attempt just failed. A server-supplied
// Retry-After takes precedence over the exponential schedule; jitter is
// applied either way.
func (p RetryPolicy) Decide(attempt int, sig Signal) Decision {
	if !sig.retryable() || attempt > p.MaxRetries {
		return Decision{}
	}

	delay := sig.RetryAfter
	if delay <= 0 {
		delay = p.BaseDelay << uint(attempt-1)
	}

	return Decision{Retry: true, Delay: p.jitter(delay)}
}

func (p RetryPolicy) jitter(d time.Duration) time.Duration {
	if p.JitterFrac <= 0 {
		return d
	}
	random := p.Rand
	if random == nil {
		random = rand.Float64
	}
	// Uniform in [1-JitterFrac, 1+JitterFrac)
	factor := 1 - p.JitterFrac + 2*p.JitterFrac*random()
	return time.Duration(float64(d) * factor)
}

// parseRetryAfter reads a Retry-After header value, either delta-seconds
// or an HTTP date. Returns 0 when absent or unparseable.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	value := h.Get("Retry-After")
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
