package pms

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fixedRand removes jitter so delay assertions are exact.
func fixedRand() float64 { return 0.5 }

func TestDecide_ExponentialBackoff(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second, JitterFrac: 0.2, Rand: fixedRand}
	sig := Signal{Status: http.StatusTooManyRequests}

	// GIVEN: no Retry-After header
	// THEN: delays double per attempt: 2s, 4s, 8s
	assert.Equal(t, Decision{Retry: true, Delay: 2 * time.Second}, policy.Decide(1, sig))
	assert.Equal(t, Decision{Retry: true, Delay: 4 * time.Second}, policy.Decide(2, sig))
	assert.Equal(t, Decision{Retry: true, Delay: 8 * time.Second}, policy.Decide(3, sig))

	// Attempt 4 exceeds the retry cap
	assert.Equal(t, Decision{}, policy.Decide(4, sig))
}

func TestDecide_RetryAfterOverridesSchedule(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second, JitterFrac: 0.2, Rand: fixedRand}
	sig := Signal{Status: http.StatusTooManyRequests, RetryAfter: 7 * time.Second}

	decision := policy.Decide(1, sig)

	assert.True(t, decision.Retry)
	assert.Equal(t, 7*time.Second, decision.Delay)
}

func TestDecide_NonTransientFailuresNeverRetry(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second}

	for _, status := range []int{400, 401, 404, 500, 503} {
		assert.Equal(t, Decision{}, policy.Decide(1, Signal{Status: status}),
			"status %d must not be retried", status)
	}
}

func TestDecide_NetworkErrorsRetry(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Second, Rand: fixedRand}
	sig := Signal{Err: errors.New("connection refused")}

	assert.True(t, policy.Decide(1, sig).Retry)
	assert.True(t, policy.Decide(2, sig).Retry)
	assert.False(t, policy.Decide(3, sig).Retry)
}

func TestDecide_JitterStaysWithinBounds(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 1, BaseDelay: 2 * time.Second, JitterFrac: 0.2}
	sig := Signal{Status: http.StatusTooManyRequests}

	for i := 0; i < 200; i++ {
		decision := policy.Decide(1, sig)
		assert.GreaterOrEqual(t, decision.Delay, 1600*time.Millisecond)
		assert.LessOrEqual(t, decision.Delay, 2400*time.Millisecond)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	h := http.Header{}
	assert.Equal(t, time.Duration(0), parseRetryAfter(h, now))

	h.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, parseRetryAfter(h, now))

	h.Set("Retry-After", now.Add(30*time.Second).Format(http.TimeFormat))
	delta := parseRetryAfter(h, now)
	assert.InDelta(t, float64(30*time.Second), float64(delta), float64(time.Second))

	h.Set("Retry-After", "soon")
	assert.Equal(t, time.Duration(0), parseRetryAfter(h, now))
}
