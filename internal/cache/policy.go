package cache

import (
	"time"

	"perp_go/internal/backoff"
)

// MaxRetryDelay caps the default retry delay.
const MaxRetryDelay = 30 * time.Second

// Policy is the per-resource freshness and retry configuration.
type Policy struct {
	// StaleTime is how long a value is served without refetching.
	StaleTime time.Duration
	// RefetchInterval polls while subscribed. 0 disables polling.
	RefetchInterval time.Duration
	// Retry is the number of retries after the first failed attempt.
	Retry int
	// RetryDelay returns the wait before retry n (0-based).
	// nil uses 1s doubling per retry, capped at 30s.
	RetryDelay func(attempt int) time.Duration
}

func (p Policy) retryDelay(attempt int) time.Duration {
	if p.RetryDelay != nil {
		return p.RetryDelay(attempt)
	}
	return backoff.Calculate(attempt, MaxRetryDelay)
}
