// Package backoff computes exponential retry delays.
package backoff

import "time"

// Base is the delay before the first retry.
const Base = 1 * time.Second

// Calculate returns Base * 2^retryCount, capped at ceiling.
func Calculate(retryCount int, ceiling time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// 2^30s is far past any ceiling; avoid shifting further
	if retryCount > 30 {
		return ceiling
	}
	d := Base * time.Duration(1<<retryCount)
	if d > ceiling {
		return ceiling
	}
	return d
}
