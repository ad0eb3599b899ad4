package service

import (
	"time"

	"perp_go/internal/cache"
)

// Default freshness policies per resource.
var (
	PricePolicy = cache.Policy{StaleTime: 30 * time.Second, RefetchInterval: 5 * time.Second, Retry: 3}
	MetaPolicy  = cache.Policy{StaleTime: 5 * time.Minute, Retry: 3}

	// Wallet-scoped resources fail fast.
	AccountPolicy   = cache.Policy{StaleTime: 2 * time.Second, RefetchInterval: 5 * time.Second}
	FillsPolicy     = cache.Policy{StaleTime: 5 * time.Minute}
	PortfolioPolicy = cache.Policy{StaleTime: 10 * time.Second, RefetchInterval: 10 * time.Second}

	CandlePolicy = cache.Policy{StaleTime: time.Minute, Retry: 3}
)

// Options carries the shared collaborators of every service resource.
type Options struct {
	Recorder cache.Recorder
	Now      func() time.Time
}

func (o Options) now() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}
