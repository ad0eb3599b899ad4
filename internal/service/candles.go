package service

import (
	"context"
	"fmt"
	"time"

	"perp_go/internal/cache"
	"perp_go/internal/domain"
)

// CandleCount is how many bars one snapshot covers.
const CandleCount = 100

// CandleKey identifies one candle series.
type CandleKey struct {
	Coin     string
	Interval domain.CandleInterval
}

func (k CandleKey) String() string {
	return k.Coin + ":" + string(k.Interval)
}

// CandleHistory serves candle snapshots keyed by coin and interval.
type CandleHistory struct {
	res *cache.Resource[CandleKey, []domain.Candle]
}

// NewCandleHistory creates the history over the candleSnapshot endpoint.
func NewCandleHistory(src domain.InfoSource, policy cache.Policy, opts Options) *CandleHistory {
	now := opts.now()
	return &CandleHistory{
		res: cache.New(cache.Config[CandleKey, []domain.Candle]{
			Name:   "candleSnapshot",
			Policy: policy,
			Enabled: func(k CandleKey) bool {
				return k.Coin != "" && k.Interval.Valid()
			},
			KeyString: CandleKey.String,
			Fetch: func(ctx context.Context, k CandleKey) ([]domain.Candle, error) {
				return src.CandleSnapshot(ctx, k.Coin, k.Interval, StartTime(now(), k.Interval))
			},
			Recorder: opts.Recorder,
			Now:      now,
		}),
	}
}

// StartTime is the window start in milliseconds for a snapshot ending at now.
func StartTime(now time.Time, interval domain.CandleInterval) int64 {
	return now.Add(-CandleCount * interval.Duration()).UnixMilli()
}

// Candles returns the latest snapshot for coin at interval. A failed
// refresh returns the last good snapshot with a *cache.StaleError.
func (h *CandleHistory) Candles(ctx context.Context, coin string, interval domain.CandleInterval) ([]domain.Candle, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("unsupported candle interval %q", interval)
	}
	if coin == "" {
		return nil, fmt.Errorf("empty coin: %w", domain.ErrInvalidSymbol)
	}
	return h.res.Fetch(ctx, CandleKey{Coin: coin, Interval: interval})
}

// Close releases the underlying resource.
func (h *CandleHistory) Close() {
	h.res.Close()
}
