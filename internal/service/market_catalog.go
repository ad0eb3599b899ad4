package service

import (
	"context"
	"fmt"
	"log/slog"

	"perp_go/internal/cache"
	"perp_go/internal/domain"

	"github.com/shopspring/decimal"
)

const metaKey = "meta"

// CatalogStatus mirrors PriceStatus for the market list.
type CatalogStatus struct {
	Markets   []domain.MarketEntry `json:"markets"`
	IsLoading bool                 `json:"isLoading"`
	Error     string               `json:"error,omitempty"`
}

// MarketCatalog serves exchange metadata. Delisted entries are dropped when
// the response lands; upstream order is kept.
type MarketCatalog struct {
	res    *cache.Resource[string, domain.Meta]
	logger *slog.Logger
}

// NewMarketCatalog creates the catalog over the meta endpoint.
func NewMarketCatalog(src domain.InfoSource, policy cache.Policy, opts Options) *MarketCatalog {
	c := &MarketCatalog{logger: slog.Default().With("module", "market_catalog")}
	c.res = cache.New(cache.Config[string, domain.Meta]{
		Name:   "meta",
		Policy: policy,
		Fetch: func(ctx context.Context, _ string) (domain.Meta, error) {
			meta, err := src.Meta(ctx)
			if err != nil {
				return domain.Meta{}, err
			}
			active := meta.Active()
			if dropped := len(meta.Universe) - len(active); dropped > 0 {
				c.logger.Debug("Filtered delisted markets", slog.Int("dropped", dropped))
			}
			meta.Universe = active
			return meta, nil
		},
		Recorder: opts.Recorder,
		Now:      opts.now(),
	})
	return c
}

// Markets returns the active markets in upstream order. After a failed
// refresh the last good list comes back with a *cache.StaleError.
func (c *MarketCatalog) Markets(ctx context.Context) ([]domain.MarketEntry, error) {
	meta, err := c.res.Fetch(ctx, metaKey)
	if err != nil && !cache.IsStale(err) {
		return nil, err
	}
	return meta.Universe, err
}

// Lookup finds an active market by name. A stale list still answers.
func (c *MarketCatalog) Lookup(ctx context.Context, symbol string) (domain.MarketEntry, error) {
	markets, err := c.Markets(ctx)
	if err != nil && !cache.IsStale(err) {
		return domain.MarketEntry{}, err
	}
	for _, m := range markets {
		if m.Name == symbol {
			return m, nil
		}
	}
	return domain.MarketEntry{}, fmt.Errorf("%s: %w", symbol, domain.ErrInvalidSymbol)
}

// MarginTables returns the margin tables of the last metadata response.
func (c *MarketCatalog) MarginTables(ctx context.Context) ([]domain.MarginTable, error) {
	meta, err := c.res.Fetch(ctx, metaKey)
	if err != nil && !cache.IsStale(err) {
		return nil, err
	}
	return meta.MarginTables, err
}

// MaxLeverage returns the leverage cap for symbol at the given notional.
// Markets without a matching margin table use their flat maxLeverage.
// A stale catalog still answers.
func (c *MarketCatalog) MaxLeverage(ctx context.Context, symbol string, notional decimal.Decimal) (int, error) {
	meta, err := c.res.Fetch(ctx, metaKey)
	if err != nil && !cache.IsStale(err) {
		return 0, err
	}
	var entry *domain.MarketEntry
	for i := range meta.Universe {
		if meta.Universe[i].Name == symbol {
			entry = &meta.Universe[i]
			break
		}
	}
	if entry == nil {
		return 0, fmt.Errorf("%s: %w", symbol, domain.ErrInvalidSymbol)
	}

	for _, table := range meta.MarginTables {
		if table.ID != entry.MarginTableID {
			continue
		}
		lev := entry.MaxLeverage
		for _, tier := range table.Tiers {
			if notional.GreaterThanOrEqual(tier.LowerBound) {
				lev = tier.MaxLeverage
			}
		}
		return min(lev, entry.MaxLeverage), nil
	}
	return entry.MaxLeverage, nil
}

// Status reports the cached list with loading and error flags.
func (c *MarketCatalog) Status() CatalogStatus {
	snap := c.res.Get(metaKey)
	st := CatalogStatus{Markets: snap.Value.Universe, IsLoading: snap.IsLoading}
	if snap.Err != nil {
		st.Error = snap.Err.Error()
	}
	return st
}

// Subscribe notifies fn whenever a metadata response lands.
func (c *MarketCatalog) Subscribe(fn func([]domain.MarketEntry)) (unsubscribe func()) {
	return c.res.Subscribe(metaKey, func(s cache.Snapshot[domain.Meta]) {
		if s.HasValue && fn != nil {
			fn(s.Value.Universe)
		}
	})
}

// Refetch forces a metadata fetch.
func (c *MarketCatalog) Refetch(ctx context.Context) error {
	_, err := c.res.Refetch(ctx, metaKey)
	return err
}

// Invalidate marks metadata stale.
func (c *MarketCatalog) Invalidate() {
	c.res.Invalidate(metaKey)
}

// Close releases the underlying resource.
func (c *MarketCatalog) Close() {
	c.res.Close()
}
