package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"perp_go/internal/cache"
	"perp_go/internal/domain"

	"github.com/shopspring/decimal"
)

const allMidsKey = "allMids"

// PriceStatus is the PriceStore view for consumers that render loading and error flags.
type PriceStatus struct {
	Prices    domain.PriceMap `json:"prices"`
	IsLoading bool            `json:"isLoading"`
	Error     string          `json:"error,omitempty"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// PriceStore owns the published PriceMap. Every successful fetch or stream
// push is diffed against the current map; a new map is published and
// listeners are notified only when at least one symbol changed.
type PriceStore struct {
	res *cache.Resource[string, domain.PriceMap]

	mu        sync.RWMutex
	current   domain.PriceMap
	listeners map[uint64]func(domain.PriceMap)
	nextID    uint64

	logger *slog.Logger
}

// NewPriceStore creates the store over the allMids endpoint.
func NewPriceStore(src domain.InfoSource, policy cache.Policy, opts Options) *PriceStore {
	s := &PriceStore{
		listeners: make(map[uint64]func(domain.PriceMap)),
		logger:    slog.Default().With("module", "price_store"),
	}
	s.res = cache.New(cache.Config[string, domain.PriceMap]{
		Name:   "prices",
		Policy: policy,
		Fetch: func(ctx context.Context, _ string) (domain.PriceMap, error) {
			return src.AllMids(ctx)
		},
		OnUpdate: func(_ string, mids domain.PriceMap) { s.Publish(mids) },
		Recorder: opts.Recorder,
		Now:      opts.now(),
	})
	return s
}

// Publish applies next with full replacement semantics. It returns the
// published map and whether anything changed. When nothing changed the
// previous map is returned and no listener runs.
func (s *PriceStore) Publish(next domain.PriceMap) (domain.PriceMap, bool) {
	s.mu.Lock()
	changed := ChangedSymbols(s.current, next)
	if len(changed) == 0 {
		prev := s.current
		s.mu.Unlock()
		return prev, false
	}

	published := make(domain.PriceMap, len(next))
	for sym, px := range next {
		published[sym] = px
	}
	s.current = published

	listeners := make([]func(domain.PriceMap), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	s.logger.Debug("Prices published", slog.Int("changed", len(changed)), slog.Int("symbols", len(published)))
	for _, fn := range listeners {
		fn(published)
	}
	return published, true
}

// ChangedSymbols returns the sorted symbols that were added, changed or
// dropped between prev and next.
func ChangedSymbols(prev, next domain.PriceMap) []string {
	var changed []string
	for sym, px := range next {
		if old, ok := prev[sym]; !ok || old != px {
			changed = append(changed, sym)
		}
	}
	for sym := range prev {
		if _, ok := next[sym]; !ok {
			changed = append(changed, sym)
		}
	}
	sort.Strings(changed)
	return changed
}

// Push publishes mids received from the stream.
func (s *PriceStore) Push(mids domain.PriceMap) {
	s.res.Set(allMidsKey, mids)
}

// Prices returns the current map and refreshes it in the background when stale.
// The returned map must not be modified.
func (s *PriceStore) Prices() domain.PriceMap {
	s.res.Get(allMidsKey)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Price returns the mid price of symbol.
func (s *PriceStore) Price(symbol string) (decimal.Decimal, bool) {
	return s.Prices().Decimal(symbol)
}

// Fetch blocks until a fresh map is available.
func (s *PriceStore) Fetch(ctx context.Context) (domain.PriceMap, error) {
	if _, err := s.res.Fetch(ctx, allMidsKey); err != nil {
		return s.snapshot(), err
	}
	return s.snapshot(), nil
}

// Refetch forces a fetch, joining one already in flight.
func (s *PriceStore) Refetch(ctx context.Context) error {
	_, err := s.res.Refetch(ctx, allMidsKey)
	return err
}

// Invalidate marks prices stale.
func (s *PriceStore) Invalidate() {
	s.res.Invalidate(allMidsKey)
}

// Subscribe registers fn for published maps and keeps polling alive while
// registered.
func (s *PriceStore) Subscribe(fn func(domain.PriceMap)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if fn != nil {
		s.listeners[id] = fn
	}
	s.mu.Unlock()

	release := s.res.Subscribe(allMidsKey, nil)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
			release()
		})
	}
}

// Status reports loading and error flags next to the last good map.
func (s *PriceStore) Status() PriceStatus {
	snap := s.res.Get(allMidsKey)
	st := PriceStatus{
		Prices:    s.snapshot(),
		IsLoading: snap.IsLoading,
		FetchedAt: snap.FetchedAt,
	}
	if snap.Err != nil {
		st.Error = snap.Err.Error()
	}
	return st
}

// Close stops polling.
func (s *PriceStore) Close() {
	s.res.Close()
}

func (s *PriceStore) snapshot() domain.PriceMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
