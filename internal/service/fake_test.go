package service

import (
	"context"
	"sync"
	"sync/atomic"

	"perp_go/internal/domain"
)

// fakeInfo is an in-memory InfoSource. Each func field is optional.
type fakeInfo struct {
	mu sync.Mutex

	mids      func() (domain.PriceMap, error)
	meta      func() (domain.Meta, error)
	candles   func(coin string, interval domain.CandleInterval, start int64) ([]domain.Candle, error)
	account   func(user string) (domain.AccountState, error)
	fills     func(user string) ([]domain.Fill, error)
	portfolio func(user string) (domain.Portfolio, error)

	calls map[string]*atomic.Int64
}

func newFakeInfo() *fakeInfo {
	return &fakeInfo{calls: map[string]*atomic.Int64{}}
}

func (f *fakeInfo) count(op string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.calls[op]; ok {
		return c.Load()
	}
	return 0
}

func (f *fakeInfo) hit(op string) {
	f.mu.Lock()
	c, ok := f.calls[op]
	if !ok {
		c = &atomic.Int64{}
		f.calls[op] = c
	}
	f.mu.Unlock()
	c.Add(1)
}

func (f *fakeInfo) AllMids(ctx context.Context) (domain.PriceMap, error) {
	f.hit("allMids")
	return f.mids()
}

func (f *fakeInfo) Meta(ctx context.Context) (domain.Meta, error) {
	f.hit("meta")
	return f.meta()
}

func (f *fakeInfo) CandleSnapshot(ctx context.Context, coin string, interval domain.CandleInterval, start int64) ([]domain.Candle, error) {
	f.hit("candleSnapshot")
	return f.candles(coin, interval, start)
}

func (f *fakeInfo) ClearinghouseState(ctx context.Context, user string) (domain.AccountState, error) {
	f.hit("clearinghouseState")
	return f.account(user)
}

func (f *fakeInfo) UserFills(ctx context.Context, user string) ([]domain.Fill, error) {
	f.hit("userFills")
	return f.fills(user)
}

func (f *fakeInfo) Portfolio(ctx context.Context, user string) (domain.Portfolio, error) {
	f.hit("portfolio")
	return f.portfolio(user)
}
