package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// InfoSource is the read side of the exchange: the single POST /info endpoint.
type InfoSource interface {
	AllMids(ctx context.Context) (PriceMap, error)
	Meta(ctx context.Context) (Meta, error)
	CandleSnapshot(ctx context.Context, coin string, interval CandleInterval, startTime int64) ([]Candle, error)
	ClearinghouseState(ctx context.Context, user string) (AccountState, error)
	UserFills(ctx context.Context, user string) ([]Fill, error)
	Portfolio(ctx context.Context, user string) (Portfolio, error)
}

// TradingSession is the write side. Initialize must succeed before any action;
// actions report backend rejections through ActionResult rather than error.
type TradingSession interface {
	Initialize(ctx context.Context, creds Credentials) error
	UpdateLeverage(ctx context.Context, symbol, mode string, value int) ActionResult
	PlaceMarketOrder(ctx context.Context, symbol string, isBuy bool, size decimal.Decimal) ActionResult
	ClosePosition(ctx context.Context, symbol string) ActionResult
}

// PriceStreamer pushes live mids into a consumer until stopped.
type PriceStreamer interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}
