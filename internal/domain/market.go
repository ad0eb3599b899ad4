package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceMap maps a symbol to its latest mid price as reported by the exchange.
// A published PriceMap is read-only; only the PriceStore builds new ones.
type PriceMap map[string]string

// Decimal parses the mid price for symbol.
// Returns false when the symbol is unknown or the price is not a valid number.
func (p PriceMap) Decimal(symbol string) (decimal.Decimal, bool) {
	raw, ok := p[symbol]
	if !ok || raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// MarketEntry is one perpetual market from the exchange universe.
type MarketEntry struct {
	Name          string `json:"name"`
	SzDecimals    int    `json:"szDecimals"`
	MaxLeverage   int    `json:"maxLeverage"`
	MarginTableID int    `json:"marginTableId"`
	OnlyIsolated  bool   `json:"onlyIsolated,omitempty"`
	IsDelisted    bool   `json:"isDelisted,omitempty"`
}

// MarginTier is a leverage bracket starting at LowerBound notional.
type MarginTier struct {
	LowerBound  decimal.Decimal `json:"lowerBound"`
	MaxLeverage int             `json:"maxLeverage"`
}

// MarginTable groups the tiers referenced by MarketEntry.MarginTableID.
type MarginTable struct {
	ID          int          `json:"id"`
	Description string       `json:"description"`
	Tiers       []MarginTier `json:"marginTiers"`
}

// Meta is the decoded exchange metadata response.
type Meta struct {
	Universe     []MarketEntry `json:"universe"`
	MarginTables []MarginTable `json:"marginTables"`
}

// Active returns the non-delisted entries in upstream order.
func (m Meta) Active() []MarketEntry {
	out := make([]MarketEntry, 0, len(m.Universe))
	for _, e := range m.Universe {
		if e.IsDelisted {
			continue
		}
		out = append(out, e)
	}
	return out
}

// CandleInterval is a candle width accepted by the candleSnapshot endpoint.
type CandleInterval string

const (
	Interval1m  CandleInterval = "1m"
	Interval5m  CandleInterval = "5m"
	Interval15m CandleInterval = "15m"
	Interval1h  CandleInterval = "1h"
	Interval4h  CandleInterval = "4h"
	Interval1d  CandleInterval = "1d"
)

// Duration returns the wall-clock width of the interval, or 0 if unsupported.
func (i CandleInterval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the interval is one the client requests.
func (i CandleInterval) Valid() bool {
	return i.Duration() > 0
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime  int64           `json:"t"`
	CloseTime int64           `json:"T"`
	Symbol    string          `json:"s"`
	Interval  string          `json:"i"`
	Open      decimal.Decimal `json:"o"`
	Close     decimal.Decimal `json:"c"`
	High      decimal.Decimal `json:"h"`
	Low       decimal.Decimal `json:"l"`
	Volume    decimal.Decimal `json:"v"`
	Trades    int64           `json:"n"`
}
