package calc

import (
	"time"

	"perp_go/internal/domain"

	"github.com/shopspring/decimal"
)

// PositionView is an open position with derived pnl and ROE.
type PositionView struct {
	Symbol           string           `json:"symbol"`
	Side             string           `json:"side"` // "LONG" or "SHORT"
	IsLong           bool             `json:"isLong"`
	IsShort          bool             `json:"isShort"`
	SignedSize       decimal.Decimal  `json:"signedSize"`
	Size             decimal.Decimal  `json:"size"`
	EntryPrice       decimal.Decimal  `json:"entryPrice"`
	MarkPrice        decimal.Decimal  `json:"markPrice"`
	HasMarkPrice     bool             `json:"hasMarkPrice"`
	PositionValue    decimal.Decimal  `json:"positionValue"`
	MarginUsed       decimal.Decimal  `json:"marginUsed"`
	Leverage         int              `json:"leverage"`
	LiquidationPrice *decimal.Decimal `json:"liquidationPrice,omitempty"`
	Pnl              decimal.Decimal  `json:"pnl"`
	Roe              decimal.Decimal  `json:"roe"`
	PnlText          string           `json:"pnlText"`
	RoeText          string           `json:"roeText"`
}

// EvaluatePosition prices pos against the current mids. Without a mid for
// the symbol the exchange-reported unrealized pnl is used instead.
func EvaluatePosition(pos domain.Position, prices domain.PriceMap) PositionView {
	v := PositionView{
		Symbol:           pos.Symbol,
		IsLong:           pos.IsLong(),
		IsShort:          pos.IsShort(),
		SignedSize:       pos.Size,
		Size:             pos.Size.Abs(),
		EntryPrice:       pos.EntryPrice,
		MarginUsed:       pos.MarginUsed,
		Leverage:         pos.Leverage.Value,
		LiquidationPrice: pos.LiquidationPrice,
	}
	if v.IsShort {
		v.Side = "SHORT"
	} else if v.IsLong {
		v.Side = "LONG"
	}

	mark, ok := prices.Decimal(pos.Symbol)
	if ok {
		v.MarkPrice = mark
		v.HasMarkPrice = true
		v.Pnl = PositionPnl(pos.EntryPrice, mark, pos.Size)
		v.PositionValue = v.Size.Mul(mark)
	} else {
		v.MarkPrice = pos.EntryPrice
		v.Pnl = pos.UnrealizedPnl
		v.PositionValue = pos.PositionValue
	}

	v.Roe = ROE(v.Pnl, pos.MarginUsed)
	v.PnlText = FormatSignedCurrency(v.Pnl)
	v.RoeText = FormatSignedPercentage(v.Roe)
	return v
}

// EvaluatePositions evaluates every position in order.
func EvaluatePositions(positions []domain.Position, prices domain.PriceMap) []PositionView {
	out := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, EvaluatePosition(p, prices))
	}
	return out
}

// FillView is one trade-history row.
type FillView struct {
	Time       string          `json:"time"`
	Symbol     string          `json:"symbol"`
	Direction  string          `json:"direction"`
	Price      string          `json:"price"`
	Size       decimal.Decimal `json:"size"`
	TradeValue decimal.Decimal `json:"tradeValue"`
	ValueText  string          `json:"valueText"`
	FeeText    string          `json:"feeText"`
	ClosedPnl  decimal.Decimal `json:"closedPnl"`
	PnlText    string          `json:"pnlText"`
	TradeID    int64           `json:"tradeId"`
}

// TradeValue is price * size.
func TradeValue(f domain.Fill) decimal.Decimal {
	return f.Price.Mul(f.Size)
}

// EvaluateFill derives the display row of a fill.
func EvaluateFill(f domain.Fill, loc *time.Location) FillView {
	value := TradeValue(f)
	return FillView{
		Time:       FormatTradeTime(f.Time, loc),
		Symbol:     f.Symbol,
		Direction:  f.Direction,
		Price:      FormatPrice(f.Price, 2),
		Size:       f.Size,
		TradeValue: value,
		ValueText:  FormatCurrency(value) + " USDC",
		FeeText:    FormatCurrency(f.Fee) + " USDC",
		ClosedPnl:  f.ClosedPnl,
		PnlText:    FormatSignedCurrency(f.ClosedPnl),
		TradeID:    f.TradeID,
	}
}

// EvaluateFills evaluates every fill in order.
func EvaluateFills(fills []domain.Fill, loc *time.Location) []FillView {
	out := make([]FillView, 0, len(fills))
	for _, f := range fills {
		out = append(out, EvaluateFill(f, loc))
	}
	return out
}
