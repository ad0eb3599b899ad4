package domain

import "github.com/shopspring/decimal"

// MarginSummary is the account-level margin view.
type MarginSummary struct {
	AccountValue    decimal.Decimal `json:"accountValue"`
	TotalNtlPos     decimal.Decimal `json:"totalNtlPos"`
	TotalRawUsd     decimal.Decimal `json:"totalRawUsd"`
	TotalMarginUsed decimal.Decimal `json:"totalMarginUsed"`
}

// Leverage is the leverage setting attached to a position.
type Leverage struct {
	Type  string `json:"type"` // "isolated" or "cross"
	Value int    `json:"value"`
}

// Position is an open perpetual position. Size is signed: positive is long.
type Position struct {
	Symbol           string           `json:"coin"`
	Size             decimal.Decimal  `json:"szi"`
	EntryPrice       decimal.Decimal  `json:"entryPx"`
	PositionValue    decimal.Decimal  `json:"positionValue"`
	UnrealizedPnl    decimal.Decimal  `json:"unrealizedPnl"`
	MarginUsed       decimal.Decimal  `json:"marginUsed"`
	Leverage         Leverage         `json:"leverage"`
	LiquidationPrice *decimal.Decimal `json:"liquidationPx,omitempty"`
}

// IsLong reports a positive signed size.
func (p Position) IsLong() bool { return p.Size.IsPositive() }

// IsShort reports a negative signed size.
func (p Position) IsShort() bool { return p.Size.IsNegative() }

// AccountState is the clearinghouse view of one wallet. It is replaced
// wholesale on every refresh.
type AccountState struct {
	Address       string          `json:"address"`
	MarginSummary MarginSummary   `json:"marginSummary"`
	Withdrawable  decimal.Decimal `json:"withdrawable"`
	Positions     []Position      `json:"positions"`
	Time          int64           `json:"time"`
}

// AvailableBalance is the balance the order form checks margin against.
func (a AccountState) AvailableBalance() decimal.Decimal {
	return a.MarginSummary.AccountValue
}

// PositionFor returns the open position for symbol, if any.
func (a AccountState) PositionFor(symbol string) (Position, bool) {
	for _, p := range a.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// Fill is one historical trade execution.
type Fill struct {
	Time          int64           `json:"time"`
	Symbol        string          `json:"coin"`
	Direction     string          `json:"dir"`
	Side          string          `json:"side"`
	Price         decimal.Decimal `json:"px"`
	Size          decimal.Decimal `json:"sz"`
	Fee           decimal.Decimal `json:"fee"`
	ClosedPnl     decimal.Decimal `json:"closedPnl"`
	StartPosition decimal.Decimal `json:"startPosition"`
	Hash          string          `json:"hash"`
	OrderID       int64           `json:"oid"`
	TradeID       int64           `json:"tid"`
	Crossed       bool            `json:"crossed"`
}
