// Package calc derives every financial figure shown to the user from cached
// data. Functions are pure; all arithmetic uses decimal.
package calc

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxSizeLen bounds the length of a user-typed size.
const MaxSizeLen = 32

var (
	hundred = decimal.NewFromInt(100)

	// plain digits with an optional fraction; no sign, no exponent
	sizePattern = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)
)

// ParseSize parses a user-typed size. ok is false for empty, non-numeric,
// non-positive or overlong input and for exponent notation.
func ParseSize(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxSizeLen || !sizePattern.MatchString(raw) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(raw, "."))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// OrderValue is size * price. It is zero when size is not a valid positive
// number or the price is unavailable (non-positive).
func OrderValue(size string, price decimal.Decimal) decimal.Decimal {
	sz, ok := ParseSize(size)
	if !ok || !price.IsPositive() {
		return decimal.Zero
	}
	return sz.Mul(price)
}

// MarginRequired is orderValue / leverage. A non-positive leverage yields zero.
func MarginRequired(orderValue, leverage decimal.Decimal) decimal.Decimal {
	if !leverage.IsPositive() {
		return decimal.Zero
	}
	return orderValue.Div(leverage)
}

// PositionPnl is (current - entry) * size for a long and
// (entry - current) * |size| for a short. Zero size yields zero.
func PositionPnl(entry, current, signedSize decimal.Decimal) decimal.Decimal {
	switch {
	case signedSize.IsPositive():
		return current.Sub(entry).Mul(signedSize)
	case signedSize.IsNegative():
		return entry.Sub(current).Mul(signedSize.Abs())
	default:
		return decimal.Zero
	}
}

// ROE is pnl / marginUsed * 100, or zero when marginUsed is not positive.
func ROE(pnl, marginUsed decimal.Decimal) decimal.Decimal {
	if !marginUsed.IsPositive() {
		return decimal.Zero
	}
	return pnl.Div(marginUsed).Mul(hundred)
}

// ChangeType classifies a pnl figure for display.
type ChangeType string

const (
	ChangePositive ChangeType = "positive"
	ChangeNegative ChangeType = "negative"
)

func changeTypeOf(v decimal.Decimal) ChangeType {
	if v.IsNegative() {
		return ChangeNegative
	}
	return ChangePositive
}

// PnlPercent is a period pnl and its return on the period's starting value.
type PnlPercent struct {
	Pnl        decimal.Decimal `json:"pnl"`
	Percentage decimal.Decimal `json:"percentage"`
	ChangeType ChangeType      `json:"changeType"`
}

// PortfolioPnl reconstructs the starting value as currentValue - periodPnl
// and expresses periodPnl as a percentage of it. The percentage is zero when
// the starting value is not positive.
func PortfolioPnl(periodPnl, currentValue decimal.Decimal) PnlPercent {
	out := PnlPercent{Pnl: periodPnl, Percentage: decimal.Zero, ChangeType: changeTypeOf(periodPnl)}
	start := currentValue.Sub(periodPnl)
	if start.IsPositive() {
		out.Percentage = periodPnl.Div(start).Mul(hundred)
	}
	return out
}
