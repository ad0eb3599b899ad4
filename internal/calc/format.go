package calc

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeTimeLayout renders as "01/02/2006 - 15:04:05".
const TradeTimeLayout = "01/02/2006 - 15:04:05"

// FormatPrice rounds to the given number of decimals.
func FormatPrice(price decimal.Decimal, decimals int32) string {
	return price.StringFixed(decimals)
}

// FormatCurrency renders "$1234.57".
func FormatCurrency(v decimal.Decimal) string {
	return "$" + v.StringFixed(2)
}

// FormatPercentage renders "12.35%".
func FormatPercentage(v decimal.Decimal) string {
	return v.StringFixed(2) + "%"
}

// FormatSignedCurrency renders "+$20.00" or "-$20.00".
func FormatSignedCurrency(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-$" + v.Abs().StringFixed(2)
	}
	return "+$" + v.StringFixed(2)
}

// FormatSignedPercentage renders "+12.00%" or "-12.00%".
func FormatSignedPercentage(v decimal.Decimal) string {
	if v.IsNegative() {
		return v.StringFixed(2) + "%"
	}
	return "+" + v.StringFixed(2) + "%"
}

// FormatTradeTime renders a millisecond timestamp in loc (UTC when nil).
func FormatTradeTime(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc).Format(TradeTimeLayout)
}
