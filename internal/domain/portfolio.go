package domain

import "github.com/shopspring/decimal"

// Timeframe keys reported by the portfolio endpoint.
type Timeframe string

const (
	TimeframeDay     Timeframe = "day"
	TimeframeWeek    Timeframe = "week"
	TimeframeMonth   Timeframe = "month"
	TimeframeAllTime Timeframe = "allTime"
)

// Timeframes lists the periods shown in portfolio statistics, in display order.
var Timeframes = []Timeframe{TimeframeDay, TimeframeWeek, TimeframeMonth, TimeframeAllTime}

// PortfolioPoint is one [timestamp, value] sample.
type PortfolioPoint struct {
	Timestamp int64           `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// PortfolioSeries holds the account-value and pnl histories of one timeframe.
// Both histories are aligned index for index; the last element is current.
type PortfolioSeries struct {
	AccountValueHistory []PortfolioPoint `json:"accountValueHistory"`
	PnlHistory          []PortfolioPoint `json:"pnlHistory"`
	Volume              decimal.Decimal  `json:"vlm"`
}

// LatestAccountValue returns the newest account value, or zero when empty.
func (s PortfolioSeries) LatestAccountValue() decimal.Decimal {
	return latest(s.AccountValueHistory)
}

// LatestPnl returns the newest pnl reading, or zero when empty.
func (s PortfolioSeries) LatestPnl() decimal.Decimal {
	return latest(s.PnlHistory)
}

func latest(points []PortfolioPoint) decimal.Decimal {
	if len(points) == 0 {
		return decimal.Zero
	}
	return points[len(points)-1].Value
}

// Portfolio keeps every timeframe the exchange returned.
type Portfolio map[Timeframe]PortfolioSeries
