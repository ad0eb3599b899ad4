package calc

import (
	"perp_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Stat row labels.
const (
	LabelCurrentValue = "Current Value"
	LabelDayPnl       = "24h P&L"
	LabelWeekPnl      = "7d P&L"
	LabelMonthPnl     = "30d P&L"
	LabelAllTimePnl   = "All Time P&L"
	LabelDayVolume    = "Volume (24h)"
)

// StatRow is one portfolio statistic. Change is empty for rows without one.
type StatRow struct {
	Label      string     `json:"label"`
	Value      string     `json:"value"`
	Change     string     `json:"change,omitempty"`
	ChangeType ChangeType `json:"changeType,omitempty"`
}

// Stats summarises a portfolio. CurrentValue and DayVolume come from the
// day series; every period's percentage uses that current value.
type Stats struct {
	CurrentValue decimal.Decimal                 `json:"currentValue"`
	DayVolume    decimal.Decimal                 `json:"dayVolume"`
	Periods      map[domain.Timeframe]PnlPercent `json:"periods"`
	Rows         []StatRow                       `json:"rows"`
}

// PortfolioStats derives the statistic rows. Missing timeframes count as zero.
func PortfolioStats(p domain.Portfolio) Stats {
	day := p[domain.TimeframeDay]
	current := day.LatestAccountValue()

	s := Stats{
		CurrentValue: current,
		DayVolume:    day.Volume,
		Periods:      make(map[domain.Timeframe]PnlPercent, len(domain.Timeframes)),
	}
	for _, tf := range domain.Timeframes {
		s.Periods[tf] = PortfolioPnl(p[tf].LatestPnl(), current)
	}

	pnlRow := func(label string, tf domain.Timeframe) StatRow {
		pp := s.Periods[tf]
		return StatRow{
			Label:      label,
			Value:      FormatCurrency(pp.Pnl),
			Change:     FormatPercentage(pp.Percentage),
			ChangeType: pp.ChangeType,
		}
	}
	s.Rows = []StatRow{
		{Label: LabelCurrentValue, Value: FormatCurrency(current)},
		pnlRow(LabelDayPnl, domain.TimeframeDay),
		pnlRow(LabelWeekPnl, domain.TimeframeWeek),
		pnlRow(LabelMonthPnl, domain.TimeframeMonth),
		pnlRow(LabelAllTimePnl, domain.TimeframeAllTime),
		{Label: LabelDayVolume, Value: FormatCurrency(day.Volume)},
	}
	return s
}

var timeframeLabels = map[domain.Timeframe]string{
	domain.TimeframeDay:     "24 Hours",
	domain.TimeframeWeek:    "7 Days",
	domain.TimeframeMonth:   "30 Days",
	domain.TimeframeAllTime: "All Time",
}

// TimeframeRow is one row of the per-period table. Each row uses its own
// series' latest account value.
type TimeframeRow struct {
	Timeframe    domain.Timeframe `json:"timeframe"`
	Label        string           `json:"label"`
	CurrentValue decimal.Decimal  `json:"currentValue"`
	PnlPercent
	Volume     decimal.Decimal `json:"volume"`
	DataPoints int             `json:"dataPoints"`
}

// TimeframeRows builds the per-period table in display order.
func TimeframeRows(p domain.Portfolio) []TimeframeRow {
	rows := make([]TimeframeRow, 0, len(domain.Timeframes))
	for _, tf := range domain.Timeframes {
		series := p[tf]
		current := series.LatestAccountValue()
		rows = append(rows, TimeframeRow{
			Timeframe:    tf,
			Label:        timeframeLabels[tf],
			CurrentValue: current,
			PnlPercent:   PortfolioPnl(series.LatestPnl(), current),
			Volume:       series.Volume,
			DataPoints:   len(series.AccountValueHistory),
		})
	}
	return rows
}

// ChartPoint joins the two histories of a series at one index.
type ChartPoint struct {
	Timestamp int64           `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
	Pnl       decimal.Decimal `json:"pnl"`
}

// ChartBounds are the extremes a chart scales against.
type ChartBounds struct {
	MinValue decimal.Decimal `json:"minValue"`
	MaxValue decimal.Decimal `json:"maxValue"`
	Range    decimal.Decimal `json:"range"`
	MaxPnl   decimal.Decimal `json:"maxPnl"`
}

// ChartSeries zips the account value and pnl histories. It is empty when
// either history is empty.
func ChartSeries(s domain.PortfolioSeries) []ChartPoint {
	if len(s.AccountValueHistory) == 0 || len(s.PnlHistory) == 0 {
		return nil
	}
	n := min(len(s.AccountValueHistory), len(s.PnlHistory))
	out := make([]ChartPoint, n)
	for i := 0; i < n; i++ {
		out[i] = ChartPoint{
			Timestamp: s.AccountValueHistory[i].Timestamp,
			Value:     s.AccountValueHistory[i].Value,
			Pnl:       s.PnlHistory[i].Value,
		}
	}
	return out
}

// Bounds computes the chart extremes; MaxPnl is on absolute pnl.
func Bounds(points []ChartPoint) ChartBounds {
	if len(points) == 0 {
		return ChartBounds{}
	}
	b := ChartBounds{MinValue: points[0].Value, MaxValue: points[0].Value, MaxPnl: points[0].Pnl.Abs()}
	for _, p := range points[1:] {
		b.MinValue = decimal.Min(b.MinValue, p.Value)
		b.MaxValue = decimal.Max(b.MaxValue, p.Value)
		b.MaxPnl = decimal.Max(b.MaxPnl, p.Pnl.Abs())
	}
	b.Range = b.MaxValue.Sub(b.MinValue)
	return b
}
