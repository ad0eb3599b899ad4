package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceMap_Decimal(t *testing.T) {
	prices := PriceMap{"BTC": "65000.5", "BAD": "n/a", "EMPTY": ""}

	t.Run("valid price", func(t *testing.T) {
		d, ok := prices.Decimal("BTC")
		if !ok || !d.Equal(decimal.RequireFromString("65000.5")) {
			t.Errorf("Expected 65000.5, got %v (ok=%v)", d, ok)
		}
	})

	t.Run("unknown or malformed", func(t *testing.T) {
		for _, sym := range []string{"ETH", "BAD", "EMPTY"} {
			if _, ok := prices.Decimal(sym); ok {
				t.Errorf("Expected %s to be unavailable", sym)
			}
		}
	})
}

func TestMeta_ActiveKeepsOrder(t *testing.T) {
	meta := Meta{Universe: []MarketEntry{
		{Name: "SOL"},
		{Name: "LUNA", IsDelisted: true},
		{Name: "BTC"},
		{Name: "ETH"},
	}}

	active := meta.Active()
	if len(active) != 3 {
		t.Fatalf("Expected 3 active markets, got %d", len(active))
	}
	if active[0].Name != "SOL" || active[1].Name != "BTC" || active[2].Name != "ETH" {
		t.Errorf("Upstream order not preserved: %v", active)
	}
}

func TestCandleInterval_Duration(t *testing.T) {
	tests := []struct {
		interval CandleInterval
		want     time.Duration
	}{
		{Interval1m, time.Minute},
		{Interval15m, 15 * time.Minute},
		{Interval4h, 4 * time.Hour},
		{Interval1d, 24 * time.Hour},
		{CandleInterval("3w"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.interval), func(t *testing.T) {
			if got := tt.interval.Duration(); got != tt.want {
				t.Errorf("Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccountState_PositionFor(t *testing.T) {
	acc := AccountState{
		MarginSummary: MarginSummary{AccountValue: decimal.NewFromInt(1000)},
		Positions: []Position{
			{Symbol: "ETH", Size: decimal.NewFromInt(-2)},
		},
	}

	if !acc.AvailableBalance().Equal(decimal.NewFromInt(1000)) {
		t.Errorf("AvailableBalance = %v", acc.AvailableBalance())
	}
	pos, ok := acc.PositionFor("ETH")
	if !ok || !pos.IsShort() || pos.IsLong() {
		t.Errorf("Expected short ETH position, got %+v", pos)
	}
	if _, ok := acc.PositionFor("BTC"); ok {
		t.Error("BTC should have no position")
	}
}

func TestPortfolioSeries_Latest(t *testing.T) {
	s := PortfolioSeries{
		AccountValueHistory: []PortfolioPoint{{1, decimal.NewFromInt(900)}, {2, decimal.NewFromInt(1100)}},
		PnlHistory:          []PortfolioPoint{{1, decimal.Zero}, {2, decimal.NewFromInt(200)}},
	}
	if !s.LatestAccountValue().Equal(decimal.NewFromInt(1100)) {
		t.Errorf("LatestAccountValue = %v", s.LatestAccountValue())
	}
	if !s.LatestPnl().Equal(decimal.NewFromInt(200)) {
		t.Errorf("LatestPnl = %v", s.LatestPnl())
	}
	if !(PortfolioSeries{}).LatestPnl().IsZero() {
		t.Error("Empty series should report zero")
	}
}
