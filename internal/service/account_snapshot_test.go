package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"perp_go/internal/cache"
	"perp_go/internal/domain"

	"github.com/shopspring/decimal"
)

func accountFor(positions ...domain.Position) func(string) (domain.AccountState, error) {
	return func(user string) (domain.AccountState, error) {
		return domain.AccountState{
			MarginSummary: domain.MarginSummary{AccountValue: decimal.NewFromInt(1000)},
			Positions:     positions,
		}, nil
	}
}

func quietAccountPolicies() AccountPolicies {
	return AccountPolicies{Account: quietPolicy(), Fills: quietPolicy(), Portfolio: quietPolicy()}
}

func TestAccountSnapshot_DropsZeroSizePositions(t *testing.T) {
	src := newFakeInfo()
	src.account = accountFor(
		domain.Position{Symbol: "BTC", Size: decimal.RequireFromString("0.5")},
		domain.Position{Symbol: "ETH", Size: decimal.Zero},
		domain.Position{Symbol: "SOL", Size: decimal.NewFromInt(-10)},
	)
	a := NewAccountSnapshot(src, quietAccountPolicies(), Options{})
	defer a.Close()

	positions, err := a.Positions(context.Background(), "0xABC")
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if len(positions) != 2 || positions[0].Symbol != "BTC" || positions[1].Symbol != "SOL" {
		t.Errorf("Unexpected positions: %+v", positions)
	}

	st, _ := a.Account(context.Background(), "0xabc")
	if st.Address != "0xabc" {
		t.Errorf("Address should be normalized, got %q", st.Address)
	}
	if n := src.count("clearinghouseState"); n != 1 {
		t.Errorf("Same wallet in different case should share one entry, got %d fetches", n)
	}
}

func TestAccountSnapshot_EmptyAddressDisabled(t *testing.T) {
	src := newFakeInfo()
	a := NewAccountSnapshot(src, quietAccountPolicies(), Options{})
	defer a.Close()

	ctx := context.Background()
	if _, err := a.Account(ctx, ""); !errors.Is(err, domain.ErrWalletRequired) {
		t.Errorf("Expected ErrWalletRequired, got %v", err)
	}
	if _, err := a.Fills(ctx, "  "); !errors.Is(err, domain.ErrWalletRequired) {
		t.Errorf("Expected ErrWalletRequired, got %v", err)
	}
	if _, err := a.Portfolio(ctx, ""); !errors.Is(err, domain.ErrWalletRequired) {
		t.Errorf("Expected ErrWalletRequired, got %v", err)
	}
	for _, op := range []string{"clearinghouseState", "userFills", "portfolio"} {
		if n := src.count(op); n != 0 {
			t.Errorf("%s fetched %d times for an empty wallet", op, n)
		}
	}
}

func TestAccountSnapshot_FailsFast(t *testing.T) {
	src := newFakeInfo()
	src.fills = func(string) ([]domain.Fill, error) {
		return nil, domain.NewNetworkError("userFills", errors.New("invalid address"))
	}
	a := NewAccountSnapshot(src, DefaultAccountPolicies(), Options{})
	defer a.Close()

	start := time.Now()
	if _, err := a.Fills(context.Background(), "0xbad"); err == nil {
		t.Fatal("Expected error")
	}
	if n := src.count("userFills"); n != 1 {
		t.Errorf("Wallet resources must not retry, got %d calls", n)
	}
	if time.Since(start) > time.Second {
		t.Error("Failure should be reported without retry delay")
	}
}

func TestAccountSnapshot_InvalidateAndDisconnect(t *testing.T) {
	src := newFakeInfo()
	src.account = accountFor(domain.Position{Symbol: "BTC", Size: decimal.NewFromInt(1)})
	src.fills = func(string) ([]domain.Fill, error) {
		return []domain.Fill{{Symbol: "BTC", TradeID: 1}}, nil
	}
	src.portfolio = func(string) (domain.Portfolio, error) { return domain.Portfolio{}, nil }
	a := NewAccountSnapshot(src, quietAccountPolicies(), Options{})
	defer a.Close()

	ctx := context.Background()
	addr := "0xabc"
	a.Account(ctx, addr)
	a.Fills(ctx, addr)
	a.Portfolio(ctx, addr)

	a.Invalidate(addr)
	a.Account(ctx, addr)
	a.Fills(ctx, addr)
	a.Portfolio(ctx, addr)

	if n := src.count("clearinghouseState"); n != 2 {
		t.Errorf("Account should refetch after invalidate, got %d", n)
	}
	if n := src.count("userFills"); n != 2 {
		t.Errorf("Fills should refetch after invalidate, got %d", n)
	}
	if n := src.count("portfolio"); n != 1 {
		t.Errorf("Portfolio is not part of account invalidation, got %d", n)
	}

	a.Disconnect(addr)
	if snap := a.account.Peek(addr); snap.HasValue {
		t.Error("Disconnect should discard account state")
	}
}

func TestAccountSnapshot_ServesLastGoodValueOnFailure(t *testing.T) {
	var down atomic.Bool
	src := newFakeInfo()
	healthy := accountFor(domain.Position{Symbol: "ETH", Size: decimal.NewFromInt(2)})
	src.account = func(user string) (domain.AccountState, error) {
		if down.Load() {
			return domain.AccountState{}, domain.NewNetworkError("clearinghouseState", errors.New("503"))
		}
		return healthy(user)
	}
	a := NewAccountSnapshot(src, quietAccountPolicies(), Options{})
	defer a.Close()

	ctx := context.Background()
	if _, err := a.Account(ctx, "0xabc"); err != nil {
		t.Fatal(err)
	}

	down.Store(true)
	a.Invalidate("0xabc")

	positions, err := a.Positions(ctx, "0xabc")
	if !cache.IsStale(err) {
		t.Fatalf("Expected stale error, got %v", err)
	}
	if len(positions) != 1 || positions[0].Symbol != "ETH" {
		t.Errorf("Expected last good positions, got %+v", positions)
	}
}
