package trading

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"perp_go/internal/domain"
	"perp_go/internal/order"

	"github.com/shopspring/decimal"
)

type fakeSession struct {
	mu        sync.Mutex
	inits     int
	leverages []string
	orders    []string
	closes    atomic.Int32

	initErr    error
	leverage   domain.ActionResult
	order      domain.ActionResult
	close      domain.ActionResult
	closeGate  chan struct{}
	closeEnter chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		leverage: domain.ActionResult{Success: true},
		order:    domain.ActionResult{Success: true},
		close:    domain.ActionResult{Success: true},
	}
}

func (s *fakeSession) Initialize(ctx context.Context, creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	return s.initErr
}

func (s *fakeSession) UpdateLeverage(ctx context.Context, symbol, mode string, value int) domain.ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leverages = append(s.leverages, symbol+":"+mode+":"+decimal.NewFromInt(int64(value)).String())
	return s.leverage
}

func (s *fakeSession) PlaceMarketOrder(ctx context.Context, symbol string, isBuy bool, size decimal.Decimal) domain.ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	side := "sell"
	if isBuy {
		side = "buy"
	}
	s.orders = append(s.orders, symbol+":"+side+":"+size.String())
	return s.order
}

func (s *fakeSession) ClosePosition(ctx context.Context, symbol string) domain.ActionResult {
	s.closes.Add(1)
	if s.closeEnter != nil {
		s.closeEnter <- struct{}{}
	}
	if s.closeGate != nil {
		<-s.closeGate
	}
	return s.close
}

type fakeAccount struct{ invalidated []string }

func (a *fakeAccount) Invalidate(addr string) { a.invalidated = append(a.invalidated, addr) }

type fakePrices struct{ invalidated int }

func (p *fakePrices) Invalidate() { p.invalidated++ }

type fixture struct {
	session *fakeSession
	account *fakeAccount
	prices  *fakePrices
	form    *order.Form
	coord   *Coordinator
}

func newFixture(creds domain.Credentials) *fixture {
	f := &fixture{
		session: newFakeSession(),
		account: &fakeAccount{},
		prices:  &fakePrices{},
		form:    order.NewForm("ETH", order.DefaultLeverage),
	}
	f.coord = NewCoordinator(Config{
		Session:     f.session,
		Credentials: creds,
		Account:     f.account,
		Prices:      f.prices,
		Form:        f.form,
		Leverage:    2,
	})
	return f
}

var testCreds = domain.Credentials{PrivateKey: "0xkey", WalletAddress: "0xabc"}

func validResult(t *testing.T, size string) order.Result {
	t.Helper()
	res := order.Validate(order.Input{
		WalletConnected:  true,
		Online:           true,
		Symbol:           "ETH",
		Price:            decimal.NewFromInt(4000),
		HasPrice:         true,
		Size:             size,
		Leverage:         order.DefaultLeverage,
		AvailableBalance: decimal.NewFromInt(1000),
	})
	if !res.CanSubmit() {
		t.Fatalf("fixture validation blocked: %s", res.Message)
	}
	return res
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newFixture(testCreds)
	f.form.SetSize("0.1")
	draft := f.form.Draft()

	res, err := f.coord.PlaceOrder(context.Background(), "0xabc", draft, validResult(t, "0.1"))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if len(f.session.leverages) != 1 || f.session.leverages[0] != "ETH:isolated:2" {
		t.Errorf("leverage calls = %v", f.session.leverages)
	}
	if len(f.session.orders) != 1 || f.session.orders[0] != "ETH:buy:0.1" {
		t.Errorf("order calls = %v", f.session.orders)
	}
	if len(f.account.invalidated) != 1 || f.account.invalidated[0] != "0xabc" {
		t.Errorf("account invalidations = %v", f.account.invalidated)
	}
	if f.prices.invalidated != 1 {
		t.Errorf("price invalidations = %d", f.prices.invalidated)
	}
	if got := f.form.Draft().Size; got != "" {
		t.Errorf("size after success = %q, want cleared", got)
	}
	if r := f.form.Result(); r == nil || !r.Success || r.Message != MessageOrderPlaced {
		t.Errorf("form result = %+v", r)
	}
	if f.coord.Placing("ETH") {
		t.Error("in-flight flag not released")
	}
}

func TestPlaceOrder_BackendRejection(t *testing.T) {
	f := newFixture(testCreds)
	f.session.order = domain.ActionResult{Success: false, Error: "Insufficient margin to place order."}
	f.form.SetSize("0.1")

	_, err := f.coord.PlaceOrder(context.Background(), "0xabc", f.form.Draft(), validResult(t, "0.1"))
	var me *domain.MutationError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want MutationError", err)
	}
	if me.Message != "Insufficient margin to place order." {
		t.Errorf("message = %q, want backend text verbatim", me.Message)
	}
	if got := f.form.Draft().Size; got != "0.1" {
		t.Errorf("size = %q, form must be untouched on failure", got)
	}
	if len(f.account.invalidated) != 0 || f.prices.invalidated != 0 {
		t.Error("caches invalidated on failure")
	}
	if f.coord.Placing("ETH") {
		t.Error("in-flight flag not released after failure")
	}
}

func TestPlaceOrder_LeverageRejectionSkipsOrder(t *testing.T) {
	f := newFixture(testCreds)
	f.session.leverage = domain.ActionResult{Success: false, Error: "Invalid leverage"}
	f.form.SetSize("0.1")

	_, err := f.coord.PlaceOrder(context.Background(), "0xabc", f.form.Draft(), validResult(t, "0.1"))
	var me *domain.MutationError
	if !errors.As(err, &me) || me.Op != "updateLeverage" {
		t.Fatalf("err = %v", err)
	}
	if len(f.session.orders) != 0 {
		t.Errorf("order sent after leverage failure: %v", f.session.orders)
	}
}

func TestPlaceOrder_MissingCredentials(t *testing.T) {
	f := newFixture(domain.Credentials{})
	f.form.SetSize("0.1")

	_, err := f.coord.PlaceOrder(context.Background(), "0xabc", f.form.Draft(), validResult(t, "0.1"))
	var ce *domain.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
	if f.session.inits != 0 || len(f.session.leverages) != 0 || len(f.session.orders) != 0 {
		t.Error("trade attempted without credentials")
	}
}

func TestPlaceOrder_BlockedValidation(t *testing.T) {
	f := newFixture(testCreds)
	blocked := order.Validate(order.Input{WalletConnected: false})

	_, err := f.coord.PlaceOrder(context.Background(), "", f.form.Draft(), blocked)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if f.session.inits != 0 {
		t.Error("session touched for a blocked order")
	}
}

func TestPlaceOrder_InitializesOnce(t *testing.T) {
	f := newFixture(testCreds)
	for i := 0; i < 3; i++ {
		f.form.SetSize("0.1")
		if _, err := f.coord.PlaceOrder(context.Background(), "0xabc", f.form.Draft(), validResult(t, "0.1")); err != nil {
			t.Fatalf("PlaceOrder #%d: %v", i, err)
		}
	}
	if f.session.inits != 1 {
		t.Errorf("Initialize called %d times, want 1", f.session.inits)
	}
	if !f.coord.Initialized() {
		t.Error("expected initialized")
	}
}

func TestClosePosition_RejectsConcurrentDuplicate(t *testing.T) {
	f := newFixture(testCreds)
	f.session.closeGate = make(chan struct{})
	f.session.closeEnter = make(chan struct{}, 2)

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.ClosePosition(context.Background(), "0xabc", "BTC")
		done <- err
	}()

	select {
	case <-f.session.closeEnter:
	case <-time.After(time.Second):
		t.Fatal("first close never reached the session")
	}

	if got := f.coord.Closing(); len(got) != 1 || got[0] != "BTC" {
		t.Errorf("Closing() = %v", got)
	}

	_, err := f.coord.ClosePosition(context.Background(), "0xabc", "BTC")
	if !errors.Is(err, domain.ErrAlreadyInFlight) {
		t.Fatalf("second close err = %v, want ErrAlreadyInFlight", err)
	}
	if n := f.session.closes.Load(); n != 1 {
		t.Errorf("session closes = %d, duplicate must not hit the network", n)
	}

	close(f.session.closeGate)
	if err := <-done; err != nil {
		t.Fatalf("first close: %v", err)
	}
	if len(f.coord.Closing()) != 0 {
		t.Error("close flag not released")
	}

	if _, err := f.coord.ClosePosition(context.Background(), "0xabc", "BTC"); err != nil {
		t.Fatalf("third close: %v", err)
	}
	if n := f.session.closes.Load(); n != 2 {
		t.Errorf("session closes = %d, want 2", n)
	}
	if len(f.account.invalidated) != 2 || f.prices.invalidated != 2 {
		t.Errorf("invalidations account=%v prices=%d", f.account.invalidated, f.prices.invalidated)
	}
}

func TestClosePosition_DifferentSymbolsRunTogether(t *testing.T) {
	f := newFixture(testCreds)
	f.session.closeGate = make(chan struct{})
	f.session.closeEnter = make(chan struct{}, 2)

	var wg sync.WaitGroup
	for _, sym := range []string{"BTC", "ETH"} {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			if _, err := f.coord.ClosePosition(context.Background(), "0xabc", s); err != nil {
				t.Errorf("close %s: %v", s, err)
			}
		}(sym)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-f.session.closeEnter:
		case <-time.After(time.Second):
			t.Fatal("closes did not run concurrently")
		}
	}
	if got := f.coord.Closing(); len(got) != 2 || got[0] != "BTC" || got[1] != "ETH" {
		t.Errorf("Closing() = %v", got)
	}
	close(f.session.closeGate)
	wg.Wait()
}

func TestClosePosition_Failure(t *testing.T) {
	f := newFixture(testCreds)
	f.session.close = domain.ActionResult{Success: false, Error: "No position to close"}

	_, err := f.coord.ClosePosition(context.Background(), "0xabc", "SOL")
	var me *domain.MutationError
	if !errors.As(err, &me) || me.Message != "No position to close" {
		t.Fatalf("err = %v", err)
	}
	if len(f.coord.Closing()) != 0 {
		t.Error("close flag not released after failure")
	}
}

func TestClosePosition_RequiresWallet(t *testing.T) {
	f := newFixture(testCreds)
	if _, err := f.coord.ClosePosition(context.Background(), "", "BTC"); !errors.Is(err, domain.ErrWalletRequired) {
		t.Fatalf("err = %v", err)
	}
}
