// Package trading runs order submission and position close against the
// trading session and refreshes the caches those actions make stale.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"perp_go/internal/calc"
	"perp_go/internal/domain"
	"perp_go/internal/order"
)

// MessageOrderPlaced is recorded on the form after a successful submission.
const MessageOrderPlaced = "Order placed successfully!"

var errMissingPrivateKey = errors.New("please configure your private key in environment variables")

// AccountInvalidator marks wallet data stale after a mutation.
type AccountInvalidator interface {
	Invalidate(address string)
}

// PriceInvalidator marks prices stale after a mutation.
type PriceInvalidator interface {
	Invalidate()
}

// Recorder counts mutation outcomes. infra.Metrics implements it.
type Recorder interface {
	RecordOrderPlaced()
	RecordPositionClosed()
	RecordMutationFailed()
	RecordMutationBlocked()
}

// Config wires a Coordinator.
type Config struct {
	Session     domain.TradingSession
	Credentials domain.Credentials
	Account     AccountInvalidator
	Prices      PriceInvalidator
	Form        *order.Form
	Leverage    int
	Recorder    Recorder
}

// Coordinator guards each symbol against duplicate in-flight submissions
// and initializes the trading session lazily on first use.
type Coordinator struct {
	session  domain.TradingSession
	creds    domain.Credentials
	account  AccountInvalidator
	prices   PriceInvalidator
	form     *order.Form
	leverage int
	rec      Recorder
	logger   *slog.Logger

	initMu      sync.Mutex
	initialized bool

	mu      sync.Mutex
	placing map[string]struct{}
	closing map[string]struct{}
}

// NewCoordinator creates a coordinator from cfg.
func NewCoordinator(cfg Config) *Coordinator {
	lev := cfg.Leverage
	if lev <= 0 {
		lev = int(order.DefaultLeverage.IntPart())
	}
	rec := cfg.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Coordinator{
		session:  cfg.Session,
		creds:    cfg.Credentials,
		account:  cfg.Account,
		prices:   cfg.Prices,
		form:     cfg.Form,
		leverage: lev,
		rec:      rec,
		logger:   slog.Default().With("module", "trading"),
		placing:  make(map[string]struct{}),
		closing:  make(map[string]struct{}),
	}
}

// PlaceOrder sets the fixed isolated leverage and sends a market order for
// draft. validation must come from the same inputs; a blocked result is
// returned as a *domain.ValidationError without touching the network.
func (c *Coordinator) PlaceOrder(ctx context.Context, wallet string, draft domain.OrderDraft, validation order.Result) (domain.ActionResult, error) {
	if !validation.CanSubmit() {
		return domain.ActionResult{}, validation.Err()
	}
	size, ok := calc.ParseSize(draft.Size)
	if !ok {
		return domain.ActionResult{}, &domain.ValidationError{Reason: string(order.ReasonEnterSize), Message: order.MessageEnterSize}
	}

	if !c.acquire(c.placing, draft.Symbol) {
		c.rec.RecordMutationBlocked()
		return domain.ActionResult{}, fmt.Errorf("place order %s: %w", draft.Symbol, domain.ErrAlreadyInFlight)
	}
	defer c.release(c.placing, draft.Symbol)

	if err := c.ensureSession(ctx); err != nil {
		c.fail(err)
		return domain.ActionResult{}, err
	}

	lev := c.session.UpdateLeverage(ctx, draft.Symbol, domain.MarginModeIsolated, c.leverage)
	if !lev.Success {
		err := &domain.MutationError{Op: "updateLeverage", Symbol: draft.Symbol, Message: lev.Error}
		c.fail(err)
		return lev, err
	}

	res := c.session.PlaceMarketOrder(ctx, draft.Symbol, draft.Side.IsBuy(), size)
	if !res.Success {
		err := &domain.MutationError{Op: "placeOrder", Symbol: draft.Symbol, Message: res.Error}
		c.fail(err)
		return res, err
	}

	c.refresh(wallet)
	if c.form != nil {
		c.form.ClearSize()
		c.form.SetResult(order.Submission{Success: true, Message: MessageOrderPlaced})
	}
	c.rec.RecordOrderPlaced()
	c.logger.Info("Order placed",
		slog.String("symbol", draft.Symbol),
		slog.String("side", string(draft.Side)),
		slog.String("size", size.String()),
	)
	return res, nil
}

// ClosePosition closes the open position on symbol. A second close for the
// same symbol fails with domain.ErrAlreadyInFlight until the first resolves.
func (c *Coordinator) ClosePosition(ctx context.Context, wallet, symbol string) (domain.ActionResult, error) {
	if wallet == "" {
		return domain.ActionResult{}, domain.ErrWalletRequired
	}
	if !c.acquire(c.closing, symbol) {
		c.rec.RecordMutationBlocked()
		return domain.ActionResult{}, fmt.Errorf("close %s: %w", symbol, domain.ErrAlreadyInFlight)
	}
	defer c.release(c.closing, symbol)

	if err := c.ensureSession(ctx); err != nil {
		c.rec.RecordMutationFailed()
		return domain.ActionResult{}, err
	}

	res := c.session.ClosePosition(ctx, symbol)
	if !res.Success {
		c.rec.RecordMutationFailed()
		c.logger.Warn("Close rejected", slog.String("symbol", symbol), slog.String("error", res.Error))
		return res, &domain.MutationError{Op: "closePosition", Symbol: symbol, Message: res.Error}
	}

	c.refresh(wallet)
	c.rec.RecordPositionClosed()
	c.logger.Info("Position closed", slog.String("symbol", symbol))
	return res, nil
}

// Closing lists symbols with a close in flight.
func (c *Coordinator) Closing() []string {
	return c.list(c.closing)
}

// Placing reports whether an order for symbol is in flight.
func (c *Coordinator) Placing(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.placing[symbol]
	return ok
}

// Initialized reports whether the trading session is ready.
func (c *Coordinator) Initialized() bool {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.initialized
}

func (c *Coordinator) ensureSession(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized {
		return nil
	}
	if c.session == nil {
		return domain.ErrNotInitialized
	}
	if c.creds.PrivateKey == "" {
		return &domain.ConfigError{Field: "private_key", Err: errMissingPrivateKey}
	}
	if err := c.session.Initialize(ctx, c.creds); err != nil {
		return fmt.Errorf("initialize trading session: %w", err)
	}
	c.initialized = true
	c.logger.Info("Trading session initialized")
	return nil
}

func (c *Coordinator) refresh(wallet string) {
	if c.account != nil && wallet != "" {
		c.account.Invalidate(wallet)
	}
	if c.prices != nil {
		c.prices.Invalidate()
	}
}

func (c *Coordinator) fail(err error) {
	c.rec.RecordMutationFailed()
	c.logger.Warn("Order failed", slog.Any("error", err))
	if c.form != nil {
		c.form.SetResult(order.Submission{Success: false, Message: err.Error()})
	}
}

func (c *Coordinator) acquire(set map[string]struct{}, symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := set[symbol]; busy {
		return false
	}
	set[symbol] = struct{}{}
	return true
}

func (c *Coordinator) release(set map[string]struct{}, symbol string) {
	c.mu.Lock()
	delete(set, symbol)
	c.mu.Unlock()
}

func (c *Coordinator) list(set map[string]struct{}) []string {
	c.mu.Lock()
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	c.mu.Unlock()
	sort.Strings(out)
	return out
}

type nopRecorder struct{}

func (nopRecorder) RecordOrderPlaced()     {}
func (nopRecorder) RecordPositionClosed()  {}
func (nopRecorder) RecordMutationFailed()  {}
func (nopRecorder) RecordMutationBlocked() {}
