// Package order gates market-order submission on derived validation state.
package order

import (
	"perp_go/internal/calc"
	"perp_go/internal/domain"

	"github.com/shopspring/decimal"
)

// State of the submit decision.
type State string

const (
	StateIdle    State = "idle"
	StateInvalid State = "invalid"
	StateValid   State = "valid"
)

// Reason is the first failing check.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonConnectWallet      Reason = "connect wallet"
	ReasonPlacing            Reason = "placing"
	ReasonOffline            Reason = "offline"
	ReasonEnterSize          Reason = "enter size"
	ReasonInsufficientMargin Reason = "insufficient margin"
	ReasonMinimumMargin      Reason = "minimum margin"
)

var (
	// DefaultMinMargin is the smallest margin an order may commit, in USD.
	DefaultMinMargin = decimal.NewFromInt(10)

	// DefaultLeverage is the fixed leverage applied to every order.
	DefaultLeverage = decimal.NewFromInt(2)
)

// Input is everything the validator reads. It never fetches.
type Input struct {
	WalletConnected  bool
	Online           bool
	Placing          bool
	Symbol           string
	Price            decimal.Decimal
	HasPrice         bool
	Size             string
	Leverage         decimal.Decimal
	AvailableBalance decimal.Decimal
	MinMargin        decimal.Decimal // zero uses DefaultMinMargin
}

// Result is the submit decision with the figures it was based on.
type Result struct {
	State          State                  `json:"state"`
	Reason         Reason                 `json:"reason,omitempty"`
	Message        string                 `json:"message"`
	OrderValue     decimal.Decimal        `json:"orderValue"`
	MarginRequired decimal.Decimal        `json:"marginRequired"`
	Validation     domain.ValidationState `json:"validation"`
}

// CanSubmit reports whether the order may be sent.
func (r Result) CanSubmit() bool {
	return r.State == StateValid
}

// Err returns a *domain.ValidationError for any non-valid result.
func (r Result) Err() error {
	if r.State == StateValid {
		return nil
	}
	reason := r.Reason
	if r.State == StateIdle {
		reason = "idle"
	}
	return &domain.ValidationError{Reason: string(reason), Message: r.Message}
}

// Validate evaluates in in priority order; the first failing check decides
// the reason. The margin checks are computed independently of each other.
func Validate(in Input) Result {
	minMargin := in.MinMargin
	if !minMargin.IsPositive() {
		minMargin = DefaultMinMargin
	}
	leverage := in.Leverage
	if !leverage.IsPositive() {
		leverage = DefaultLeverage
	}

	var res Result
	price := decimal.Zero
	if in.HasPrice && in.Symbol != "" {
		price = in.Price
	}
	res.OrderValue = calc.OrderValue(in.Size, price)
	res.MarginRequired = calc.MarginRequired(res.OrderValue, leverage)

	_, validSize := calc.ParseSize(in.Size)
	v := domain.ValidationState{
		HasEnoughMargin:  res.MarginRequired.LessThanOrEqual(in.AvailableBalance),
		HasMinimumMargin: res.MarginRequired.GreaterThanOrEqual(minMargin),
		IsValidSize:      validSize,
	}
	v.CanSubmit = v.HasEnoughMargin && v.HasMinimumMargin && v.IsValidSize &&
		in.Online && in.WalletConnected && !in.Placing && price.IsPositive()
	res.Validation = v

	switch {
	case !in.WalletConnected:
		res.block(ReasonConnectWallet, minMargin)
	case in.Placing:
		res.block(ReasonPlacing, minMargin)
	case !in.Online:
		res.block(ReasonOffline, minMargin)
	case in.Symbol == "" || !price.IsPositive():
		res.State = StateIdle
		res.Message = MessageLoading
	case !v.IsValidSize:
		res.block(ReasonEnterSize, minMargin)
	case !v.HasEnoughMargin:
		res.block(ReasonInsufficientMargin, minMargin)
	case !v.HasMinimumMargin:
		res.block(ReasonMinimumMargin, minMargin)
	default:
		res.State = StateValid
		res.Message = MessagePlaceOrder
	}
	return res
}

func (r *Result) block(reason Reason, minMargin decimal.Decimal) {
	r.State = StateInvalid
	r.Reason = reason
	r.Message = Message(reason, minMargin)
}

// User-facing button texts.
const (
	MessageConnectWallet     = "Connect Wallet"
	MessagePlacing           = "Placing Order..."
	MessageOffline           = "You're offline"
	MessageEnterSize         = "Enter Size"
	MessageNotEnoughMargin   = "Not Enough Margin"
	MessagePlaceOrder        = "Place Order"
	MessageLoading           = "Loading..."
	messageMinimumMarginBase = "Minimum Margin $"
)

// Message maps a reason onto its button text.
func Message(reason Reason, minMargin decimal.Decimal) string {
	switch reason {
	case ReasonConnectWallet:
		return MessageConnectWallet
	case ReasonPlacing:
		return MessagePlacing
	case ReasonOffline:
		return MessageOffline
	case ReasonEnterSize:
		return MessageEnterSize
	case ReasonInsufficientMargin:
		return MessageNotEnoughMargin
	case ReasonMinimumMargin:
		return messageMinimumMarginBase + minMargin.String()
	default:
		return MessagePlaceOrder
	}
}
