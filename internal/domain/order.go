package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order draft.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// IsBuy maps the draft side onto the exchange buy flag.
func (s Side) IsBuy() bool {
	return s == SideLong
}

// Valid reports whether s is long or short.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

const (
	MarginModeIsolated = "isolated"
	MarginModeCross    = "cross"
)

// OrderDraft is the market order being edited. Size stays a raw string
// because the user may type anything into it.
type OrderDraft struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Size     string          `json:"size"`
	Leverage decimal.Decimal `json:"leverage"`
}

// ValidationState is derived on every input change and never stored.
type ValidationState struct {
	HasEnoughMargin  bool `json:"hasEnoughMargin"`
	HasMinimumMargin bool `json:"hasMinimumMargin"`
	IsValidSize      bool `json:"isValidSize"`
	CanSubmit        bool `json:"canSubmit"`
}

// ActionResult is the envelope every trading backend action returns.
// Callers check Success instead of relying on a Go error.
type ActionResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Credentials authorise a trading session.
type Credentials struct {
	PrivateKey    string
	WalletAddress string
	VaultAddress  string
	Testnet       bool
}
