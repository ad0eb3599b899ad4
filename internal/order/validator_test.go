package order

import (
	"errors"
	"testing"

	"perp_go/internal/domain"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func baseInput() Input {
	return Input{
		WalletConnected:  true,
		Online:           true,
		Symbol:           "ETH",
		Price:            dec("4000"),
		HasPrice:         true,
		Leverage:         decimal.NewFromInt(2),
		AvailableBalance: dec("1000"),
	}
}

func TestValidate_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Input)
		wantState  State
		wantReason Reason
		wantMsg    string
	}{
		{
			name:       "empty size",
			mutate:     func(in *Input) { in.Size = "" },
			wantState:  StateInvalid,
			wantReason: ReasonEnterSize,
			wantMsg:    "Enter Size",
		},
		{
			name: "insufficient margin",
			mutate: func(in *Input) {
				in.Size = "1"
				in.AvailableBalance = dec("500")
			},
			wantState:  StateInvalid,
			wantReason: ReasonInsufficientMargin,
			wantMsg:    "Not Enough Margin",
		},
		{
			name:       "below minimum margin",
			mutate:     func(in *Input) { in.Size = "0.001" },
			wantState:  StateInvalid,
			wantReason: ReasonMinimumMargin,
			wantMsg:    "Minimum Margin $10",
		},
		{
			name: "valid",
			mutate: func(in *Input) {
				in.Size = "1"
				in.Price = dec("100")
			},
			wantState: StateValid,
			wantMsg:   "Place Order",
		},
		{
			name: "wallet missing wins over everything",
			mutate: func(in *Input) {
				in.WalletConnected = false
				in.Online = false
				in.Size = ""
			},
			wantState:  StateInvalid,
			wantReason: ReasonConnectWallet,
			wantMsg:    "Connect Wallet",
		},
		{
			name: "offline",
			mutate: func(in *Input) {
				in.Online = false
				in.Size = "1"
				in.Price = dec("100")
			},
			wantState:  StateInvalid,
			wantReason: ReasonOffline,
			wantMsg:    "You're offline",
		},
		{
			name: "placing",
			mutate: func(in *Input) {
				in.Placing = true
				in.Size = "1"
			},
			wantState:  StateInvalid,
			wantReason: ReasonPlacing,
			wantMsg:    "Placing Order...",
		},
		{
			name:      "no price yet",
			mutate:    func(in *Input) { in.HasPrice = false; in.Size = "1" },
			wantState: StateIdle,
			wantMsg:   "Loading...",
		},
		{
			name:      "no symbol",
			mutate:    func(in *Input) { in.Symbol = ""; in.Size = "1" },
			wantState: StateIdle,
			wantMsg:   "Loading...",
		},
		{
			name:       "non-numeric size",
			mutate:     func(in *Input) { in.Size = "1e" },
			wantState:  StateInvalid,
			wantReason: ReasonEnterSize,
			wantMsg:    "Enter Size",
		},
		{
			name:       "negative size",
			mutate:     func(in *Input) { in.Size = "-1" },
			wantState:  StateInvalid,
			wantReason: ReasonEnterSize,
			wantMsg:    "Enter Size",
		},
		{
			name:       "huge exponent size",
			mutate:     func(in *Input) { in.Size = "1e100000000" },
			wantState:  StateInvalid,
			wantReason: ReasonEnterSize,
			wantMsg:    "Enter Size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			got := Validate(in)

			if got.State != tt.wantState {
				t.Errorf("State = %s, want %s", got.State, tt.wantState)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMsg)
			}
			if got.Validation.CanSubmit != (tt.wantState == StateValid) {
				t.Errorf("CanSubmit = %v for state %s", got.Validation.CanSubmit, got.State)
			}
		})
	}
}

func TestValidate_MarginFigures(t *testing.T) {
	in := baseInput()
	in.Size = "1"
	in.AvailableBalance = dec("500")
	got := Validate(in)

	if !got.OrderValue.Equal(dec("4000")) || !got.MarginRequired.Equal(dec("2000")) {
		t.Errorf("Unexpected figures: value=%v margin=%v", got.OrderValue, got.MarginRequired)
	}

	// The margin checks are independent: too much margin still meets the minimum.
	if got.Validation.HasEnoughMargin || !got.Validation.HasMinimumMargin {
		t.Errorf("Unexpected margin flags: %+v", got.Validation)
	}

	in.Size = "0.001"
	got = Validate(in)
	if !got.Validation.HasEnoughMargin || got.Validation.HasMinimumMargin {
		t.Errorf("Unexpected margin flags for tiny order: %+v", got.Validation)
	}
}

func TestValidate_Defaults(t *testing.T) {
	in := baseInput()
	in.Leverage = decimal.Zero
	in.Size = "0.004" // 16 / 2 = 8 < 10
	got := Validate(in)
	if got.Reason != ReasonMinimumMargin || !got.MarginRequired.Equal(dec("8")) {
		t.Errorf("Defaults not applied: %+v", got)
	}

	in.MinMargin = dec("5")
	got = Validate(in)
	if got.State != StateValid {
		t.Errorf("Custom minimum should pass, got %+v", got)
	}
}

func TestResult_Err(t *testing.T) {
	in := baseInput()
	in.Size = ""
	err := Validate(in).Err()

	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Reason != string(ReasonEnterSize) || ve.Message != "Enter Size" {
		t.Errorf("Expected ValidationError(enter size), got %v", err)
	}
	if domain.IsRetriable(err) {
		t.Error("Validation errors must not be retriable")
	}

	in.Size = "1"
	in.Price = dec("100")
	if err := Validate(in).Err(); err != nil {
		t.Errorf("Valid result should have no error, got %v", err)
	}
}
