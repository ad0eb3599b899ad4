package order

import (
	"sync"

	"perp_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Submission is the outcome of the last submit, cleared on any field edit.
type Submission struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Form is the single owner of the OrderDraft.
type Form struct {
	mu       sync.RWMutex
	draft    domain.OrderDraft
	result   *Submission
	onChange []func(domain.OrderDraft)
}

// NewForm starts a long draft on symbol with the fixed leverage.
func NewForm(symbol string, leverage decimal.Decimal) *Form {
	if !leverage.IsPositive() {
		leverage = DefaultLeverage
	}
	return &Form{draft: domain.OrderDraft{Symbol: symbol, Side: domain.SideLong, Leverage: leverage}}
}

// Draft returns a copy of the current draft.
func (f *Form) Draft() domain.OrderDraft {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.draft
}

// Result returns the last submission outcome, or nil.
func (f *Form) Result() *Submission {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.result == nil {
		return nil
	}
	r := *f.result
	return &r
}

// SetSide changes the side and clears any previous submission result.
func (f *Form) SetSide(side domain.Side) error {
	if !side.Valid() {
		return &domain.ValidationError{Reason: "side", Message: "side must be long or short"}
	}
	f.update(func(d *domain.OrderDraft) { d.Side = side }, true)
	return nil
}

// SetSize stores the raw size text and clears any previous submission result.
func (f *Form) SetSize(size string) {
	f.update(func(d *domain.OrderDraft) { d.Size = size }, true)
}

// SelectSymbol switches the draft symbol. The size is reset only when the
// symbol actually changes.
func (f *Form) SelectSymbol(symbol string) {
	f.mu.RLock()
	same := f.draft.Symbol == symbol
	f.mu.RUnlock()
	if same || symbol == "" {
		return
	}
	f.update(func(d *domain.OrderDraft) {
		d.Symbol = symbol
		d.Size = ""
	}, true)
}

// ClearSize empties the size after a successful submission. The result is kept.
func (f *Form) ClearSize() {
	f.update(func(d *domain.OrderDraft) { d.Size = "" }, false)
}

// SetResult records the outcome of a submission.
func (f *Form) SetResult(s Submission) {
	f.mu.Lock()
	f.result = &s
	f.mu.Unlock()
}

// ResetResult clears the submission outcome.
func (f *Form) ResetResult() {
	f.mu.Lock()
	f.result = nil
	f.mu.Unlock()
}

// OnChange registers fn for draft changes.
func (f *Form) OnChange(fn func(domain.OrderDraft)) {
	f.mu.Lock()
	f.onChange = append(f.onChange, fn)
	f.mu.Unlock()
}

func (f *Form) update(mutate func(*domain.OrderDraft), resetResult bool) {
	f.mu.Lock()
	mutate(&f.draft)
	if resetResult {
		f.result = nil
	}
	draft := f.draft
	listeners := append([]func(domain.OrderDraft){}, f.onChange...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(draft)
	}
}
