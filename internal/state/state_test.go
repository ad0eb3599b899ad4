package state

import (
	"errors"
	"testing"

	"perp_go/internal/domain"
)

type memStore struct {
	saved   []domain.Settings
	initial domain.Settings
	saveErr error
}

func (m *memStore) LoadSettings() (domain.Settings, error) { return m.initial, nil }

func (m *memStore) SaveSettings(s domain.Settings) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, s)
	m.initial = s
	return nil
}

type recordingForm struct{ symbols []string }

func (f *recordingForm) SelectSymbol(symbol string) { f.symbols = append(f.symbols, symbol) }

func TestNew_LoadsSettings(t *testing.T) {
	store := &memStore{initial: domain.Settings{SelectedSymbol: "ETH", Theme: domain.ThemeLight}}
	form := &recordingForm{}

	s, err := New(store, form)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := s.Settings(); got.SelectedSymbol != "ETH" || got.Theme != domain.ThemeLight {
		t.Errorf("settings = %+v", got)
	}
	if len(form.symbols) != 1 || form.symbols[0] != "ETH" {
		t.Errorf("form symbols = %v", form.symbols)
	}
	if !s.Session().Online || s.Session().WalletConnected() {
		t.Errorf("session = %+v", s.Session())
	}
}

func TestSelectSymbol(t *testing.T) {
	store := &memStore{initial: domain.DefaultSettings()}
	form := &recordingForm{}
	s, _ := New(store, form)

	var notified []string
	unregister := s.OnSettings(func(st domain.Settings) { notified = append(notified, st.SelectedSymbol) })

	if err := s.SelectSymbol(" SOL "); err != nil {
		t.Fatalf("SelectSymbol: %v", err)
	}
	if s.SelectedSymbol() != "SOL" {
		t.Errorf("selected = %q", s.SelectedSymbol())
	}
	if len(store.saved) != 1 || store.saved[0].SelectedSymbol != "SOL" {
		t.Errorf("saved = %+v", store.saved)
	}
	if form.symbols[len(form.symbols)-1] != "SOL" {
		t.Errorf("form not told about SOL: %v", form.symbols)
	}

	// Same symbol: no write, no notification.
	if err := s.SelectSymbol("SOL"); err != nil {
		t.Fatal(err)
	}
	if len(store.saved) != 1 || len(notified) != 1 {
		t.Errorf("unchanged symbol persisted again: saved=%d notified=%d", len(store.saved), len(notified))
	}

	unregister()
	_ = s.SelectSymbol("ETH")
	if len(notified) != 1 {
		t.Errorf("listener fired after unregister")
	}

	if err := s.SelectSymbol("  "); !errors.Is(err, domain.ErrInvalidSymbol) {
		t.Errorf("empty symbol err = %v", err)
	}
}

func TestThemes(t *testing.T) {
	store := &memStore{initial: domain.DefaultSettings()}
	s, _ := New(store, nil)

	theme, err := s.ToggleTheme()
	if err != nil || theme != domain.ThemeLight {
		t.Fatalf("toggle = %v, %v", theme, err)
	}
	if store.initial.Theme != domain.ThemeLight {
		t.Errorf("stored theme = %v", store.initial.Theme)
	}

	var ve *domain.ValidationError
	if err := s.SetTheme("sepia"); !errors.As(err, &ve) {
		t.Errorf("unknown theme err = %v", err)
	}
}

func TestSettingsKeptWhenSaveFails(t *testing.T) {
	store := &memStore{initial: domain.DefaultSettings()}
	s, _ := New(store, nil)
	store.saveErr = errors.New("disk full")

	if err := s.SetTheme(domain.ThemeLight); err == nil {
		t.Fatal("expected save error")
	}
	if s.Settings().Theme != domain.ThemeLight {
		t.Error("in-memory theme should still change")
	}
}

func TestSession(t *testing.T) {
	s, _ := New(nil, nil)

	var events []Session
	unregister := s.OnSession(func(ss Session) { events = append(events, ss) })
	defer unregister()

	if prev := s.SetWallet(" 0xABC "); prev != "" {
		t.Errorf("prev = %q", prev)
	}
	if s.Session().Wallet != "0xabc" {
		t.Errorf("wallet = %q", s.Session().Wallet)
	}
	if prev := s.SetWallet(""); prev != "0xabc" {
		t.Errorf("prev = %q", prev)
	}
	s.SetOnline(false)
	s.SetOnline(false)

	if len(events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	if events[2].Online {
		t.Error("expected offline event")
	}
}
