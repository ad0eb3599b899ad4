// Package state holds client state shared across the app: settings that
// survive a restart and the session that does not.
package state

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"perp_go/internal/domain"
)

// SettingsStore persists Settings. storage.Storage implements it.
type SettingsStore interface {
	LoadSettings() (domain.Settings, error)
	SaveSettings(domain.Settings) error
}

// SymbolSelector receives symbol changes. order.Form implements it.
type SymbolSelector interface {
	SelectSymbol(symbol string)
}

// Session is the ephemeral region: lost on restart.
type Session struct {
	Wallet string `json:"wallet"`
	Online bool   `json:"online"`
}

// WalletConnected reports whether a wallet address is set.
func (s Session) WalletConnected() bool {
	return s.Wallet != ""
}

// State is the application state container.
type State struct {
	mu       sync.RWMutex
	settings domain.Settings
	session  Session

	store SettingsStore
	form  SymbolSelector

	nextID            uint64
	settingsListeners map[uint64]func(domain.Settings)
	sessionListeners  map[uint64]func(Session)

	logger *slog.Logger
}

// New loads persisted settings from store. A nil store keeps settings in memory.
func New(store SettingsStore, form SymbolSelector) (*State, error) {
	s := &State{
		settings:          domain.DefaultSettings(),
		session:           Session{Online: true},
		store:             store,
		form:              form,
		settingsListeners: make(map[uint64]func(domain.Settings)),
		sessionListeners:  make(map[uint64]func(Session)),
		logger:            slog.Default().With("module", "state"),
	}
	if store != nil {
		loaded, err := store.LoadSettings()
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		s.settings = loaded
	}
	if form != nil {
		form.SelectSymbol(s.settings.SelectedSymbol)
	}
	return s, nil
}

// Settings returns the persisted region.
func (s *State) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Session returns the ephemeral region.
func (s *State) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// SelectedSymbol is the market the order form trades.
func (s *State) SelectedSymbol() string {
	return s.Settings().SelectedSymbol
}

// SelectSymbol persists symbol and forwards it to the order form.
func (s *State) SelectSymbol(symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return fmt.Errorf("select symbol: %w", domain.ErrInvalidSymbol)
	}
	err := s.updateSettings(func(st *domain.Settings) { st.SelectedSymbol = symbol })
	if s.form != nil {
		s.form.SelectSymbol(symbol)
	}
	return err
}

// SetTheme persists theme.
func (s *State) SetTheme(theme domain.Theme) error {
	if !theme.Valid() {
		return &domain.ValidationError{Reason: "theme", Message: fmt.Sprintf("unknown theme %q", theme)}
	}
	return s.updateSettings(func(st *domain.Settings) { st.Theme = theme })
}

// ToggleTheme flips between light and dark.
func (s *State) ToggleTheme() (domain.Theme, error) {
	next := domain.ThemeDark
	if s.Settings().Theme == domain.ThemeDark {
		next = domain.ThemeLight
	}
	return next, s.SetTheme(next)
}

// SetWallet connects (or with "" disconnects) a wallet and returns the
// previous address.
func (s *State) SetWallet(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	var prev string
	s.updateSession(func(ss *Session) {
		prev = ss.Wallet
		ss.Wallet = address
	})
	return prev
}

// SetOnline records network reachability.
func (s *State) SetOnline(online bool) {
	s.updateSession(func(ss *Session) { ss.Online = online })
}

// OnSettings registers fn for settings changes.
func (s *State) OnSettings(fn func(domain.Settings)) (unregister func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.settingsListeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.settingsListeners, id)
		s.mu.Unlock()
	}
}

// OnSession registers fn for session changes.
func (s *State) OnSession(fn func(Session)) (unregister func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.sessionListeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.sessionListeners, id)
		s.mu.Unlock()
	}
}

// updateSettings applies mutate, writes through to the store and notifies.
// The in-memory value is kept when the write fails.
func (s *State) updateSettings(mutate func(*domain.Settings)) error {
	s.mu.Lock()
	prev := s.settings
	mutate(&s.settings)
	next := s.settings
	listeners := make([]func(domain.Settings), 0, len(s.settingsListeners))
	for _, fn := range s.settingsListeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if next == prev {
		return nil
	}

	var err error
	if s.store != nil {
		if err = s.store.SaveSettings(next); err != nil {
			s.logger.Warn("Failed to persist settings", slog.Any("error", err))
			err = fmt.Errorf("save settings: %w", err)
		}
	}
	for _, fn := range listeners {
		fn(next)
	}
	return err
}

func (s *State) updateSession(mutate func(*Session)) {
	s.mu.Lock()
	prev := s.session
	mutate(&s.session)
	next := s.session
	listeners := make([]func(Session), 0, len(s.sessionListeners))
	for _, fn := range s.sessionListeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if next == prev {
		return
	}
	for _, fn := range listeners {
		fn(next)
	}
}
