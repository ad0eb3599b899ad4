package domain

import (
	"time"
)

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarketRecord is the local, per-market metadata that the exchange does not
// provide: a cached icon and the user's favorite flag.
type MarketRecord struct {
	Symbol     string    `gorm:"primaryKey" json:"symbol"`
	IconPath   string    `json:"iconPath,omitempty"`
	IsFavorite bool      `json:"isFavorite"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Theme is the persisted UI theme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Settings keys in the AppConfig table.
const (
	SettingSelectedSymbol = "selected_symbol"
	SettingTheme          = "theme"
)

// Settings is the client state that survives a restart.
// Price, account and form data are never part of it.
type Settings struct {
	SelectedSymbol string `json:"selectedSymbol"`
	Theme          Theme  `json:"theme"`
}

// DefaultSettings is used when nothing has been persisted yet.
func DefaultSettings() Settings {
	return Settings{SelectedSymbol: "BTC", Theme: ThemeDark}
}
