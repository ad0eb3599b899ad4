package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"perp_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists client state in SQLite: settings and local market records.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (and migrates) the database at path. An empty path uses
// the per-user config directory.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		p, err := defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go driver, no cgo
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.AppConfig{}, &domain.MarketRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func defaultDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}
	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "perp_go", "data", "perp_go.db"), nil
}

// ======================================================================================
// Settings
// ======================================================================================

// SaveConfig saves one key/value pair.
func (s *Storage) SaveConfig(key, value string) error {
	return s.db.Save(&domain.AppConfig{Key: key, Value: value}).Error
}

// LoadConfigMap loads all key/value pairs.
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string, len(configs))
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}

// LoadSettings reads Settings, filling unset or invalid keys with defaults.
func (s *Storage) LoadSettings() (domain.Settings, error) {
	values, err := s.LoadConfigMap()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	settings := domain.DefaultSettings()
	if v := values[domain.SettingSelectedSymbol]; v != "" {
		settings.SelectedSymbol = v
	}
	if v := domain.Theme(values[domain.SettingTheme]); v.Valid() {
		settings.Theme = v
	}
	return settings, nil
}

// SaveSettings writes every Settings key in one transaction.
func (s *Storage) SaveSettings(settings domain.Settings) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		rows := []domain.AppConfig{
			{Key: domain.SettingSelectedSymbol, Value: settings.SelectedSymbol},
			{Key: domain.SettingTheme, Value: string(settings.Theme)},
		}
		for i := range rows {
			if err := tx.Save(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ======================================================================================
// Market records
// ======================================================================================

// UpsertMarket creates or updates a market record.
func (s *Storage) UpsertMarket(rec *domain.MarketRecord) error {
	return s.db.Save(rec).Error
}

// GetMarket returns the record for symbol, or nil when none exists.
func (s *Storage) GetMarket(symbol string) (*domain.MarketRecord, error) {
	var rec domain.MarketRecord
	err := s.db.First(&rec, "symbol = ?", symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarketRecords returns every record keyed by symbol.
func (s *Storage) MarketRecords() (map[string]domain.MarketRecord, error) {
	var recs []domain.MarketRecord
	if err := s.db.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make(map[string]domain.MarketRecord, len(recs))
	for _, r := range recs {
		out[r.Symbol] = r
	}
	return out, nil
}

// SetIconPath records where the icon for symbol was saved.
func (s *Storage) SetIconPath(symbol, path string) error {
	rec, err := s.GetMarket(symbol)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &domain.MarketRecord{Symbol: symbol}
	}
	rec.IconPath = path
	return s.db.Save(rec).Error
}

// ToggleFavorite flips the favorite flag, creating the record if needed.
func (s *Storage) ToggleFavorite(symbol string) (bool, error) {
	var fav bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rec domain.MarketRecord
		err := tx.First(&rec, "symbol = ?", symbol).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = domain.MarketRecord{Symbol: symbol}
		} else if err != nil {
			return err
		}
		rec.IsFavorite = !rec.IsFavorite
		fav = rec.IsFavorite
		return tx.Save(&rec).Error
	})
	return fav, err
}

// DeleteMarket removes the record for symbol.
func (s *Storage) DeleteMarket(symbol string) error {
	return s.db.Where("symbol = ?", symbol).Delete(&domain.MarketRecord{}).Error
}
