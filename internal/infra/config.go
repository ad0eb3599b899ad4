package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"perp_go/internal/cache"
	"perp_go/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is sent on every outbound request.
	DefaultUserAgent = "perp_go/1.0"
)

// PolicyConfig overrides a cache policy. Zero durations and a nil Retry
// keep the built-in value.
type PolicyConfig struct {
	StaleTime       time.Duration `yaml:"stale_time"`
	RefetchInterval time.Duration `yaml:"refetch_interval"`
	Retry           *int          `yaml:"retry"`
}

// Apply returns base with the configured fields replaced.
func (p PolicyConfig) Apply(base cache.Policy) cache.Policy {
	if p.StaleTime > 0 {
		base.StaleTime = p.StaleTime
	}
	if p.RefetchInterval > 0 {
		base.RefetchInterval = p.RefetchInterval
	}
	if p.Retry != nil {
		base.Retry = *p.Retry
	}
	return base
}

// Config holds every application setting. LoadConfig reads it from YAML and
// then overrides secrets from the environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Hyperliquid struct {
			InfoURL        string  `yaml:"info_url"`
			WSURL          string  `yaml:"ws_url"`
			TestnetInfoURL string  `yaml:"testnet_info_url"`
			TestnetWSURL   string  `yaml:"testnet_ws_url"`
			RequestsPerSec float64 `yaml:"requests_per_sec"`
			Burst          int     `yaml:"burst"`
			TimeoutSec     int     `yaml:"timeout_sec"`
			Stream         bool    `yaml:"stream"`
		} `yaml:"hyperliquid"`
		Backend struct {
			BaseURL    string `yaml:"base_url"`
			APIKey     string `yaml:"api_key"`
			APISecret  string `yaml:"api_secret"`
			TimeoutSec int    `yaml:"timeout_sec"`
		} `yaml:"backend"`
	} `yaml:"api"`

	Trading struct {
		Leverage      int             `yaml:"leverage"`
		MinMargin     decimal.Decimal `yaml:"min_margin"`
		Testnet       bool            `yaml:"testnet"`
		PrivateKey    string          `yaml:"private_key"`
		WalletAddress string          `yaml:"wallet_address"`
		VaultAddress  string          `yaml:"vault_address"`
	} `yaml:"trading"`

	Cache struct {
		Prices    PolicyConfig `yaml:"prices"`
		Markets   PolicyConfig `yaml:"markets"`
		Account   PolicyConfig `yaml:"account"`
		Fills     PolicyConfig `yaml:"fills"`
		Portfolio PolicyConfig `yaml:"portfolio"`
		Candles   PolicyConfig `yaml:"candles"`
	} `yaml:"cache"`

	Server struct {
		Addr           string  `yaml:"addr"`
		RequestsPerSec float64 `yaml:"requests_per_sec"`
		Burst          int     `yaml:"burst"`
	} `yaml:"server"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Icons struct {
		Dir     string `yaml:"dir"`
		BaseURL string `yaml:"base_url"`
		Size    int    `yaml:"size"`
	} `yaml:"icons"`

	UI struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"ui"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads path, applies .env and environment overrides, and validates.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	hl := c.API.Hyperliquid
	if !hasScheme(c.InfoURL(), "http://", "https://") {
		return &domain.ConfigError{Field: "api.hyperliquid.info_url", Err: fmt.Errorf("invalid URL %q", c.InfoURL())}
	}
	if hl.Stream && !hasScheme(c.WSURL(), "ws://", "wss://") {
		return &domain.ConfigError{Field: "api.hyperliquid.ws_url", Err: fmt.Errorf("invalid URL %q", c.WSURL())}
	}
	if hl.RequestsPerSec < 0 {
		return &domain.ConfigError{Field: "api.hyperliquid.requests_per_sec", Err: errors.New("must not be negative")}
	}
	if b := c.API.Backend.BaseURL; b != "" && !hasScheme(b, "http://", "https://") {
		return &domain.ConfigError{Field: "api.backend.base_url", Err: fmt.Errorf("invalid URL %q", b)}
	}
	if c.Trading.Leverage <= 0 {
		return &domain.ConfigError{Field: "trading.leverage", Err: errors.New("must be positive")}
	}
	if c.Trading.MinMargin.IsNegative() {
		return &domain.ConfigError{Field: "trading.min_margin", Err: errors.New("must not be negative")}
	}
	if c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: errors.New("required")}
	}
	if c.UI.Timezone != "" {
		if _, err := time.LoadLocation(c.UI.Timezone); err != nil {
			return &domain.ConfigError{Field: "ui.timezone", Err: err}
		}
	}
	return nil
}

// InfoURL is the info endpoint for the selected network.
func (c *Config) InfoURL() string {
	if c.Trading.Testnet && c.API.Hyperliquid.TestnetInfoURL != "" {
		return c.API.Hyperliquid.TestnetInfoURL
	}
	return c.API.Hyperliquid.InfoURL
}

// WSURL is the websocket endpoint for the selected network.
func (c *Config) WSURL() string {
	if c.Trading.Testnet && c.API.Hyperliquid.TestnetWSURL != "" {
		return c.API.Hyperliquid.TestnetWSURL
	}
	return c.API.Hyperliquid.WSURL
}

// Credentials returns the trading session credentials.
func (c *Config) Credentials() domain.Credentials {
	return domain.Credentials{
		PrivateKey:    c.Trading.PrivateKey,
		WalletAddress: c.Trading.WalletAddress,
		VaultAddress:  c.Trading.VaultAddress,
		Testnet:       c.Trading.Testnet,
	}
}

// Location is the zone trade times are rendered in.
func (c *Config) Location() *time.Location {
	if c.UI.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.UI.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func hasScheme(s string, schemes ...string) bool {
	for _, p := range schemes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// overrideWithEnv replaces secrets with environment values when set.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("PERP_PRIVATE_KEY"); v != "" {
		cfg.Trading.PrivateKey = v
	}
	if v := os.Getenv("PERP_WALLET_ADDRESS"); v != "" {
		cfg.Trading.WalletAddress = v
	}
	if v := os.Getenv("PERP_VAULT_ADDRESS"); v != "" {
		cfg.Trading.VaultAddress = v
	}
	if v := os.Getenv("PERP_BACKEND_KEY"); v != "" {
		cfg.API.Backend.APIKey = v
	}
	if v := os.Getenv("PERP_BACKEND_SECRET"); v != "" {
		cfg.API.Backend.APISecret = v
	}
	if v := os.Getenv("PERP_TESTNET"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Trading.Testnet = b
		}
	}
	if v := os.Getenv("PERP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
