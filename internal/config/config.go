// Package config loads YAML configuration: one LoadXConfig(path) per
// concern, unmarshalled with gopkg.in/yaml.v3, with a DefaultX() fallback
// so a missing file never blocks startup in dev.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StrategyConfig holds detection and auto-execute thresholds.
type StrategyConfig struct {
	MinSpreadPct        float64 `yaml:"min_spread_pct"`
	MinNetAPRPct        float64 `yaml:"min_net_apr_pct"`
	MinUOSScore         float64 `yaml:"min_uos_score"`
	MinUOSAutoExecute   float64 `yaml:"min_uos_auto_execute"`
	MinVolume24hUSD     float64 `yaml:"min_volume_24h_usd"`
	MinLiquidityUSD     float64 `yaml:"min_liquidity_usd"`
	DetectionIntervalS  int     `yaml:"detection_interval_seconds"`
	OpportunityTTLMin   int     `yaml:"opportunity_ttl_minutes"`
	OnlyExecutable      bool    `yaml:"only_executable"`
	AutoExecute         bool    `yaml:"auto_execute"`
	Mode                string  `yaml:"mode"` // "discovery" or "live"
	IsRunning           bool    `yaml:"is_running"`
	DefaultLeverage     float64 `yaml:"default_leverage"`
	MinNotionalUSD      float64 `yaml:"min_notional_usd"`
	DefaultCapitalUSD   float64 `yaml:"default_capital_usd"`
}

// DefaultStrategyConfig mirrors the numeric defaults baked into the
// original opportunity-detector service for thresholds otherwise left
// unstated.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		MinSpreadPct:       0.01,
		MinNetAPRPct:       10.0,
		MinUOSScore:        50,
		MinUOSAutoExecute:  75,
		MinVolume24hUSD:    1_000_000,
		MinLiquidityUSD:    100_000,
		DetectionIntervalS: 10,
		OpportunityTTLMin:  30,
		OnlyExecutable:     true,
		AutoExecute:        false,
		Mode:               "discovery",
		IsRunning:          true,
		DefaultLeverage:    3,
		MinNotionalUSD:     6,
		DefaultCapitalUSD:  100,
	}
}

func (s StrategyConfig) DetectionInterval() time.Duration {
	return time.Duration(s.DetectionIntervalS) * time.Second
}

func (s StrategyConfig) OpportunityTTL() time.Duration {
	return time.Duration(s.OpportunityTTLMin) * time.Minute
}

// CapitalConfig holds allocator pool and cap parameters.
type CapitalConfig struct {
	MaxConcurrentCoins int     `yaml:"max_concurrent_coins"`
	ReserveTargetPct   float64 `yaml:"reserve_target_pct"`
	BalanceSyncSeconds int     `yaml:"balance_sync_seconds"`
}

func DefaultCapitalConfig() CapitalConfig {
	return CapitalConfig{
		MaxConcurrentCoins: 5,
		ReserveTargetPct:   0.10,
		BalanceSyncSeconds: 60,
	}
}

// ExchangeConfig describes one configured venue.
type ExchangeConfig struct {
	Slug           string `yaml:"slug"`
	APIType        string `yaml:"api_type"` // "ccxt_generic", "hyperliquid", "dydx"
	Enabled        bool   `yaml:"enabled"`
	APIKeyEnv      string `yaml:"api_key_env"`
	APISecretEnv   string `yaml:"api_secret_env"`
	RateLimitWidth int    `yaml:"rate_limit_width"`
	// Role is "primary" (default, zero value) or "reference". Reference
	// venues feed the aggregator's cross-check path instead of the
	// tradable funding-rate set.
	Role string `yaml:"role"`
}

// IsReference reports whether this venue plays the aggregator's external
// reference-feed role rather than a tradable primary source.
func (e ExchangeConfig) IsReference() bool {
	return e.Role == "reference"
}

// ExchangesConfig is the full venue list.
type ExchangesConfig struct {
	Exchanges []ExchangeConfig `yaml:"exchanges"`
}

// HasCredentials reports whether the environment carries both key and
// secret for this venue.
func (e ExchangeConfig) HasCredentials() bool {
	if e.APIKeyEnv == "" || e.APISecretEnv == "" {
		return false
	}
	return os.Getenv(e.APIKeyEnv) != "" && os.Getenv(e.APISecretEnv) != ""
}

// loadYAML reads and unmarshals path into out, returning a wrapped error.
func loadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadStrategyConfig loads strategy thresholds, falling back to defaults
// when the file does not exist.
func LoadStrategyConfig(path string) (StrategyConfig, error) {
	cfg := DefaultStrategyConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if err := loadYAML(path, &cfg); err != nil {
		return StrategyConfig{}, err
	}
	return cfg, nil
}

// LoadCapitalConfig loads allocator parameters.
func LoadCapitalConfig(path string) (CapitalConfig, error) {
	cfg := DefaultCapitalConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if err := loadYAML(path, &cfg); err != nil {
		return CapitalConfig{}, err
	}
	return cfg, nil
}

// LoadExchangesConfig loads the venue list.
func LoadExchangesConfig(path string) (ExchangesConfig, error) {
	var cfg ExchangesConfig
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if err := loadYAML(path, &cfg); err != nil {
		return ExchangesConfig{}, err
	}
	return cfg, nil
}

// Env holds the process-level environment configuration: database and
// cache connection strings, the encryption key for at-rest API
// credentials, and the HTTP bind port.
type Env struct {
	DatabaseURL   string
	RedisURL      string
	EncryptionKey string
	HTTPPort      int
}

// LoadEnv reads DATABASE_URL, REDIS_URL, ENCRYPTION_KEY, and HTTP_PORT
// from the environment. It does not itself validate connectivity; callers
// map that to CLI exit code 2/3.
func LoadEnv() Env {
	port := 8080
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	return Env{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		HTTPPort:      port,
	}
}
