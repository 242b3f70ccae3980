// Package config provides configuration management for the scanner.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/provider"
	"github.com/eddiefleurent/pmcc_scanner/internal/screener"
	"github.com/eddiefleurent/pmcc_scanner/internal/storage"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"
)

// Provider names accepted in provider.name.
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderMock         = "mock"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Scan        ScanConfig        `yaml:"scan"`
	Storage     StorageConfig     `yaml:"storage"`
	Server      ServerConfig      `yaml:"server"`
}

// EnvironmentConfig defines logging settings.
type EnvironmentConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // text | json
}

// ProviderConfig defines the quote/chain vendor.
type ProviderConfig struct {
	Name           string               `yaml:"name"` // alphavantage | mock
	APIKey         string               `yaml:"api_key"`
	BaseURL        string               `yaml:"base_url"`
	CallsPerMinute int                  `yaml:"calls_per_minute"`
	PriceTimeout   time.Duration        `yaml:"price_timeout"`
	ChainTimeout   time.Duration        `yaml:"chain_timeout"`
	MockSeed       uint64               `yaml:"mock_seed"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig mirrors provider.CircuitBreakerSettings.
type CircuitBreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
}

// ScanConfig tunes the live scan and the store-backed screen.
type ScanConfig struct {
	Concurrency         int `yaml:"concurrency"`
	LongCandidateLimit  int `yaml:"long_candidate_limit"`
	ShortCandidateLimit int `yaml:"short_candidate_limit"`
	PerLongLimit        int `yaml:"per_long_limit"`
}

// StorageConfig selects the filter and option store.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // json | postgres
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
}

// ServerConfig defines the HTTP API listener.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

// Default returns a configuration that runs against the mock provider with a
// local JSON store.
func Default() *Config {
	cb := provider.DefaultCircuitBreakerSettings()
	return &Config{
		Environment: EnvironmentConfig{LogLevel: "info", LogFormat: "text"},
		Provider: ProviderConfig{
			Name:           ProviderMock,
			BaseURL:        provider.DefaultAlphaVantageURL,
			CallsPerMinute: provider.DefaultCallsPerMinute,
			PriceTimeout:   screener.DefaultPriceTimeout,
			ChainTimeout:   screener.DefaultChainTimeout,
			MockSeed:       1,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:      true,
				MaxRequests:  cb.MaxRequests,
				Interval:     cb.Interval,
				Timeout:      cb.Timeout,
				MinRequests:  cb.MinRequests,
				FailureRatio: cb.FailureRatio,
			},
		},
		Scan: ScanConfig{
			Concurrency:         1,
			LongCandidateLimit:  screener.DefaultMaxPerSide,
			ShortCandidateLimit: screener.DefaultMaxPerSide,
			PerLongLimit:        screener.DefaultPerLongLimit,
		},
		Storage: StorageConfig{Driver: storage.DriverJSON, Path: "filters.json"},
		Server:  ServerConfig{Addr: ":5001"},
	}
}

// Load reads and parses the configuration file from the specified path.
// Unset fields keep the values from Default.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	config := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Environment.LogLevel); err != nil {
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}
	if c.Environment.LogFormat != "text" && c.Environment.LogFormat != "json" {
		return fmt.Errorf("environment.log_format must be 'text' or 'json'")
	}

	switch c.Provider.Name {
	case ProviderAlphaVantage:
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required for alphavantage")
		}
		if c.Provider.BaseURL == "" {
			return fmt.Errorf("provider.base_url is required for alphavantage")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("provider.name must be 'alphavantage' or 'mock'")
	}
	if c.Provider.CallsPerMinute <= 0 {
		return fmt.Errorf("provider.calls_per_minute must be > 0")
	}
	if c.Provider.PriceTimeout <= 0 || c.Provider.ChainTimeout <= 0 {
		return fmt.Errorf("provider.price_timeout and provider.chain_timeout must be > 0")
	}
	if cb := c.Provider.CircuitBreaker; cb.Enabled {
		if cb.FailureRatio <= 0 || cb.FailureRatio > 1 {
			return fmt.Errorf("provider.circuit_breaker.failure_ratio must be in (0,1]")
		}
		if cb.MaxRequests == 0 {
			return fmt.Errorf("provider.circuit_breaker.max_requests must be > 0")
		}
		if cb.Timeout <= 0 {
			return fmt.Errorf("provider.circuit_breaker.timeout must be > 0")
		}
	}

	if c.Scan.Concurrency < 1 {
		return fmt.Errorf("scan.concurrency must be >= 1")
	}
	if c.Scan.LongCandidateLimit < 1 || c.Scan.ShortCandidateLimit < 1 {
		return fmt.Errorf("scan.long_candidate_limit and scan.short_candidate_limit must be >= 1")
	}
	if c.Scan.PerLongLimit < 0 {
		return fmt.Errorf("scan.per_long_limit must be >= 0")
	}

	switch c.Storage.Driver {
	case storage.DriverJSON:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the json driver")
		}
	case storage.DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be 'json' or 'postgres'")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// StorageTarget returns the path or URL handed to storage.NewStorage.
func (c *Config) StorageTarget() string {
	if c.Storage.Driver == storage.DriverPostgres {
		return c.Storage.DatabaseURL
	}
	return c.Storage.Path
}

// CircuitBreakerSettings converts the YAML block for the provider package.
func (c *Config) CircuitBreakerSettings() provider.CircuitBreakerSettings {
	cb := c.Provider.CircuitBreaker
	return provider.CircuitBreakerSettings{
		MaxRequests:  cb.MaxRequests,
		Interval:     cb.Interval,
		Timeout:      cb.Timeout,
		MinRequests:  cb.MinRequests,
		FailureRatio: cb.FailureRatio,
	}
}

// ScannerConfig converts the scan and provider blocks for screener.NewScanner.
func (c *Config) ScannerConfig() screener.ScannerConfig {
	return screener.ScannerConfig{
		PriceTimeout:        c.Provider.PriceTimeout,
		ChainTimeout:        c.Provider.ChainTimeout,
		Concurrency:         c.Scan.Concurrency,
		LongCandidateLimit:  c.Scan.LongCandidateLimit,
		ShortCandidateLimit: c.Scan.ShortCandidateLimit,
	}
}

// NewLogger builds a logrus logger at the configured level and format.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.Environment.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
