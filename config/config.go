package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Registry RegistryConfig `mapstructure:"registry"`
	Network  NetworkConfig  `mapstructure:"network"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// RegistryConfig holds fork lifetime settings
type RegistryConfig struct {
	TTLSec           int `mapstructure:"ttl_sec"`
	SweepIntervalSec int `mapstructure:"sweep_interval_sec"`
}

// NetworkConfig holds settings for the upstream network used for hydration
type NetworkConfig struct {
	Endpoint          string  `mapstructure:"endpoint"`
	TimeoutSec        int     `mapstructure:"timeout_sec"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	FetchConcurrency  int     `mapstructure:"fetch_concurrency"`
	ClientCacheSize   int     `mapstructure:"client_cache_size"`
	Commitment        string  `mapstructure:"commitment"`
}

// EngineConfig holds execution engine settings
type EngineConfig struct {
	SignatureFeeLamports uint64 `mapstructure:"signature_fee_lamports"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("FORKBOX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8899)
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("registry.ttl_sec", 900)
	viper.SetDefault("registry.sweep_interval_sec", 60)

	// Network defaults
	viper.SetDefault("network.endpoint", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("network.timeout_sec", 30)
	viper.SetDefault("network.requests_per_second", 10)
	viper.SetDefault("network.burst", 20)
	viper.SetDefault("network.fetch_concurrency", 8)
	viper.SetDefault("network.client_cache_size", 16)
	viper.SetDefault("network.commitment", "confirmed")

	viper.SetDefault("engine.signature_fee_lamports", 5000)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	supportedLevels := map[string]bool{
		"debug":  true,
		"info":   true,
		"warn":   true,
		"error":  true,
		"dpanic": true,
		"panic":  true,
		"fatal":  true,
	}
	if !supportedLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Registry.TTLSec <= 0 {
		return fmt.Errorf("registry.ttl_sec must be positive, got: %d", c.Registry.TTLSec)
	}

	if c.Registry.SweepIntervalSec <= 0 {
		return fmt.Errorf("registry.sweep_interval_sec must be positive, got: %d", c.Registry.SweepIntervalSec)
	}

	if err := ValidateEndpoint(c.Network.Endpoint); err != nil {
		return fmt.Errorf("invalid network.endpoint: %w", err)
	}

	if c.Network.TimeoutSec <= 0 {
		return fmt.Errorf("network.timeout_sec must be positive, got: %d", c.Network.TimeoutSec)
	}

	if c.Network.RequestsPerSecond <= 0 {
		return fmt.Errorf("network.requests_per_second must be positive, got: %v", c.Network.RequestsPerSecond)
	}

	if c.Network.Burst <= 0 {
		return fmt.Errorf("network.burst must be positive, got: %d", c.Network.Burst)
	}

	if c.Network.FetchConcurrency <= 0 {
		return fmt.Errorf("network.fetch_concurrency must be positive, got: %d", c.Network.FetchConcurrency)
	}

	if c.Network.ClientCacheSize <= 0 {
		return fmt.Errorf("network.client_cache_size must be positive, got: %d", c.Network.ClientCacheSize)
	}

	switch c.Network.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid network.commitment: %s", c.Network.Commitment)
	}

	return nil
}

// ValidateEndpoint checks that endpoint is an absolute http(s) URL
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", endpoint)
	}
	return nil
}

// GetTTL returns the fork lifetime as a duration
func (c *Config) GetTTL() time.Duration {
	return time.Duration(c.Registry.TTLSec) * time.Second
}

// GetSweepInterval returns the reaper interval as a duration
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Registry.SweepIntervalSec) * time.Second
}

// GetNetworkTimeout returns the per-request network timeout as a duration
func (c *Config) GetNetworkTimeout() time.Duration {
	return time.Duration(c.Network.TimeoutSec) * time.Second
}
