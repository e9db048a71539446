package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration.
type Config struct {
	Server    ServerConfig
	Registry  RegistryConfig
	Sandbox   SandboxConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// RegistryConfig holds app registry configuration.
type RegistryConfig struct {
	MaxApps int    `envconfig:"MAX_APPS" default:"16"`
	DataDir string `envconfig:"DATA_DIR" default:"/var/lib/appos"`
	AppsDir string `envconfig:"APPS_DIR" default:"/var/lib/appos/apps"`
}

// SandboxConfig holds sandbox pool configuration.
type SandboxConfig struct {
	PoolSize          int    `envconfig:"SANDBOX_POOL_SIZE" default:"8"`
	MemoryLimit       uint32 `envconfig:"SANDBOX_MEMORY_LIMIT" default:"65536"`
	TimeLimitMS       uint32 `envconfig:"SANDBOX_TIME_LIMIT_MS" default:"5000"`
	AllowUnclassified bool   `envconfig:"SANDBOX_ALLOW_UNCLASSIFIED" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds per-IP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8090",
			Host: "0.0.0.0",
		},
		Registry: RegistryConfig{
			MaxApps: 16,
			DataDir: "/var/lib/appos",
			AppsDir: "/var/lib/appos/apps",
		},
		Sandbox: SandboxConfig{
			PoolSize:    8,
			MemoryLimit: 65536,
			TimeLimitMS: 5000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
