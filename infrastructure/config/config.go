// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config is the top-level service configuration
type Config struct {
	Environment string
	Server      ServerConfig
	CapsuleAPI  CapsuleAPIConfig
	Auth        AuthConfig
	Log         LogConfig
}

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration
	EnableCORS      bool
	EnableMetrics   bool
}

// CapsuleAPIConfig holds the capsule platform client settings
type CapsuleAPIConfig struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	SpecCacheTTL time.Duration
}

// AuthConfig holds JWT verification settings
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	Enabled   bool
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying development
// defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", EnvDevelopment),
		Server: ServerConfig{
			Address:         getEnv("SERVER_ADDRESS", ":8080"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			EnableCORS:      getBool("ENABLE_CORS", true),
			EnableMetrics:   getBool("ENABLE_METRICS", true),
		},
		CapsuleAPI: CapsuleAPIConfig{
			BaseURL:      getEnv("CAPSULE_API_URL", "http://localhost:9090"),
			Token:        getEnv("CAPSULE_API_TOKEN", ""),
			Timeout:      getDuration("CAPSULE_API_TIMEOUT", 30*time.Second),
			SpecCacheTTL: getDuration("CAPSULE_SPEC_CACHE_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", "canvasd"),
			Enabled:   getBool("AUTH_ENABLED", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CapsuleAPI.BaseURL == "" {
		return fmt.Errorf("CAPSULE_API_URL is required")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED is true")
	}
	if c.Environment == EnvProduction && !c.Auth.Enabled {
		return fmt.Errorf("authentication cannot be disabled in production")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
