// Package config loads server configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host           string          `yaml:"host"`
	Port           string          `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles query traffic per caller. Zero values fall back
// to the defaults; set enabled: false to turn throttling off entirely.
type RateLimitConfig struct {
	Enabled   *bool `yaml:"enabled"`
	PerMinute int   `yaml:"per_minute"`
	Burst     int   `yaml:"burst"`
}

// IsEnabled reports whether throttling is on (the default).
func (r RateLimitConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// ListenAddr returns the host:port pair to bind.
func (s ServerConfig) ListenAddr() string {
	return s.Host + ":" + s.Port
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AuthConfig configures API authentication. When disabled every caller gets
// the admin role.
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	JWTSecret string   `yaml:"jwt_secret"`
	APIKeys   []APIKey `yaml:"api_keys"`
}

// APIKey is one static credential. The name is used for audit logging only.
type APIKey struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
	Role string `yaml:"role"`
}

// StorageConfig configures the durable journal log.
type StorageConfig struct {
	JournalLog string `yaml:"journal_log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
			RateLimit:      RateLimitConfig{PerMinute: 100, Burst: 10},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the config file at path when it exists, then applies
// environment overrides. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if logPath := os.Getenv("JOURNAL_LOG"); logPath != "" {
		c.Storage.JournalLog = logPath
	}
	// ALLOWED_ORIGINS is a comma-separated list of additional origins.
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, origin)
			}
		}
	}
}
