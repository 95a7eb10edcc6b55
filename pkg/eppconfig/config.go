// Package eppconfig loads the inbox's runtime configuration: HTTP bind
// address, key/trust-registry file paths, and the executor/rate-limiter/
// nonce-registry/trust-registry backend selection of spec §6. Configuration
// is a YAML file (gopkg.in/yaml.v3, matching the teacher's helm.yaml
// convention) with environment variable overrides, matching the teacher's
// pkg/config.Load() os.Getenv pattern.
package eppconfig

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ExecutorConfig selects and parameterizes the C9 executor backend.
type ExecutorConfig struct {
	Type     string `yaml:"type" json:"type"` // "noop" | "file_queue" | "logger"
	QueueDir string `yaml:"queue_dir,omitempty" json:"queue_dir,omitempty"`
	LogFile  string `yaml:"log_file,omitempty" json:"log_file,omitempty"`
}

// RateLimiterConfig selects the C6 backend.
type RateLimiterConfig struct {
	Backend  string `yaml:"backend,omitempty" json:"backend,omitempty"` // "memory" | "redis"
	RedisURL string `yaml:"redis_url,omitempty" json:"redis_url,omitempty"`
}

// NonceRegistryConfig selects the C5 backend.
type NonceRegistryConfig struct {
	Backend        string `yaml:"backend,omitempty" json:"backend,omitempty"` // "memory" | "sqlite"
	SQLitePath     string `yaml:"sqlite_path,omitempty" json:"sqlite_path,omitempty"`
	CleanupSeconds int    `yaml:"cleanup_seconds,omitempty" json:"cleanup_seconds,omitempty"`
}

// TrustRegistryConfig selects the C4 backend.
type TrustRegistryConfig struct {
	Backend     string `yaml:"backend,omitempty" json:"backend,omitempty"` // "file" | "postgres"
	PostgresDSN string `yaml:"postgres_dsn,omitempty" json:"postgres_dsn,omitempty"`
}

// Config is the inbox's full runtime configuration (spec §6's enumerated
// options, plus this implementation's additive backend knobs).
type Config struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	PrivateKeyPath    string `yaml:"private_key_path" json:"private_key_path"`
	PublicKeyPath     string `yaml:"public_key_path" json:"public_key_path"`
	TrustRegistryPath string `yaml:"trust_registry_path" json:"trust_registry_path"`

	Executor      ExecutorConfig      `yaml:"executor" json:"executor"`
	RateLimiter   RateLimiterConfig   `yaml:"rate_limiter" json:"rate_limiter"`
	NonceRegistry NonceRegistryConfig `yaml:"nonce_registry" json:"nonce_registry"`
	TrustRegistry TrustRegistryConfig `yaml:"trust_registry" json:"trust_registry"`
}

// Default returns the spec-mandated defaults: in-memory nonce registry and
// rate limiter, file-backed trust registry, noop executor.
func Default() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              8443,
		PrivateKeyPath:    "epp_private_key.pem",
		PublicKeyPath:     "epp_public_key.hex",
		TrustRegistryPath: "trust_registry.json",
		Executor:          ExecutorConfig{Type: "noop"},
		RateLimiter:       RateLimiterConfig{Backend: "memory"},
		NonceRegistry:     NonceRegistryConfig{Backend: "memory", CleanupSeconds: 300},
		TrustRegistry:     TrustRegistryConfig{Backend: "file"},
	}
}

// Load reads a YAML config file at path. When the file is absent it writes
// Default() to path and uses it. Environment variable overrides are then
// applied to the returned Config (they are not written to the file).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("eppconfig: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("eppconfig: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the file if needed.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("eppconfig: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("eppconfig: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides layers EPP_* environment variables over cfg, matching
// the teacher's config.Load() os.Getenv convention.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EPP_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("EPP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("EPP_PRIVATE_KEY_PATH"); v != "" {
		cfg.PrivateKeyPath = v
	}
	if v := os.Getenv("EPP_PUBLIC_KEY_PATH"); v != "" {
		cfg.PublicKeyPath = v
	}
	if v := os.Getenv("EPP_TRUST_REGISTRY_PATH"); v != "" {
		cfg.TrustRegistryPath = v
	}
	if v := os.Getenv("EPP_EXECUTOR_TYPE"); v != "" {
		cfg.Executor.Type = v
	}
	if v := os.Getenv("EPP_RATE_LIMITER_BACKEND"); v != "" {
		cfg.RateLimiter.Backend = v
	}
	if v := os.Getenv("EPP_NONCE_REGISTRY_BACKEND"); v != "" {
		cfg.NonceRegistry.Backend = v
	}
	if v := os.Getenv("EPP_TRUST_REGISTRY_BACKEND"); v != "" {
		cfg.TrustRegistry.Backend = v
	}
}
