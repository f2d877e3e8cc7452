// Package config provides configuration loading and management for forge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chainweave/forge/model"
)

// Config represents the complete forge configuration.
type Config struct {
	Server   ServerConfig          `yaml:"server"`
	Database DatabaseConfig        `yaml:"database"`
	Models   *model.RegistryConfig `yaml:"models,omitempty"`
	Sandbox  SandboxConfig         `yaml:"sandbox"`
	Docs     DocsConfig            `yaml:"docs"`
	Auth     AuthConfig            `yaml:"auth"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Port is the TCP port the API listens on.
	Port int `yaml:"port"`
	// Environment is "production" or "development"; development responses
	// include internal error details.
	Environment string `yaml:"environment"`
	// ShutdownTimeout bounds graceful shutdown on SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the database file path; ":memory:" keeps everything in RAM.
	Path string `yaml:"path"`
}

// SandboxConfig configures the simulation sandbox.
type SandboxConfig struct {
	// CLIPath is the cre binary invoked for simulations. Empty searches PATH.
	CLIPath string `yaml:"cli_path"`
	// DepCacheDir holds the pre-installed node_modules tree linked into each
	// simulation directory. Empty disables the fast path.
	DepCacheDir string `yaml:"dep_cache_dir"`
	// WorkDir is where per-simulation temp directories are created. Empty
	// uses the OS temp dir.
	WorkDir string `yaml:"work_dir"`
}

// DocsConfig configures the capability documentation store.
type DocsConfig struct {
	// Dir is the directory scanned for capability markdown files.
	Dir string `yaml:"dir"`
	// Watch enables the fsnotify reload watcher.
	Watch bool `yaml:"watch"`
}

// AuthConfig configures mutating-endpoint signature verification.
type AuthConfig struct {
	// Secret keys the default HMAC verifier. Ownership signatures are a
	// platform boundary; deployments with wallet verification inject their
	// own verifier and leave this empty.
	Secret string `yaml:"secret"`
	// TimestampSkew bounds how far an X-Owner-Timestamp may drift from
	// server time.
	TimestampSkew time.Duration `yaml:"timestamp_skew"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			Environment:     "production",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "forge.db",
		},
		Sandbox: SandboxConfig{
			CLIPath: "cre",
		},
		Docs: DocsConfig{
			Dir:   "docs",
			Watch: true,
		},
		Auth: AuthConfig{
			TimestampSkew: 5 * time.Minute,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Server.Environment == "" {
		return fmt.Errorf("server.environment is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.TimestampSkew <= 0 {
		return fmt.Errorf("auth.timestamp_skew must be positive")
	}
	return nil
}

// Development reports whether error responses may carry internal details.
func (c *Config) Development() bool {
	return c.Server.Environment == "development"
}

// LoadFromFile loads configuration from a YAML file layered over defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one; non-zero values in other take
// precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.Environment != "" {
		c.Server.Environment = other.Server.Environment
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}

	if other.Models != nil {
		c.Models = other.Models
	}

	if other.Sandbox.CLIPath != "" {
		c.Sandbox.CLIPath = other.Sandbox.CLIPath
	}
	if other.Sandbox.DepCacheDir != "" {
		c.Sandbox.DepCacheDir = other.Sandbox.DepCacheDir
	}
	if other.Sandbox.WorkDir != "" {
		c.Sandbox.WorkDir = other.Sandbox.WorkDir
	}

	if other.Docs.Dir != "" {
		c.Docs.Dir = other.Docs.Dir
	}
	if other.Docs.Watch {
		c.Docs.Watch = true
	}

	if other.Auth.Secret != "" {
		c.Auth.Secret = other.Auth.Secret
	}
	if other.Auth.TimestampSkew != 0 {
		c.Auth.TimestampSkew = other.Auth.TimestampSkew
	}
}

// ApplyEnv overlays process environment variables onto the config. Provider
// API keys (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY) are read by
// the providers themselves and mirrored into simulation subprocess
// environments by the sandbox; they are not stored here.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("NODE_ENV"); v != "" {
		c.Server.Environment = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CRE_CLI_PATH"); v != "" {
		c.Sandbox.CLIPath = v
	}
}

// Load builds the effective configuration: defaults, then the optional file
// at path, then environment overrides, then validation.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config.Merge(fileConfig)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
