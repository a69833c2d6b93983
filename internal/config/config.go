// Package config handles configuration loading and validation for keyremap.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Store types.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

// Config holds all keyremap configuration.
type Config struct {
	Version int    `toml:"version" json:"version" yaml:"version"`
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	Store   StoreConfig   `toml:"store" json:"store" yaml:"store"`
	Timing  TimingConfig  `toml:"timing" json:"timing" yaml:"timing"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// StoreConfig selects where mappings are persisted.
type StoreConfig struct {
	// Type is "json" or "sqlite".
	Type string `toml:"type" json:"type" yaml:"type"`
	Path string `toml:"path" json:"path" yaml:"path"`
}

// TimingConfig controls the pauses inserted while replaying sequences.
type TimingConfig struct {
	ModifierSettleMs int `toml:"modifier_settle_ms" json:"modifier_settle_ms" yaml:"modifier_settle_ms"`
	ActionSettleMs   int `toml:"action_settle_ms" json:"action_settle_ms" yaml:"action_settle_ms"`
	TurboIntervalMs  int `toml:"turbo_interval_ms" json:"turbo_interval_ms" yaml:"turbo_interval_ms"`
	DefaultDelayMs   int `toml:"default_delay_ms" json:"default_delay_ms" yaml:"default_delay_ms"`
}

// ModifierSettle returns the pause after modifiers go down and before each
// modifier comes back up.
func (t TimingConfig) ModifierSettle() time.Duration {
	return time.Duration(t.ModifierSettleMs) * time.Millisecond
}

// ActionSettle returns the pause between an action's press and release.
func (t TimingConfig) ActionSettle() time.Duration {
	return time.Duration(t.ActionSettleMs) * time.Millisecond
}

// TurboInterval returns the loop period used by turbo mappings.
func (t TimingConfig) TurboInterval() time.Duration {
	return time.Duration(t.TurboIntervalMs) * time.Millisecond
}

// DefaultDelay returns the inter-action delay used when a mapping has none.
func (t TimingConfig) DefaultDelay() time.Duration {
	return time.Duration(t.DefaultDelayMs) * time.Millisecond
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig controls the optional metrics endpoint.
type MetricsConfig struct {
	// Listen is a host:port for the HTTP endpoint. Empty disables it.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Version: Version,
		Backend: "auto",
		Store: StoreConfig{
			Type: StoreJSON,
			Path: DefaultStorePath(),
		},
		Timing: TimingConfig{
			ModifierSettleMs: 20,
			ActionSettleMs:   30,
			TurboIntervalMs:  10,
			DefaultDelayMs:   50,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "logs", "keyremap.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// DataDir returns the base keyremap directory.
// KEYREMAP_DATA_DIR overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv("KEYREMAP_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DefaultStorePath returns the default mapping file, named after the
// running OS so one data directory can be shared between machines.
func DefaultStorePath() string {
	return filepath.Join(DataDir(), runtime.GOOS+"_mappings.json")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	default:
		// Try TOML by default
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode config (unknown format): %w", err)
		}
	}

	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with KEYREMAP_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KEYREMAP_BACKEND"); v != "" {
		c.Backend = v
	}

	if v := os.Getenv("KEYREMAP_STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("KEYREMAP_STORE_PATH"); v != "" {
		c.Store.Path = v
	}

	if v := os.Getenv("KEYREMAP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KEYREMAP_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Save writes the configuration to path, choosing the encoding by extension.
// TOML is the default.
func Save(cfg *Config, path string) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
