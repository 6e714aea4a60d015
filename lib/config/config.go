// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for bring-up and debugging.
	Development Environment = "development"
	// Production is for shipped devices.
	Production Environment = "production"
)

// Config is the composer configuration.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	Device   DeviceConfig   `yaml:"device"`
	Flip     FlipConfig     `yaml:"flip"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`

	// Options sets option defaults by name, for example
	// "nuclear: 0" to keep the atomic commit path off.
	Options map[string]int64 `yaml:"options"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Device   *DeviceConfig   `yaml:"device,omitempty"`
	Flip     *FlipConfig     `yaml:"flip,omitempty"`
	Registry *RegistryConfig `yaml:"registry,omitempty"`
	Log      *LogConfig      `yaml:"log,omitempty"`
}

// DeviceConfig selects the display device.
type DeviceConfig struct {
	// Path is the DRM card node.
	// Default: /dev/dri/card0
	Path string `yaml:"path"`

	// SWSync backs release timelines with kernel sw_sync objects so
	// producers receive native fence descriptors. Requires debugfs.
	// Default: false
	SWSync bool `yaml:"sw_sync"`
}

// FlipConfig tunes the page-flip handlers.
type FlipConfig struct {
	// FlipTimeout is how long a commit may stay outstanding before the
	// handler forces its completion.
	// Default: 100ms
	FlipTimeout time.Duration `yaml:"flip_timeout"`

	// SyncTimeout bounds each wait for a completion event.
	// Default: 100ms
	SyncTimeout time.Duration `yaml:"sync_timeout"`

	// Strict panics on contract violations instead of logging them.
	// Default: true (development), false (production)
	Strict bool `yaml:"strict"`

	// QueueDepth is the number of frames buffered per display.
	// Default: 2
	QueueDepth int `yaml:"queue_depth"`
}

// RegistryConfig configures the persistent registry.
type RegistryConfig struct {
	// Path is the registry file.
	// Default: ${HWC_STATE:-/var/lib/hwcomposer}/registry
	Path string `yaml:"path"`

	// SaveDelay batches writes before they are saved.
	// Default: 500ms
	SaveDelay time.Duration `yaml:"save_delay"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: debug (development), info (production)
	Level string `yaml:"level"`

	// Format is one of auto, text, json. Auto picks text when stderr
	// is a terminal.
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Device: DeviceConfig{
			Path: "/dev/dri/card0",
		},
		Flip: FlipConfig{
			FlipTimeout: 100 * time.Millisecond,
			SyncTimeout: 100 * time.Millisecond,
			Strict:      true,
			QueueDepth:  2,
		},
		Registry: RegistryConfig{
			Path:      "${HWC_STATE:-/var/lib/hwcomposer}/registry",
			SaveDelay: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "auto",
		},
		Options: map[string]int64{},
	}
}

// Load loads configuration from the HWC_CONFIG environment variable.
func Load() (*Config, error) {
	configPath := os.Getenv("HWC_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("HWC_CONFIG environment variable not set; " +
			"set it to the path of your hwcomposer.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: keep running through violations.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Flip: &FlipConfig{Strict: false},
				Log:  &LogConfig{Level: "info"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Device != nil {
		if overrides.Device.Path != "" {
			c.Device.Path = overrides.Device.Path
		}
		c.Device.SWSync = overrides.Device.SWSync
	}

	if overrides.Flip != nil {
		if overrides.Flip.FlipTimeout != 0 {
			c.Flip.FlipTimeout = overrides.Flip.FlipTimeout
		}
		if overrides.Flip.SyncTimeout != 0 {
			c.Flip.SyncTimeout = overrides.Flip.SyncTimeout
		}
		// Strict is a bool, so we always apply it from overrides.
		c.Flip.Strict = overrides.Flip.Strict
		if overrides.Flip.QueueDepth != 0 {
			c.Flip.QueueDepth = overrides.Flip.QueueDepth
		}
	}

	if overrides.Registry != nil {
		if overrides.Registry.Path != "" {
			c.Registry.Path = overrides.Registry.Path
		}
		if overrides.Registry.SaveDelay != 0 {
			c.Registry.SaveDelay = overrides.Registry.SaveDelay
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Device.Path = expandVars(c.Device.Path, vars)
	c.Registry.Path = expandVars(c.Registry.Path, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogLevel returns the configured slog level, or info for an unknown
// level name.
func (c *Config) LogLevel() slog.Level {
	if level, ok := logLevels[c.Log.Level]; ok {
		return level
	}
	return slog.LevelInfo
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Device.Path == "" {
		errs = append(errs, fmt.Errorf("device.path is required"))
	}

	if c.Flip.FlipTimeout <= 0 {
		errs = append(errs, fmt.Errorf("flip.flip_timeout must be positive, got %s", c.Flip.FlipTimeout))
	}
	if c.Flip.SyncTimeout <= 0 {
		errs = append(errs, fmt.Errorf("flip.sync_timeout must be positive, got %s", c.Flip.SyncTimeout))
	}
	if c.Flip.QueueDepth < 1 {
		errs = append(errs, fmt.Errorf("flip.queue_depth must be at least 1, got %d", c.Flip.QueueDepth))
	}

	if c.Registry.Path == "" {
		errs = append(errs, fmt.Errorf("registry.path is required"))
	}
	if c.Registry.SaveDelay < 0 {
		errs = append(errs, fmt.Errorf("registry.save_delay must not be negative"))
	}

	if _, ok := logLevels[c.Log.Level]; !ok {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	formats := []string{"auto", "text", "json"}
	if !contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	for name := range c.Options {
		if name == "" {
			errs = append(errs, fmt.Errorf("options: empty option name"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
