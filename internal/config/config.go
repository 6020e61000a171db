// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Package config loads runtime configuration from a YAML file and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/modelscript/modelscript/internal/script"
	"github.com/modelscript/modelscript/internal/xdg"
)

// LocalConfig configures the development provider.
type LocalConfig struct {
	Dir      string        `koanf:"dir"`
	Debounce time.Duration `koanf:"debounce"`
}

// RemoteConfig configures the cached production provider.
type RemoteConfig struct {
	Repository string        `koanf:"repository"`
	Branch     string        `koanf:"branch"`
	CacheDir   string        `koanf:"cache-dir"`
	Expiry     time.Duration `koanf:"expiry"`
}

// Config is the runtime configuration.
type Config struct {
	Mode        string       `koanf:"mode"`
	LogFormat   string       `koanf:"log-format"`
	MetricsAddr string       `koanf:"metrics-addr"`
	Local       LocalConfig  `koanf:"local"`
	Remote      RemoteConfig `koanf:"remote"`
}

// Defaults returns the configuration used when nothing else is specified.
func Defaults() Config {
	return Config{
		Mode:        string(script.ModeLocal),
		LogFormat:   "json",
		MetricsAddr: "",
		Local: LocalConfig{
			Dir:      filepath.Join(xdg.DataDir(), "scripts"),
			Debounce: 500 * time.Millisecond,
		},
		Remote: RemoteConfig{
			Branch:   "main",
			CacheDir: xdg.CacheDir(),
			Expiry:   24 * time.Hour,
		},
	}
}

// Load merges defaults, an optional YAML file, and flag overrides, in that
// order of precedence (later wins). path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	// Flags default to empty strings; an empty value means "not set" and
	// must not clobber file values or the built-in defaults.
	for _, key := range k.Keys() {
		if v, ok := k.Get(key).(string); ok && v == "" {
			k.Delete(key)
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable. Invalid configuration
// fails fast at startup; this is the one unrecoverable condition.
func (c *Config) Validate() error {
	mode, err := script.ParseMode(c.Mode)
	if err != nil {
		return err
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", c.LogFormat)
	}

	switch mode {
	case script.ModeLocal:
		if c.Local.Dir == "" {
			return fmt.Errorf("local.dir is required in local mode")
		}
	case script.ModeRemote:
		if c.Remote.Repository == "" {
			return fmt.Errorf("remote.repository is required in remote mode")
		}
		if c.Remote.CacheDir == "" {
			return fmt.Errorf("remote.cache-dir is required in remote mode")
		}
	}

	if c.Local.Debounce < 0 {
		return fmt.Errorf("local.debounce must not be negative")
	}
	if c.Remote.Expiry < 0 {
		return fmt.Errorf("remote.expiry must not be negative")
	}

	return nil
}

// ScriptMode returns the parsed provider mode. Validate must have passed.
func (c *Config) ScriptMode() script.Mode {
	mode, _ := script.ParseMode(c.Mode)
	return mode
}
