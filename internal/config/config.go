// Package config loads the optional retouch.yaml file and applies
// environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/fpang/beauty-retouch/internal/brush"
	"github.com/fpang/beauty-retouch/internal/metrics"
	"github.com/fpang/beauty-retouch/internal/palette"
	"github.com/fpang/beauty-retouch/internal/store"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "retouch.yaml"

// Store kinds.
const (
	StoreFile   = "file"
	StoreDynamo = "dynamo"
)

// Config represents retouch.yaml.
type Config struct {
	Log     LogConfig           `yaml:"log"`
	Store   StoreConfig         `yaml:"store"`
	Palette PaletteConfig       `yaml:"palette"`
	Brush   brush.Configuration `yaml:"brush"`
	Metrics MetricsConfig       `yaml:"metrics"`
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // console or json
}

// StoreConfig selects where saved edits go.
type StoreConfig struct {
	Kind   string        `yaml:"kind,omitempty"`
	Dir    string        `yaml:"dir,omitempty"`
	Table  string        `yaml:"table,omitempty"`
	Bucket string        `yaml:"bucket,omitempty"`
	TTL    time.Duration `yaml:"ttl,omitempty"`
}

// PaletteConfig tunes the palette generator.
type PaletteConfig struct {
	Colors     int `yaml:"colors,omitempty"`
	MaxSamples int `yaml:"maxSamples,omitempty"`
}

// MetricsConfig controls EMF output.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log:   LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{Kind: StoreFile, Dir: ".retouch", TTL: store.DefaultTTL},
		Palette: PaletteConfig{
			Colors:     palette.DefaultColors,
			MaxSamples: palette.DefaultMaxSamples,
		},
		Brush:   brush.Default(),
		Metrics: MetricsConfig{Namespace: metrics.DefaultNamespace},
	}
}

// LoadOptional reads path over the defaults. A missing file is not an
// error.
func LoadOptional(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path (or FileName when empty), applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = FileName
	}
	cfg, err := LoadOptional(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RETOUCH_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Log.Level, "RETOUCH_LOG_LEVEL")
	set(&c.Log.Format, "RETOUCH_LOG_FORMAT")
	set(&c.Store.Kind, "RETOUCH_STORE")
	set(&c.Store.Dir, "RETOUCH_STORE_DIR")
	set(&c.Store.Table, "RETOUCH_DYNAMO_TABLE")
	set(&c.Store.Bucket, "RETOUCH_S3_BUCKET")
	set(&c.Metrics.Namespace, "RETOUCH_METRICS_NAMESPACE")
	if v := strings.ToLower(strings.TrimSpace(getenv("RETOUCH_METRICS"))); v != "" {
		c.Metrics.Enabled = v == "1" || v == "true" || v == "on"
	}
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: must be console or json, got %q", c.Log.Format)
	}

	switch c.Store.Kind {
	case StoreFile:
		if c.Store.Dir == "" {
			return errors.New("store.dir is required for the file store")
		}
	case StoreDynamo:
		if c.Store.Table == "" {
			return errors.New("store.table is required for the dynamo store")
		}
	default:
		return fmt.Errorf("store.kind: must be %s or %s, got %q", StoreFile, StoreDynamo, c.Store.Kind)
	}
	if c.Store.TTL < 0 {
		return errors.New("store.ttl must not be negative")
	}

	if c.Palette.Colors < 1 || c.Palette.Colors > 16 {
		return fmt.Errorf("palette.colors: must be 1-16, got %d", c.Palette.Colors)
	}
	if c.Palette.MaxSamples < 1 {
		return fmt.Errorf("palette.maxSamples: must be positive, got %d", c.Palette.MaxSamples)
	}
	if err := c.Brush.Validate(); err != nil {
		return fmt.Errorf("brush: %w", err)
	}
	return nil
}
