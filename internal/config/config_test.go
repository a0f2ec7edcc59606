package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/beauty-retouch/internal/brush"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadOptionalMissing(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Store.Kind != StoreFile || cfg.Brush != brush.Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadOptionalOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
store:
  kind: dynamo
  table: retouch-edits
  bucket: retouch-images
  ttl: 48h
palette:
  colors: 3
brush:
  size: 80
  blendMode: softLight
metrics:
  enabled: true
`)
	cfg, err := LoadOptional(path)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if cfg.Store.Kind != StoreDynamo || cfg.Store.Table != "retouch-edits" || cfg.Store.TTL != 48*time.Hour {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Palette.Colors != 3 || cfg.Palette.MaxSamples == 0 {
		t.Errorf("unexpected palette config %+v", cfg.Palette)
	}
	if cfg.Brush.Size != 80 || cfg.Brush.BlendMode != brush.BlendSoftLight || cfg.Brush.Hardness != brush.Default().Hardness {
		t.Errorf("unexpected brush %+v", cfg.Brush)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadOptionalBadYAML(t *testing.T) {
	if _, err := LoadOptional(writeFile(t, "store: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RETOUCH_LOG_LEVEL":    "warn",
		"RETOUCH_STORE":        "dynamo",
		"RETOUCH_DYNAMO_TABLE": "edits",
		"RETOUCH_S3_BUCKET":    "images",
		"RETOUCH_METRICS":      "on",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Log.Level != "warn" || cfg.Store.Kind != StoreDynamo || cfg.Store.Table != "edits" || cfg.Store.Bucket != "images" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics enabled from env")
	}
	if cfg.Store.Dir != ".retouch" {
		t.Errorf("expected untouched dir, got %s", cfg.Store.Dir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad kind", func(c *Config) { c.Store.Kind = "s3" }, "store.kind"},
		{"file without dir", func(c *Config) { c.Store.Dir = "" }, "store.dir"},
		{"dynamo without table", func(c *Config) { c.Store.Kind = StoreDynamo }, "store.table"},
		{"negative ttl", func(c *Config) { c.Store.TTL = -time.Second }, "store.ttl"},
		{"too many colors", func(c *Config) { c.Palette.Colors = 40 }, "palette.colors"},
		{"no samples", func(c *Config) { c.Palette.MaxSamples = 0 }, "palette.maxSamples"},
		{"bad brush", func(c *Config) { c.Brush.Size = -1 }, "brush"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadUsesEnvironment(t *testing.T) {
	t.Setenv("RETOUCH_STORE_DIR", "/tmp/retouch-edits")
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Dir != "/tmp/retouch-edits" {
		t.Errorf("expected env dir, got %s", cfg.Store.Dir)
	}
}
