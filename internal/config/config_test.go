package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "framepump.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_ResolvesRelativeSourcePathsAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `schema_version: v1
source:
  kind: file
  path: streams/in.h264
driver:
  busy:
    backoff: 5ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(dir, "streams/in.h264"); cfg.Source.Path != want {
		t.Fatalf("source path = %q, want %q", cfg.Source.Path, want)
	}
	if cfg.Driver.Chunk.Min != 500 || cfg.Driver.Chunk.Max != 1500 {
		t.Fatalf("chunk bounds = %+v", cfg.Driver.Chunk)
	}
	if cfg.Driver.Busy.MaxRetries != 1000 || cfg.Driver.Busy.Backoff != 5*time.Millisecond {
		t.Fatalf("busy = %+v", cfg.Driver.Busy)
	}
	if cfg.Transform.OutputSubtype != "NV12" || cfg.Transform.FrameRate != "25/1" {
		t.Fatalf("transform = %+v", cfg.Transform)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0] != "stdout" {
		t.Fatalf("sinks = %v", cfg.Sinks)
	}
	if cfg.Server.GRPCPort != DefaultGRPCPort || cfg.Server.MetricsPort != DefaultMetricsPort {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "source: { kind: file, path: /abs/in.h264 }\n")
	t.Setenv("FRAMEPUMP__TRANSFORM__OUTPUT_SUBTYPE", "YUY2")
	t.Setenv("FRAMEPUMP__SERVER__METRICS_PORT", "0")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transform.OutputSubtype != "YUY2" {
		t.Fatalf("output subtype = %q", cfg.Transform.OutputSubtype)
	}
	if cfg.Server.MetricsPort != 0 {
		t.Fatalf("metrics port = %d, want disabled", cfg.Server.MetricsPort)
	}
	if cfg.Source.Path != "/abs/in.h264" {
		t.Fatalf("absolute path rewritten: %q", cfg.Source.Path)
	}
}

func TestLoad_InvalidSchema(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "schema_version: v999\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	var c File
	ApplyDefaults(&c)
	if err := c.Validate(); err == nil {
		t.Fatal("file source without path must not validate")
	}
	c.Source.Path = "-"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	c.Driver.Chunk.Max = 10
	if err := c.Validate(); err == nil {
		t.Fatal("expected chunk bounds error")
	}
	c.Driver.Chunk.Max = 1500
	c.Source.Kind = "http"
	if err := c.Validate(); err == nil {
		t.Fatal("expected source kind error")
	}
}
