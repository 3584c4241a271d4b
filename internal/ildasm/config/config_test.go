package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Style != "il-dark" {
		t.Errorf("Style = %q, want il-dark", cfg.Style)
	}
	if cfg.NoColor || cfg.Debug {
		t.Error("defaults should leave boolean options off")
	}
}

func TestPathEnvOverride(t *testing.T) {
	t.Setenv("ILDASM_CONFIG", "/tmp/custom.yaml")
	p, err := Path()
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if p != "/tmp/custom.yaml" {
		t.Errorf("Path() = %q, want /tmp/custom.yaml", p)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("ILDASM_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Style != "il-dark" {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "no_color: true\nstyle: monokai\noutput: /tmp/out.il\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ILDASM_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.NoColor {
		t.Error("no_color not applied")
	}
	if cfg.Style != "monokai" {
		t.Errorf("Style = %q, want monokai", cfg.Style)
	}
	if cfg.Output != "/tmp/out.il" {
		t.Errorf("Output = %q", cfg.Output)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ILDASM_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Error("expected error for malformed config")
	}
}
