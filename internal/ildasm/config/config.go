// Package config loads the optional ildasm configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds user defaults for the CLI. Flags override everything
// here; the file is entirely optional.
type Config struct {
	NoColor bool   `yaml:"no_color" json:"noColor" jsonschema:"title=No Color,description=Disable syntax highlighting in terminal output"`
	Style   string `yaml:"style" json:"style" jsonschema:"title=Style,description=Chroma style name for highlighted output"`
	Output  string `yaml:"output" json:"output" jsonschema:"title=Output,description=Default output file path (empty for stdout)"`
	Debug   bool   `yaml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
}

// DefaultConfig returns a Config struct with default values
func DefaultConfig() *Config {
	return &Config{
		Style: "il-dark",
	}
}

// Path returns the config file location: ILDASM_CONFIG when set,
// otherwise ~/.config/ildasm/config.yaml.
func Path() (string, error) {
	if p := os.Getenv("ILDASM_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ildasm", "config.yaml"), nil
}

// Load reads the config file, falling back to defaults when the file
// does not exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
