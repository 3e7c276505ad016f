// Package config provides configuration loading for deckforge. Supports a
// YAML file, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deckforge/deckforge/internal/domain"
)

// Config holds all configuration for a conversion run.
type Config struct {
	Render   RenderConfig   `yaml:"render"`
	Generate GenerateConfig `yaml:"generate"`
	Output   OutputConfig   `yaml:"output"`
	Resume   ResumeConfig   `yaml:"resume"`
	Log      LogConfig      `yaml:"log"`
}

// RenderConfig holds page rasterization settings.
type RenderConfig struct {
	DPI    float64 `yaml:"dpi"`
	Format string  `yaml:"format"` // jpg or png
}

// GenerateConfig holds content-generation settings. The API key is only ever
// read from the environment, never from a file.
type GenerateConfig struct {
	Model       string   `yaml:"model"`
	MaxRetries  int      `yaml:"max_retries"`
	Timeout     Duration `yaml:"timeout"`
	Concurrency int      `yaml:"concurrency"`
	APIKey      string   `yaml:"-"`
}

// OutputConfig holds output location settings.
type OutputConfig struct {
	// Root is the directory all derived outputs go under. Empty means the
	// directory of the source document.
	Root string `yaml:"root"`
}

// ResumeConfig holds resume settings.
type ResumeConfig struct {
	// StartIndex is the first page index to process. -1 auto-detects the
	// resume point from existing artifacts.
	StartIndex int `yaml:"start_index"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Render: RenderConfig{DPI: 300, Format: "jpg"},
		Generate: GenerateConfig{
			MaxRetries:  3,
			Timeout:     Duration(2 * time.Minute),
			Concurrency: 2,
		},
		Resume: ResumeConfig{StartIndex: -1},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.Generate.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.Generate.Model = v
	}
}

// Validate checks ranges and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.Render.DPI == 0 {
		c.Render.DPI = 300
	}
	if c.Render.DPI < 36 || c.Render.DPI > 1200 {
		return domain.ConfigError(fmt.Sprintf("render.dpi out of range: %g", c.Render.DPI), nil)
	}
	if c.Render.Format == "" {
		c.Render.Format = "jpg"
	}
	if c.Render.Format != "jpg" && c.Render.Format != "png" {
		return domain.ConfigError(fmt.Sprintf("render.format must be jpg or png, got %q", c.Render.Format), nil)
	}
	if c.Generate.Concurrency <= 0 {
		c.Generate.Concurrency = 2
	}
	if c.Generate.MaxRetries < 0 {
		return domain.ConfigError(fmt.Sprintf("generate.max_retries must not be negative: %d", c.Generate.MaxRetries), nil)
	}
	if c.Generate.Timeout <= 0 {
		c.Generate.Timeout = Duration(2 * time.Minute)
	}
	if c.Resume.StartIndex < -1 {
		return domain.ConfigError(fmt.Sprintf("resume.start_index must be -1 or a page index: %d", c.Resume.StartIndex), nil)
	}
	return nil
}

// RequireAPIKey fails when no generation API key is configured.
func (c *Config) RequireAPIKey() error {
	if c.Generate.APIKey == "" {
		return domain.ConfigError("OPENROUTER_API_KEY is not set", nil)
	}
	return nil
}
