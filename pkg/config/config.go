// Package config loads the optional bgrep configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/praetorian-inc/bgrep/pkg/bytesize"
	"github.com/praetorian-inc/bgrep/pkg/logging"
)

// EnvVar names the environment variable consulted when no --config flag is
// given.
const EnvVar = "BGREP_CONFIG"

// Output formats.
const (
	FormatHuman = "human"
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// Colour modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the settings shared by every scan of one invocation.
// Command-line flags that the user sets explicitly override these values.
type Config struct {
	Format         string         `yaml:"format"`
	Color          string         `yaml:"color"`
	LogLevel       string         `yaml:"log_level"`
	Jobs           int            `yaml:"jobs"`
	BufferSize     bytesize.Value `yaml:"buffer_size"`
	Datastore      string         `yaml:"datastore"`
	IncludeHidden  bool           `yaml:"include_hidden"`
	Gitignore      bool           `yaml:"gitignore"`
	MaxFileSize    bytesize.Value `yaml:"max_file_size"`
	FollowSymlinks bool           `yaml:"follow_symlinks"`
	Archives       bool           `yaml:"archives"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Format:        FormatHuman,
		Color:         ColorAuto,
		LogLevel:      "warn",
		Jobs:          1,
		IncludeHidden: true,
	}
}

// Path returns the configuration file to load: flagValue if set, else
// $BGREP_CONFIG, else "" for none.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvVar)
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	//nolint:gosec // G304: path is chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated fields and ranges.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatHuman, FormatJSON, FormatSARIF:
	default:
		return fmt.Errorf("%w: format %q (want human, json or sarif)", ErrInvalidConfig, c.Format)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("%w: color %q (want auto, always or never)", ErrInvalidConfig, c.Color)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("%w: jobs must not be negative", ErrInvalidConfig)
	}
	if c.BufferSize.Uint64() > 1<<30 {
		return fmt.Errorf("%w: buffer_size %d exceeds 1GiB", ErrInvalidConfig, c.BufferSize.Uint64())
	}
	return nil
}

// Workers returns the effective number of concurrent scans; 0 means one
// per CPU.
func (c *Config) Workers() int {
	if c.Jobs == 0 {
		return runtime.NumCPU()
	}
	return c.Jobs
}
