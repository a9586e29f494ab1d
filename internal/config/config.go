// Package config loads the carp configuration file.
//
// The file is YAML; every field is optional and falls back to Default.
// Command-line flags override what the file sets.
//
//	discriminator_field: __type
//	store:
//	  path: carp.db
//	golden:
//	  dir: testdata/golden
//	log:
//	  level: info
//	format: text
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/carp/internal/polymorphic"
)

// Formats are the accepted output formats.
var Formats = []string{"text", "json"}

// Levels are the accepted log levels.
var Levels = []string{"debug", "info", "warn", "error"}

// Config is the process configuration.
type Config struct {
	// DiscriminatorField names the class discriminator of every polymorphic
	// object.
	DiscriminatorField string `yaml:"discriminator_field"`

	Store  StoreConfig  `yaml:"store"`
	Golden GoldenConfig `yaml:"golden"`
	Log    LogConfig    `yaml:"log"`

	// Format is the CLI output format, "text" or "json".
	Format string `yaml:"format"`
}

// StoreConfig locates the request log database.
type StoreConfig struct {
	// Path is the SQLite file. Empty disables the durable log.
	Path string `yaml:"path"`
}

// GoldenConfig locates golden files.
type GoldenConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DiscriminatorField: polymorphic.DefaultDiscriminatorField,
		Golden:             GoldenConfig{Dir: "testdata/golden"},
		Log:                LogConfig{Level: "info"},
		Format:             "text",
	}
}

// Load reads the file at path over the defaults. A missing file is an
// error; use Default when there is no file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown fields are rejected so that
// typos do not go unnoticed.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DiscriminatorField) == "" {
		return fmt.Errorf("discriminator_field must not be blank")
	}
	if !slices.Contains(Formats, c.Format) {
		return fmt.Errorf("format %q must be one of %v", c.Format, Formats)
	}
	if !slices.Contains(Levels, c.Log.Level) {
		return fmt.Errorf("log.level %q must be one of %v", c.Log.Level, Levels)
	}
	if c.Golden.Dir == "" {
		return fmt.Errorf("golden.dir must not be blank")
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.SlogLevel()}))
}
