// Package config loads hotreg.toml project settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up in the project root.
const FileName = "hotreg.toml"

// Duration is a time.Duration written as a string such as "150ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Log selects the slog handler.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Metrics configures the Prometheus endpoint of the CLI.
type Metrics struct {
	Addr string `toml:"addr"`
}

// Trace configures OpenTelemetry span export.
type Trace struct {
	Enabled bool `toml:"enabled"`
	// Exporter is "stdout", "file" or "none".
	Exporter    string `toml:"exporter"`
	FilePath    string `toml:"file_path"`
	ServiceName string `toml:"service_name"`
}

// Config stores project settings.
type Config struct {
	Root        string   `toml:"root"`
	IgnoreFile  string   `toml:"ignore_file"`
	Exclude     []string `toml:"exclude"`
	LiveReload  bool     `toml:"live_reload"`
	Debounce    Duration `toml:"debounce"`
	Concurrency int      `toml:"concurrency"`
	Manifest    string   `toml:"manifest"`
	Log         Log      `toml:"log"`
	Metrics     Metrics  `toml:"metrics"`
	Trace       Trace    `toml:"trace"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Root:        ".",
		IgnoreFile:  ".hotregignore",
		Exclude:     []string{"vendor/", "testdata/"},
		LiveReload:  true,
		Debounce:    Duration{150 * time.Millisecond},
		Concurrency: 8,
		Manifest:    filepath.Join(".hotreg", "manifest.zst"),
		Log:         Log{Level: "info", Format: "text"},
		Trace:       Trace{Exporter: "stdout", ServiceName: "hotreg"},
	}
}

// Load reads dir/hotreg.toml over the defaults. A missing file yields the
// defaults. Relative Root and Manifest paths are resolved against dir.
func Load(dir string) (Config, error) {
	cfg := Default()
	path := filepath.Join(dir, FileName)
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(dir, cfg.Root)
	}
	if !filepath.IsAbs(cfg.Manifest) {
		cfg.Manifest = filepath.Join(cfg.Root, cfg.Manifest)
	}
	if cfg.Trace.FilePath != "" && !filepath.IsAbs(cfg.Trace.FilePath) {
		cfg.Trace.FilePath = filepath.Join(dir, cfg.Trace.FilePath)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("config: concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.Debounce.Duration < 0 {
		return fmt.Errorf("config: debounce must not be negative, got %s", c.Debounce)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Trace.Exporter {
	case "", "none", "stdout":
	case "file":
		if c.Trace.Enabled && c.Trace.FilePath == "" {
			return fmt.Errorf("config: trace.file_path required for file exporter")
		}
	default:
		return fmt.Errorf("config: unknown trace exporter %q", c.Trace.Exporter)
	}
	return nil
}
