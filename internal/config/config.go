// Package config reads and writes the songtree configuration file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for songtree.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Trees      TreesConfig      `toml:"trees"`
	Watch      WatchConfig      `toml:"watch"`
}

// DatabaseConfig describes the catalog database backend. This uses a tagged
// union pattern: Type determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// FilesystemConfig holds walk-related settings.
type FilesystemConfig struct {
	// Ignore lists extra glob patterns to skip during walks, in addition
	// to the built-in ignore list. Patterns containing '/' match against
	// the tree-relative path, others against the basename.
	Ignore []string `toml:"ignore"`
}

// TreesConfig holds tree registration defaults.
type TreesConfig struct {
	// DefaultType is the tree type used when `tree add` is not given one.
	DefaultType string `toml:"default_type"`
}

// WatchConfig holds settings for the watch subcommand.
type WatchConfig struct {
	// DebounceMS is the quiet period after a filesystem event before a
	// reconciliation pass is triggered.
	DebounceMS int `toml:"debounce_ms"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "songtree.db"),
		},
		Trees: TreesConfig{DefaultType: "Songs"},
		Watch: WatchConfig{DebounceMS: 2000},
	}
}

// Debounce returns the watch debounce interval as a duration.
func (c *Config) Debounce() time.Duration {
	if c.Watch.DebounceMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

// Read decodes a Config from the provided reader.
func Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if err := Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path. Fails if one
// already exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
