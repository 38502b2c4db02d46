// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the name of the configuration file inside the config directory.
const FileName = "volume-sync.toml"

// Config represents the volume-sync configuration.
// Loaded from $XDG_CONFIG_HOME/volume-sync.toml
type Config struct {
	Sinks    []string `toml:"sinks"`     // Sink names to keep in sync
	LogLevel LogLevel `toml:"log_level"` // off, error, warn, info, debug, trace
}

// Default returns a Config with default values: nothing tracked, info logging.
func Default() *Config {
	return &Config{
		Sinks:    []string{},
		LogLevel: LogLevelInfo,
	}
}

// TrackedNames returns the configured sink names as a set.
func (c *Config) TrackedNames() map[string]struct{} {
	names := make(map[string]struct{}, len(c.Sinks))
	for _, name := range c.Sinks {
		names[name] = struct{}{}
	}
	return names
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	return &Config{
		Sinks:    slices.Clone(c.Sinks),
		LogLevel: c.LogLevel,
	}
}

// Path returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config, otherwise the
// current directory.
func Path(logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, FileName)
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", FileName)
	}

	logger.Error("failed to resolve config directory, neither XDG_CONFIG_HOME nor HOME is set")
	return filepath.Join(".", FileName)
}

// Load loads configuration from the specified path.
// A missing file is an error; the caller decides whether to fall back to Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Sinks == nil {
		cfg.Sinks = []string{}
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file so the watcher never sees a partial file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// FileSource loads the configuration from a fixed path on every call.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource reading from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file the source reads from.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads and parses the config file.
func (s *FileSource) Load() (*Config, error) {
	return Load(s.path)
}

// IsNotExist reports whether a Load error was caused by a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
