// Package config loads docsync settings from YAML.
//
// Command-line flags override file values; see internal/cli.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docsync/internal/idgen"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverMongo  = "mongo"
)

// Config is the complete docsync configuration.
type Config struct {
	Store StoreConfig `yaml:"store"`

	Schema SchemaConfig `yaml:"schema"`

	// IdentityMap enables the identity registry for sessions.
	IdentityMap bool `yaml:"identity_map"`

	// IDFormat selects the generator for new root ids: "uuid" or "ulid".
	IDFormat idgen.Format `yaml:"id_format"`

	Log LogConfig `yaml:"log"`
}

// StoreConfig selects and configures a store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`

	// Path is the SQLite file or badger directory.
	Path string `yaml:"path"`

	// URI and Database configure the mongo driver.
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SchemaConfig locates the CUE schema package.
type SchemaConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store:    StoreConfig{Driver: DriverSQLite, Path: "docsync.db", Database: "docsync"},
		Schema:   SchemaConfig{Dir: "."},
		IDFormat: idgen.FormatUUID,
		Log:      LogConfig{Level: "warn", Format: "text"},
	}
}

// Load reads a YAML config file over the defaults. Unknown keys are
// rejected. Relative store and schema paths resolve against the file's
// directory.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(base, cfg.Store.Path)
	}
	if cfg.Schema.Dir != "" && !filepath.IsAbs(cfg.Schema.Dir) {
		cfg.Schema.Dir = filepath.Join(base, cfg.Schema.Dir)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverBadger:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s driver", c.Store.Driver)
		}
	case DriverMongo:
		if c.Store.URI == "" {
			return fmt.Errorf("store.uri is required for the mongo driver")
		}
		if c.Store.Database == "" {
			return fmt.Errorf("store.database is required for the mongo driver")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite, badger or mongo, got %q", c.Store.Driver)
	}

	if _, err := idgen.ForFormat(c.IDFormat); err != nil {
		return fmt.Errorf("id_format: %w", err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ParseLevel maps a level name to a slog level. Empty means warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}
