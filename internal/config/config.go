// Package config loads diskpack settings from an optional TOML file and
// DISKPACK_* environment variables. Flags given on the command line win over
// both; that layering happens in the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	"github.com/bamsammich/diskpack/internal/units"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DISKPACK_"

// Config mirrors the config file. Every field is optional; nil means "not
// set here".
type Config struct {
	Catalog CatalogConfig `toml:"catalog" envPrefix:"CATALOG_"`
	Worker  WorkerConfig  `toml:"worker" envPrefix:"WORKER_"`
	Log     LogConfig     `toml:"log" envPrefix:"LOG_"`
}

// CatalogConfig locates the catalog database.
type CatalogConfig struct {
	Path *string `toml:"path" env:"PATH"`
}

// WorkerConfig holds copy worker defaults.
type WorkerConfig struct {
	PollInterval *string `toml:"poll_interval" env:"POLL_INTERVAL"` // e.g. "10s"
	LogDir       *string `toml:"log_dir" env:"LOG_DIR"`
	Reserve      *string `toml:"reserve" env:"RESERVE"` // e.g. "1GiB"
	BWLimit      *string `toml:"bwlimit" env:"BWLIMIT"` // e.g. "100M"
	Verify       *bool   `toml:"verify" env:"VERIFY"`
}

// LogConfig configures the rotating JSON log written next to stderr output.
type LogConfig struct {
	File       *string `toml:"file" env:"FILE"`
	MaxSizeMB  *int    `toml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups *int    `toml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays *int    `toml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   *bool   `toml:"compress" env:"COMPRESS"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "diskpack", "config.toml")
}

// DataDir is where the catalog and copy logs live unless configured.
func DataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "diskpack")
}

// Load reads the config file at path, or at Path() when path is empty, and
// applies environment overrides. A missing default file is not an error; a
// missing explicit path is.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = Path()
	}

	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config %s: %w", path, err)
			}
		}
	}

	if err := LoadEnvFile(".env"); err != nil {
		return Config{}, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile adds the variables of a dotenv file to the environment without
// replacing ones already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

// Settings are the effective values after defaults are filled in.
type Settings struct {
	CatalogPath  string
	LogDir       string
	LogFile      string
	PollInterval time.Duration
	Reserve      int64
	BWLimit      int64
	MaxSizeMB    int
	MaxBackups   int
	MaxAgeDays   int
	Verify       bool
	Compress     bool
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		CatalogPath:  filepath.Join(DataDir(), "catalog.db"),
		LogDir:       filepath.Join(DataDir(), "copylog"),
		PollInterval: 10 * time.Second,
		Reserve:      1 << 30,
		MaxSizeMB:    100,
		MaxBackups:   3,
		MaxAgeDays:   28,
	}
}

// Resolve layers c over Defaults.
func (c Config) Resolve() (Settings, error) {
	s := Defaults()

	setString(&s.CatalogPath, c.Catalog.Path)
	setString(&s.LogDir, c.Worker.LogDir)
	setString(&s.LogFile, c.Log.File)
	setBool(&s.Verify, c.Worker.Verify)
	setBool(&s.Compress, c.Log.Compress)
	setInt(&s.MaxSizeMB, c.Log.MaxSizeMB)
	setInt(&s.MaxBackups, c.Log.MaxBackups)
	setInt(&s.MaxAgeDays, c.Log.MaxAgeDays)

	if c.Worker.PollInterval != nil {
		d, err := time.ParseDuration(*c.Worker.PollInterval)
		if err != nil {
			return Settings{}, fmt.Errorf("worker.poll_interval: %w", err)
		}
		if d <= 0 {
			return Settings{}, fmt.Errorf("worker.poll_interval must be positive, got %s", d)
		}
		s.PollInterval = d
	}
	if c.Worker.Reserve != nil {
		n, err := units.ParseSize(*c.Worker.Reserve)
		if err != nil {
			return Settings{}, fmt.Errorf("worker.reserve: %w", err)
		}
		s.Reserve = n
	}
	if c.Worker.BWLimit != nil {
		n, err := units.ParseSize(*c.Worker.BWLimit)
		if err != nil {
			return Settings{}, fmt.Errorf("worker.bwlimit: %w", err)
		}
		s.BWLimit = n
	}
	return s, nil
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
