package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	defaultListen        = "127.0.0.1:8080"
	defaultDataDir       = "./data"
	defaultStaticDir     = "./public"
	defaultVersionFile   = "./VERSION"
	defaultCacheTTL      = 60
	defaultRemoteTimeout = 10
	defaultSweepCron     = "*/5 * * * *"
	defaultVersionCron   = "@daily"
	defaultTimezone      = "America/Los_Angeles"
	defaultExportWeeks   = 18
	defaultLogLevel      = "info"
)

// VersionCheckConfig controls the periodic upstream version check.
type VersionCheckConfig struct {
	// URL returns the newest released version as plain text. Empty disables
	// the check.
	URL string `yaml:"url" json:"url"`
	// Cron is the schedule for the check (e.g. "@daily").
	Cron string `yaml:"cron" json:"cron"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and static files.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds one directory per schedule source plus message.json.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// StaticDir is served under "/" through the file cache.
	StaticDir string `yaml:"static_dir" json:"static_dir"`

	// VersionFile contains the running version as plain text.
	VersionFile string `yaml:"version_file" json:"version_file"`

	// CacheTTLSeconds bounds how long resolved source data is reused.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// FileCacheTTLSeconds bounds how long static file bytes are reused.
	FileCacheTTLSeconds int `yaml:"file_cache_ttl_seconds" json:"file_cache_ttl_seconds"`

	// LegacyCacheReset switches every cache to whole-table expiry, where
	// the first access after the window drops all entries at once.
	LegacyCacheReset bool `yaml:"legacy_cache_reset" json:"legacy_cache_reset"`

	// RemoteTimeoutSeconds limits each request to a web source before
	// falling back to the local copy.
	RemoteTimeoutSeconds int `yaml:"remote_timeout_seconds" json:"remote_timeout_seconds"`

	// SweepCron is the cron schedule for dropping expired cache entries.
	SweepCron string `yaml:"sweep_cron" json:"sweep_cron"`

	// VersionCheck configures the upstream version check.
	VersionCheck VersionCheckConfig `yaml:"version_check" json:"version_check"`

	// Timezone is the IANA zone entered class times are interpreted in
	// when exporting calendars.
	Timezone string `yaml:"timezone" json:"timezone"`

	// ExportWeeks is how many weeks exported class calendars repeat.
	ExportWeeks int `yaml:"export_weeks" json:"export_weeks"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:               defaultListen,
		DataDir:              defaultDataDir,
		StaticDir:            defaultStaticDir,
		VersionFile:          defaultVersionFile,
		CacheTTLSeconds:      defaultCacheTTL,
		FileCacheTTLSeconds:  defaultCacheTTL,
		RemoteTimeoutSeconds: defaultRemoteTimeout,
		SweepCron:            defaultSweepCron,
		VersionCheck: VersionCheckConfig{
			URL:  "",
			Cron: defaultVersionCron,
		},
		Timezone:    defaultTimezone,
		ExportWeeks: defaultExportWeeks,
		LogLevel:    defaultLogLevel,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.StaticDir == "" {
		c.StaticDir = defaultStaticDir
	}
	if c.VersionFile == "" {
		c.VersionFile = defaultVersionFile
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = defaultCacheTTL
	}
	if c.FileCacheTTLSeconds <= 0 {
		c.FileCacheTTLSeconds = defaultCacheTTL
	}
	if c.RemoteTimeoutSeconds <= 0 {
		c.RemoteTimeoutSeconds = defaultRemoteTimeout
	}
	if c.SweepCron == "" {
		c.SweepCron = defaultSweepCron
	}
	if c.VersionCheck.Cron == "" {
		c.VersionCheck.Cron = defaultVersionCron
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.ExportWeeks <= 0 {
		c.ExportWeeks = defaultExportWeeks
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		// Unknown value; keep the server talking at info.
		c.LogLevel = defaultLogLevel
	}
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// FileCacheTTL returns FileCacheTTLSeconds as a duration.
func (c *Config) FileCacheTTL() time.Duration {
	return time.Duration(c.FileCacheTTLSeconds) * time.Second
}

// RemoteTimeout returns RemoteTimeoutSeconds as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".countdown-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
