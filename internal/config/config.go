// Package config implements TOML configuration loading, defaults, and
// validation for photosync. A missing config file is not an error: every
// setting has a usable default except the S3 section, which is only required
// when the s3 backend is selected.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Backend selectors for the remote object store.
const (
	BackendDrive = "gdrive"
	BackendS3    = "s3"
)

// minSyncIntervalMinutes is the floor for the daemon's periodic pass,
// matching the minimum practical background-task interval on mobile.
const minSyncIntervalMinutes = 15

// defaultSyncIntervalMinutes matches the app's hourly background sync.
const defaultSyncIntervalMinutes = 60

// Config is the top-level configuration parsed from a TOML file.
type Config struct {
	DBPath     string `toml:"db_path"`
	PhotoDir   string `toml:"photo_dir"`
	Backend    string `toml:"backend"`
	APIBaseURL string `toml:"api_base_url"`

	SyncIntervalMinutes int `toml:"sync_interval_minutes"`

	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	S3 S3Config `toml:"s3"`
}

// S3Config configures the alternate S3 remote backend.
type S3Config struct {
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving user config dir: %w", err)
	}

	return filepath.Join(dir, "photosync", "config.toml"), nil
}

// defaults returns the baseline configuration before the file is applied.
func defaults() (*Config, error) {
	dataDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("config: resolving user config dir: %w", err)
	}

	return &Config{
		DBPath:              filepath.Join(dataDir, "photosync", "sync.db"),
		Backend:             BackendDrive,
		APIBaseURL:          "https://api.balancewise.app",
		SyncIntervalMinutes: defaultSyncIntervalMinutes,
		LogLevel:            "info",
	}, nil
}

// Load reads the config at path (DefaultPath when path is empty), applies
// defaults for unset fields, and validates the result. A nonexistent file
// yields pure defaults.
func Load(path string) (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	meta, err := toml.DecodeFile(path, cfg)
	if os.IsNotExist(err) {
		return cfg, cfg.validate()
	}

	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendDrive, BackendS3:
	default:
		return fmt.Errorf("config: unknown backend %q (want %s or %s)",
			c.Backend, BackendDrive, BackendS3)
	}

	if c.Backend == BackendS3 && c.S3.Bucket == "" {
		return fmt.Errorf("config: backend %s requires s3.bucket", BackendS3)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}

	if c.SyncIntervalMinutes < minSyncIntervalMinutes {
		c.SyncIntervalMinutes = minSyncIntervalMinutes
	}

	return nil
}

// TokenEndpoint returns the backend URL that exchanges the app credential
// for a Google access token.
func (c *Config) TokenEndpoint() string {
	return c.APIBaseURL + "/auth/google-token"
}
