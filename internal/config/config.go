package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Dataset DatasetConfig
	Review  ReviewConfig
	Log     LogConfig
	Publish PublishConfig
}

type ServerConfig struct {
	Port int
	// APIToken guards the HTTP API. Empty disables authentication.
	APIToken string
}

type StorageConfig struct {
	// Backend is "sqlite" or "files".
	Backend string
	DataDir string
	// ProfilesDir is the root of the files backend. Empty means
	// <DataDir>/profiles.
	ProfilesDir string
}

// ProfilesPath returns the effective files-backend root.
func (s StorageConfig) ProfilesPath() string {
	if s.ProfilesDir != "" {
		return s.ProfilesDir
	}
	return filepath.Join(s.DataDir, "profiles")
}

type DatasetConfig struct {
	Dir    string
	Mode   string
	Subset int
}

type ReviewConfig struct {
	Shuffle            bool
	LegacyQuestionKeys bool
	DatasetTitle       string
}

type LogConfig struct {
	Level  string
	Format string
}

type PublishConfig struct {
	Enabled   bool
	Endpoint  string
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

const (
	BackendSQLite = "sqlite"
	BackendFiles  = "files"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			DataDir: defaultDataDir(),
		},
		Dataset: DatasetConfig{
			Dir:  ".",
			Mode: "full",
		},
		Review: ReviewConfig{
			Shuffle:      true,
			DatasetTitle: "Streamlit",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Publish: PublishConfig{
			Region: "us-east-1",
			Prefix: "qareview",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "qareview-data"
		}
	}
	return filepath.Join(dir, "qareview")
}

// Load reads configuration from the TOML file at
// $XDG_CONFIG_HOME/qareview/config.toml, then applies QAREVIEW_* environment
// overrides. Secrets are only read from the environment.
func Load() (Config, error) {
	return LoadFrom(configFilePath())
}

// LoadFrom is Load with an explicit config file path. A missing file is not
// an error.
func LoadFrom(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-key constraints.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendFiles:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q, got %q", BackendSQLite, BackendFiles, c.Storage.Backend))
	}
	switch c.Dataset.Mode {
	case "full":
		if c.Dataset.Subset < 0 || c.Dataset.Subset > 100 {
			errs = append(errs, fmt.Errorf("dataset.subset must be between 0 and 100, got %d", c.Dataset.Subset))
		}
	case "preliminary":
		if c.Dataset.Subset != 0 {
			errs = append(errs, errors.New("dataset.subset requires dataset.mode = full"))
		}
	default:
		errs = append(errs, fmt.Errorf("dataset.mode must be full or preliminary, got %q", c.Dataset.Mode))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Publish.Enabled {
		if c.Storage.Backend != BackendSQLite {
			errs = append(errs, errors.New("publish.enabled requires storage.backend = sqlite"))
		}
		if c.Publish.Bucket == "" {
			errs = append(errs, errors.New("publish.enabled requires publish.bucket"))
		}
	}
	return errors.Join(errs...)
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "qareview", "config.toml")
}

// FilePath returns the config file Load reads.
func FilePath() string { return configFilePath() }
