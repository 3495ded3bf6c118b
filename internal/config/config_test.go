package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/var/data")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendSQLite)
	}
	if cfg.Storage.DataDir != "/var/data/qareview" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if got := cfg.Storage.ProfilesPath(); got != "/var/data/qareview/profiles" {
		t.Errorf("ProfilesPath() = %q", got)
	}
	if !cfg.Review.Shuffle {
		t.Error("Review.Shuffle = false, want true")
	}
	if cfg.Review.LegacyQuestionKeys {
		t.Error("Review.LegacyQuestionKeys = true, want false")
	}
	if cfg.Review.DatasetTitle != "Streamlit" {
		t.Errorf("Review.DatasetTitle = %q", cfg.Review.DatasetTitle)
	}
	if cfg.Dataset.Mode != "full" || cfg.Dataset.Subset != 0 {
		t.Errorf("Dataset = %+v", cfg.Dataset)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Publish.Enabled {
		t.Error("Publish.Enabled = true, want false")
	}
}

func TestFileValues(t *testing.T) {
	path := writeTempConfig(t, `[server]
port = 5000

[storage]
backend = "files"
profiles_dir = "/srv/profiles"

[dataset]
dir = "/srv/data"
subset = 7

[review]
shuffle = false
legacy_question_keys = true
dataset_title = "Pilot"

[log]
level = "debug"
format = "json"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendFiles {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Storage.ProfilesPath() != "/srv/profiles" {
		t.Errorf("ProfilesPath() = %q", cfg.Storage.ProfilesPath())
	}
	if cfg.Dataset.Dir != "/srv/data" || cfg.Dataset.Subset != 7 {
		t.Errorf("Dataset = %+v", cfg.Dataset)
	}
	if cfg.Review.Shuffle {
		t.Error("Review.Shuffle = true, want false")
	}
	if !cfg.Review.LegacyQuestionKeys {
		t.Error("Review.LegacyQuestionKeys = false, want true")
	}
	if cfg.Review.DatasetTitle != "Pilot" {
		t.Errorf("Review.DatasetTitle = %q", cfg.Review.DatasetTitle)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `[server]
port = 5000

[review]
shuffle = true
`)

	t.Setenv("QAREVIEW_SERVER_PORT", "6000")
	t.Setenv("QAREVIEW_REVIEW_SHUFFLE", "false")
	t.Setenv("QAREVIEW_API_TOKEN", "env-token")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Review.Shuffle {
		t.Error("Review.Shuffle = true, want env override false")
	}
	if cfg.Server.APIToken != "env-token" {
		t.Errorf("Server.APIToken = %q, want env-token", cfg.Server.APIToken)
	}
}

func TestSecretsIgnoredInFile(t *testing.T) {
	path := writeTempConfig(t, `[server]
api_token = "from-file"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.APIToken != "" {
		t.Errorf("Server.APIToken = %q, want secrets read from env only", cfg.Server.APIToken)
	}
}

func TestInvalidEnvIntKeepsDefault(t *testing.T) {
	t.Setenv("QAREVIEW_SERVER_PORT", "not-a-number")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default 4100", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"bad mode", func(c *Config) { c.Dataset.Mode = "partial" }, "dataset.mode"},
		{"subset too large", func(c *Config) { c.Dataset.Subset = 101 }, "dataset.subset"},
		{"subset with preliminary", func(c *Config) { c.Dataset.Mode = "preliminary"; c.Dataset.Subset = 3 }, "dataset.subset"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"publish without bucket", func(c *Config) { c.Publish.Enabled = true }, "publish.bucket"},
		{"publish on files backend", func(c *Config) {
			c.Publish.Enabled = true
			c.Publish.Bucket = "b"
			c.Storage.Backend = BackendFiles
		}, "storage.backend = sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeTempConfig(t, `[storage]
backend = "postgres"
`)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := SetKey("server.port", "4200"); err != nil {
		t.Fatalf("SetKey(server.port): %v", err)
	}
	if err := SetKey("review.shuffle", "false"); err != nil {
		t.Fatalf("SetKey(review.shuffle): %v", err)
	}
	if err := SetKey("dataset.mode", "preliminary"); err != nil {
		t.Fatalf("SetKey(dataset.mode): %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4200 {
		t.Errorf("Server.Port = %d, want 4200", cfg.Server.Port)
	}
	if cfg.Review.Shuffle {
		t.Error("Review.Shuffle = true, want false")
	}
	if cfg.Dataset.Mode != "preliminary" {
		t.Errorf("Dataset.Mode = %q", cfg.Dataset.Mode)
	}
}

func TestSetKeyErrors(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := SetKey("no.such.key", "x"); err == nil {
		t.Error("unknown key accepted")
	}
	if err := SetKey("server.api_token", "x"); err == nil {
		t.Error("secret key accepted")
	}
	if err := SetKey("server.port", "abc"); err == nil {
		t.Error("non-integer port accepted")
	}
	if err := SetKey("review.shuffle", "maybe"); err == nil {
		t.Error("non-boolean shuffle accepted")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.APIToken = "secret"
	cfg.Publish.SecretKey = "secret"

	for _, info := range ShowAll(cfg) {
		if info.Value == "secret" {
			t.Errorf("ShowAll exposed %s", info.Key)
		}
		if !strings.HasPrefix(info.EnvVar, "QAREVIEW_") {
			t.Errorf("%s env var = %q", info.Key, info.EnvVar)
		}
	}
	if len(ValidKeys()) != len(ShowAll(cfg)) {
		t.Errorf("ValidKeys and ShowAll disagree: %d vs %d", len(ValidKeys()), len(ShowAll(cfg)))
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "warn", "error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): %v", s, err)
		}
	}
}
