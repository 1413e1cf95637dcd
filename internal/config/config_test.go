package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	t.Setenv(EnvJWTSecret, "test-secret")
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config file to be written: %v", err)
	}
	if cfg.Playlists.PageSize != 10 {
		t.Errorf("PageSize = %d, want 10", cfg.Playlists.PageSize)
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("JWTSecret = %q, want value from environment", cfg.Auth.JWTSecret)
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
port = "9000"
host = "127.0.0.1"

[playlists]
page_size = 25
search_limit = 5
recommend_limit = 10
liked_window = 20

[auth]
jwt_secret = "from-file"
token_duration = "2h"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got := cfg.GetAddress(); got != "127.0.0.1:9000" {
		t.Errorf("GetAddress() = %q", got)
	}
	if cfg.Playlists.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25", cfg.Playlists.PageSize)
	}
	d, err := cfg.Auth.ParseTokenDuration()
	if err != nil || d != 2*time.Hour {
		t.Errorf("ParseTokenDuration() = %v, %v", d, err)
	}
	// untouched sections keep their defaults
	if cfg.Storage.CoversDir != "./uploads/covers" {
		t.Errorf("CoversDir = %q, want default", cfg.Storage.CoversDir)
	}
}

func TestLoadConfigRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server\nport="), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnvFromFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("CADENCE_JWT_SECRET=dotenv-secret\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set
	t.Setenv(EnvJWTSecret, "")
	os.Unsetenv(EnvJWTSecret)

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(envFile); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}
	if cfg.Auth.JWTSecret != "dotenv-secret" {
		t.Errorf("JWTSecret = %q, want dotenv-secret", cfg.Auth.JWTSecret)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
		{name: "zero page size", mutate: func(c *Config) { c.Playlists.PageSize = 0 }, wantErr: true},
		{name: "bad token duration", mutate: func(c *Config) { c.Auth.TokenDuration = "soon" }, wantErr: true},
		{name: "negative token duration", mutate: func(c *Config) { c.Auth.TokenDuration = "-1h" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "tiny cover size", mutate: func(c *Config) { c.Storage.CoverMaxSize = 4 }, wantErr: true},
		{name: "bad grace period", mutate: func(c *Config) { c.Storage.SweepGracePeriod = "later" }, wantErr: true},
		{name: "sweep disabled ignores schedule", mutate: func(c *Config) {
			c.Storage.SweepEnabled = false
			c.Storage.SweepSchedule = ""
		}, wantErr: false},
		{name: "ngrok without token", mutate: func(c *Config) { c.Ngrok.Enabled = true }, wantErr: true},
		{name: "no formats", mutate: func(c *Config) { c.Library.SupportedFormats = nil }, wantErr: true},
		{name: "negative auth rate", mutate: func(c *Config) { c.Server.AuthRequestsPerMinute = -1 }, wantErr: true},
		{name: "auth rate disabled", mutate: func(c *Config) { c.Server.AuthRequestsPerMinute = 0 }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Auth.JWTSecret = "secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("Validate() expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestMaxUploadBytes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.MaxUploadSizeMB = 2
	if got := cfg.MaxUploadBytes(); got != 2*1024*1024 {
		t.Errorf("MaxUploadBytes() = %d", got)
	}
}
