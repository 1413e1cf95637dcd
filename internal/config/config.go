package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override values from the config file.
const (
	EnvJWTSecret  = "CADENCE_JWT_SECRET"
	EnvNgrokToken = "NGROK_AUTHTOKEN"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Storage   StorageConfig   `toml:"storage"`
	Playlists PlaylistsConfig `toml:"playlists"`
	Auth      AuthConfig      `toml:"auth"`
	Library   LibraryConfig   `toml:"library"`
	Logging   LoggingConfig   `toml:"logging"`
	Ngrok     NgrokConfig     `toml:"ngrok"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port           string `toml:"port"`
	Host           string `toml:"host"`
	EnableCORS     bool   `toml:"enable_cors"`
	ReadTimeout    int    `toml:"read_timeout_seconds"`
	WriteTimeout   int    `toml:"write_timeout_seconds"`
	RequestLogging bool   `toml:"request_logging"`

	// Per client IP limit on /auth requests; 0 disables it
	AuthRequestsPerMinute int `toml:"auth_requests_per_minute"`
	AuthBurst             int `toml:"auth_burst"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// StorageConfig controls where playlist covers live and how they are processed
type StorageConfig struct {
	CoversDir        string `toml:"covers_dir"`
	PublicPrefix     string `toml:"public_prefix"`
	MaxUploadSizeMB  int64  `toml:"max_upload_size_mb"`
	CoverMaxSize     int    `toml:"cover_max_size"`
	SweepEnabled     bool   `toml:"sweep_enabled"`
	SweepSchedule    string `toml:"sweep_schedule"`
	SweepGracePeriod string `toml:"sweep_grace_period"`
}

// PlaylistsConfig contains listing and recommendation limits
type PlaylistsConfig struct {
	PageSize       int `toml:"page_size"`
	SearchLimit    int `toml:"search_limit"`
	RecommendLimit int `toml:"recommend_limit"`
	LikedWindow    int `toml:"liked_window"`
}

// AuthConfig contains bearer token configuration
type AuthConfig struct {
	JWTSecret         string `toml:"jwt_secret"`
	TokenDuration     string `toml:"token_duration"`
	AllowRegistration bool   `toml:"allow_registration"`
	MinPasswordLength int    `toml:"min_password_length"`
}

// LibraryConfig contains track catalog import configuration
type LibraryConfig struct {
	Path             string   `toml:"path"`
	SupportedFormats []string `toml:"supported_formats"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
	ScanOnStartup    bool     `toml:"scan_on_startup"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled      bool   `toml:"enabled"`
	AuthToken    string `toml:"auth_token"`
	Domain       string `toml:"domain"`
	EnableAuth   bool   `toml:"enable_auth"`
	AuthProvider string `toml:"auth_provider"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			Host:           "0.0.0.0",
			EnableCORS:     true,
			ReadTimeout:    30,
			WriteTimeout:   30,
			RequestLogging: true,

			AuthRequestsPerMinute: 30,
			AuthBurst:             5,
		},
		Database: DatabaseConfig{
			Path:           "./cadence.db",
			MaxConnections: 5,
		},
		Storage: StorageConfig{
			CoversDir:        "./uploads/covers",
			PublicPrefix:     "/covers",
			MaxUploadSizeMB:  5,
			CoverMaxSize:     1024,
			SweepEnabled:     true,
			SweepSchedule:    "@every 6h",
			SweepGracePeriod: "1h",
		},
		Playlists: PlaylistsConfig{
			PageSize:       10,
			SearchLimit:    10,
			RecommendLimit: 10,
			LikedWindow:    20,
		},
		Auth: AuthConfig{
			JWTSecret:         "",
			TokenDuration:     "24h",
			AllowRegistration: true,
			MinPasswordLength: 6,
		},
		Library: LibraryConfig{
			Path:             "./music",
			SupportedFormats: []string{".flac", ".mp3", ".wav"},
			WatchForChanges:  true,
			ScanOnStartup:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Ngrok: NgrokConfig{
			Enabled:      false,
			AuthToken:    "",
			Domain:       "",
			EnableAuth:   false,
			AuthProvider: "google",
		},
	}
}

// LoadConfig loads configuration from a TOML file, then applies overrides
// from the environment (and a .env file next to the process, if present).
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.ApplyEnv(".env"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv loads envFile when it exists and copies secrets from the
// environment into the config. Values already present in the process
// environment win over the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if token := os.Getenv(EnvNgrokToken); token != "" && c.Ngrok.AuthToken == "" {
		c.Ngrok.AuthToken = token
	}
	return nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Cadence Configuration
# Edit the values below to customize the playlist service.
# The JWT signing secret is best kept out of this file: set ` + EnvJWTSecret + ` in .env instead.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.AuthRequestsPerMinute < 0 || c.Server.AuthBurst < 0 {
		return fmt.Errorf("auth rate limit cannot be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Storage.CoversDir == "" {
		return fmt.Errorf("covers directory cannot be empty")
	}
	if c.Storage.MaxUploadSizeMB < 1 {
		return fmt.Errorf("max upload size must be at least 1 MB")
	}
	if c.Storage.CoverMaxSize < 16 {
		return fmt.Errorf("cover max size must be at least 16 pixels")
	}
	if c.Storage.SweepEnabled {
		if c.Storage.SweepSchedule == "" {
			return fmt.Errorf("sweep schedule cannot be empty when sweeping is enabled")
		}
		if _, err := time.ParseDuration(c.Storage.SweepGracePeriod); err != nil {
			return fmt.Errorf("invalid sweep grace period %q: %w", c.Storage.SweepGracePeriod, err)
		}
	}

	if c.Playlists.PageSize < 1 {
		return fmt.Errorf("playlist page size must be at least 1")
	}
	if c.Playlists.SearchLimit < 1 || c.Playlists.RecommendLimit < 1 || c.Playlists.LikedWindow < 1 {
		return fmt.Errorf("playlist search, recommend and liked limits must be at least 1")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret cannot be empty (set %s)", EnvJWTSecret)
	}
	if _, err := c.Auth.ParseTokenDuration(); err != nil {
		return err
	}

	if c.Library.Path == "" {
		return fmt.Errorf("library path cannot be empty")
	}
	if len(c.Library.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Ngrok.Enabled && c.Ngrok.AuthToken == "" {
		return fmt.Errorf("ngrok is enabled but no auth token is set (set %s)", EnvNgrokToken)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// ParseTokenDuration parses the configured bearer token lifetime.
func (a AuthConfig) ParseTokenDuration() (time.Duration, error) {
	d, err := time.ParseDuration(a.TokenDuration)
	if err != nil {
		return 0, fmt.Errorf("invalid token duration %q: %w", a.TokenDuration, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("token duration must be positive")
	}
	return d, nil
}

// SweepGracePeriod parses how old an unreferenced cover must be before the sweep removes it.
func (c *Config) SweepGracePeriod() time.Duration {
	d, err := time.ParseDuration(c.Storage.SweepGracePeriod)
	if err != nil {
		return time.Hour
	}
	return d
}

// MaxUploadBytes returns the cover upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Storage.MaxUploadSizeMB * 1024 * 1024
}
