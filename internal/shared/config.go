package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values from the config file.
const (
	EnvAuthCodePath         = "PATH_AUTH_CODE"
	EnvAuthenticationsPath  = "PATH_AUTHENTICATIONS"
	EnvUseFileAuthResponse  = "USE_FILE_AUTH_RESPONSE"
	EnvUseLocalAuthRedirect = "USE_LOCAL_AUTH_REDIRECT"
	EnvAuthFileReadTimeout  = "AUTH_FILE_READ_TIMEOUT"
	EnvSecretPath           = "YTUP_SECRET_PATH"
	EnvDatabasePath         = "YTUP_DATABASE_PATH"
	EnvLogLevel             = "YTUP_LOG_LEVEL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Auth     AuthConfig     `toml:"auth"`
	Retry    RetryConfig    `toml:"retry"`
	Upload   UploadConfig   `toml:"upload"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// AuthConfig controls how credentials are obtained and where they are kept.
type AuthConfig struct {
	SecretPath           string   `toml:"secret_path"`
	PathAuthentications  string   `toml:"path_authentications"`
	PathAuthCode         string   `toml:"path_auth_code"`
	UseFileAuthResponse  bool     `toml:"use_file_auth_response"`
	UseLocalAuthRedirect bool     `toml:"use_local_auth_redirect"`
	AuthFileReadTimeout  int      `toml:"auth_file_read_timeout"`
	LocalRedirectURI     string   `toml:"local_redirect_uri"`
	RemoteRedirectURI    string   `toml:"remote_redirect_uri"`
	OpenBrowser          bool     `toml:"open_browser"`
	Scopes               []string `toml:"scopes"`
}

// PollInterval is the pause between reads of the auth code file.
func (a AuthConfig) PollInterval() time.Duration {
	if a.AuthFileReadTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(a.AuthFileReadTimeout) * time.Second
}

// RedirectURI picks the local or remote redirect target.
func (a AuthConfig) RedirectURI() string {
	if a.UseLocalAuthRedirect {
		return a.LocalRedirectURI
	}
	return a.RemoteRedirectURI
}

// RetryConfig holds the exponential backoff parameters for API calls.
type RetryConfig struct {
	MaxAttempts int     `toml:"max_attempts"`
	BaseDelayMS int     `toml:"base_delay_ms"`
	MaxDelayMS  int     `toml:"max_delay_ms"`
	Multiplier  float64 `toml:"multiplier"`
	Jitter      float64 `toml:"jitter"`
	RateLimit   float64 `toml:"rate_limit"`
}

// BaseDelay returns the delay before the first retry.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the upper bound for any single wait.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// UploadConfig holds defaults for video uploads.
type UploadConfig struct {
	CategoryID  string `toml:"category_id"`
	ContentType string `toml:"content_type"`
	ChunkSizeMB int    `toml:"chunk_size_mb"`
	Privacy     string `toml:"privacy"`
	Workers     int    `toml:"workers"`
}

// ChunkSize returns the resumable upload chunk size in bytes.
func (u UploadConfig) ChunkSize() int {
	if u.ChunkSizeMB <= 0 {
		return 8 * 1024 * 1024
	}
	return u.ChunkSizeMB * 1024 * 1024
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the auth callback server.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	CallbackPath string `toml:"callback_path"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig controls log level and optional file rotation.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// LoadConfig reads a TOML configuration file on top of the defaults, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// LoadEnv reads KEY=VALUE pairs from the given dotenv files into the process environment.
// Missing files are skipped and variables already set are left untouched.
func LoadEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto the config. lookup is usually [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAuthCodePath); ok && v != "" {
		c.Auth.PathAuthCode = v
	}
	if v, ok := lookup(EnvAuthenticationsPath); ok && v != "" {
		c.Auth.PathAuthentications = v
	}
	if v, ok := lookup(EnvSecretPath); ok && v != "" {
		c.Auth.SecretPath = v
	}
	if v, ok := lookup(EnvDatabasePath); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}

	for key, dst := range map[string]*bool{
		EnvUseFileAuthResponse:  &c.Auth.UseFileAuthResponse,
		EnvUseLocalAuthRedirect: &c.Auth.UseLocalAuthRedirect,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		b, err := parseFlag(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
		}
		*dst = b
	}

	if v, ok := lookup(EnvAuthFileReadTimeout); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvAuthFileReadTimeout, v)
		}
		c.Auth.AuthFileReadTimeout = n
	}
	return nil
}

// parseFlag accepts 1/0 as well as the forms [strconv.ParseBool] understands.
func parseFlag(v string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(v))
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
