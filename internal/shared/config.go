package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values read from the config file.
const (
	EnvClientID     = "SPOTCTL_CLIENT_ID"
	EnvCallbackPort = "SPOTCTL_CALLBACK_PORT"
	EnvDeviceID     = "SPOTCTL_DEVICE_ID"
	EnvStore        = "SPOTCTL_STORE"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Spotify  SpotifyConfig  `toml:"spotify"`
	Playback PlaybackConfig `toml:"playback"`
	Store    StoreConfig    `toml:"store"`
}

// SpotifyConfig contains the implicit-grant client settings.
type SpotifyConfig struct {
	ClientID     string   `toml:"client_id"`
	CallbackPort int      `toml:"callback_port"`
	Scopes       []string `toml:"scopes"`
	AuthTimeout  Duration `toml:"auth_timeout"`
	LockTimeout  Duration `toml:"lock_timeout"`
}

// PlaybackConfig contains player and session timing.
type PlaybackConfig struct {
	DeviceID     string   `toml:"device_id"`
	PollDelay    Duration `toml:"poll_delay"`
	PollInterval Duration `toml:"poll_interval"`
	RetryDelay   Duration `toml:"retry_delay"`
	CloseTimeout Duration `toml:"close_timeout"`
	RateLimit    float64  `toml:"rate_limit"`
}

// StoreConfig selects and configures the key/value backend.
type StoreConfig struct {
	Type   string       `toml:"type"`
	SQLite SQLiteConfig `toml:"sqlite"`
	Redis  RedisConfig  `toml:"redis"`
}

// SQLiteConfig contains database connection settings.
type SQLiteConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Duration wraps [time.Duration] so it reads and writes as a string like "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes the config and overwrites the file at path.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv loads an optional dotenv file and overlays SPOTCTL_* variables onto the config.
//
// A missing dotenv file is not an error.
func (c *Config) ApplyEnv(dotenvPath string) error {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", dotenvPath, err)
		}
	}

	if v := os.Getenv(EnvClientID); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv(EnvCallbackPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvCallbackPort, v)
		}
		c.Spotify.CallbackPort = port
	}
	if v := os.Getenv(EnvDeviceID); v != "" {
		c.Playback.DeviceID = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		c.Store.Type = v
	}
	return nil
}

// Validate reports every problem with the config at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Spotify.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("%w: spotify.client_id is required", ErrInvalidConfig))
	}
	if c.Spotify.CallbackPort < 0 || c.Spotify.CallbackPort > 65535 {
		result = multierror.Append(result, fmt.Errorf("%w: spotify.callback_port %d out of range", ErrInvalidConfig, c.Spotify.CallbackPort))
	}
	if len(c.Spotify.Scopes) == 0 {
		result = multierror.Append(result, fmt.Errorf("%w: spotify.scopes is empty", ErrInvalidConfig))
	}

	positive := map[string]Duration{
		"spotify.auth_timeout":   c.Spotify.AuthTimeout,
		"spotify.lock_timeout":   c.Spotify.LockTimeout,
		"playback.poll_interval": c.Playback.PollInterval,
		"playback.close_timeout": c.Playback.CloseTimeout,
	}
	for name, d := range positive {
		if d.Duration <= 0 {
			result = multierror.Append(result, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name))
		}
	}
	if c.Playback.PollDelay.Duration < 0 || c.Playback.RetryDelay.Duration < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: playback delays must not be negative", ErrInvalidConfig))
	}
	if c.Playback.RateLimit < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: playback.rate_limit must not be negative", ErrInvalidConfig))
	}

	switch c.Store.Type {
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			result = multierror.Append(result, fmt.Errorf("%w: store.sqlite.path is required", ErrInvalidConfig))
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			result = multierror.Append(result, fmt.Errorf("%w: store.redis.addr is required", ErrInvalidConfig))
		}
	case "memory":
	default:
		result = multierror.Append(result, fmt.Errorf("%w: %q", ErrUnknownStore, c.Store.Type))
	}

	return result.ErrorOrNil()
}
