package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "CODORACHAT_"

// FileEnvVar names the environment variable holding the JSON config file path
const FileEnvVar = EnvPrefix + "CONFIG_FILE"

// Config is the complete server configuration
type Config struct {
	HTTP      *HTTPConfig      `json:"http" envPrefix:"HTTP_"`
	WebSocket *WebSocketConfig `json:"websocket" envPrefix:"WEBSOCKET_"`
	Typing    *TypingConfig    `json:"typing" envPrefix:"TYPING_"`
	Auth      *AuthConfig      `json:"auth" envPrefix:"AUTH_"`
	Database  *DatabaseConfig  `json:"database" envPrefix:"DATABASE_"`
	RateLimit *RateLimitConfig `json:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

type HTTPConfig struct {
	Host         string        `json:"host" env:"HOST"`
	Port         int           `json:"port" env:"PORT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval" env:"PING_INTERVAL"`
	ReadTimeout    time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	BufferSize     int           `json:"buffer_size" env:"BUFFER_SIZE"`
	MaxMessageSize int64         `json:"max_message_size" env:"MAX_MESSAGE_SIZE"`
}

// TypingConfig holds the typing-state expiry
type TypingConfig struct {
	Timeout time.Duration `json:"timeout" env:"TIMEOUT"`
}

type AuthConfig struct {
	Secret     string        `json:"secret" env:"SECRET"`
	TokenTTL   time.Duration `json:"token_ttl" env:"TOKEN_TTL"`
	Issuer     string        `json:"issuer" env:"ISSUER"`
	BcryptCost int           `json:"bcrypt_cost" env:"BCRYPT_COST"`
}

type DatabaseConfig struct {
	Path    string        `json:"path" env:"PATH"`
	Timeout time.Duration `json:"timeout" env:"TIMEOUT"`
}

// RateLimitConfig caps chat messages per user; 0 disables the limit
type RateLimitConfig struct {
	MessagesPerMinute int `json:"messages_per_minute" env:"MESSAGES_PER_MINUTE"`
}

// DefaultConfig returns production defaults. The auth secret has no default
// and must be supplied through the environment or a config file.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 64 * 1024,
		},
		Typing: &TypingConfig{
			Timeout: 1000 * time.Millisecond,
		},
		Auth: &AuthConfig{
			TokenTTL:   time.Hour,
			Issuer:     "codorachat",
			BcryptCost: 10,
		},
		Database: &DatabaseConfig{
			Path:    "./data/codorachat.db",
			Timeout: 30 * time.Second,
		},
		RateLimit: &RateLimitConfig{
			MessagesPerMinute: 100,
		},
	}
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.HTTP == nil || c.WebSocket == nil || c.Typing == nil ||
		c.Auth == nil || c.Database == nil || c.RateLimit == nil {
		return fmt.Errorf("all configuration sections are required")
	}

	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	if c.Typing.Timeout <= 0 {
		return fmt.Errorf("typing timeout must be positive")
	}

	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token TTL must be positive")
	}
	if c.Auth.BcryptCost <= 0 {
		return fmt.Errorf("bcrypt cost must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.RateLimit.MessagesPerMinute < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	return nil
}

// Address returns the HTTP listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadFromEnv overlays CODORACHAT_* environment variables on the defaults
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// fileConfig mirrors Config with durations as strings ("30s", "1h")
type fileConfig struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval   string `json:"ping_interval"`
		ReadTimeout    string `json:"read_timeout"`
		WriteTimeout   string `json:"write_timeout"`
		BufferSize     int    `json:"buffer_size"`
		MaxMessageSize int64  `json:"max_message_size"`
	} `json:"websocket"`
	Typing *struct {
		Timeout string `json:"timeout"`
	} `json:"typing"`
	Auth *struct {
		Secret     string `json:"secret"`
		TokenTTL   string `json:"token_ttl"`
		Issuer     string `json:"issuer"`
		BcryptCost int    `json:"bcrypt_cost"`
	} `json:"auth"`
	Database *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	RateLimit *struct {
		MessagesPerMinute *int `json:"messages_per_minute"`
	} `json:"rate_limit"`
}

// LoadFromFile reads a JSON config file on top of the defaults and validates the result
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// applyFile overlays the fields present in the file; absent fields keep their value
func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file fileConfig
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	d := durationSetter{path: path}

	if f := file.HTTP; f != nil {
		setString(&config.HTTP.Host, f.Host)
		setInt(&config.HTTP.Port, f.Port)
		d.set(&config.HTTP.ReadTimeout, "http.read_timeout", f.ReadTimeout)
		d.set(&config.HTTP.WriteTimeout, "http.write_timeout", f.WriteTimeout)
	}

	if f := file.WebSocket; f != nil {
		d.set(&config.WebSocket.PingInterval, "websocket.ping_interval", f.PingInterval)
		d.set(&config.WebSocket.ReadTimeout, "websocket.read_timeout", f.ReadTimeout)
		d.set(&config.WebSocket.WriteTimeout, "websocket.write_timeout", f.WriteTimeout)
		setInt(&config.WebSocket.BufferSize, f.BufferSize)
		if f.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = f.MaxMessageSize
		}
	}

	if f := file.Typing; f != nil {
		d.set(&config.Typing.Timeout, "typing.timeout", f.Timeout)
	}

	if f := file.Auth; f != nil {
		setString(&config.Auth.Secret, f.Secret)
		d.set(&config.Auth.TokenTTL, "auth.token_ttl", f.TokenTTL)
		setString(&config.Auth.Issuer, f.Issuer)
		setInt(&config.Auth.BcryptCost, f.BcryptCost)
	}

	if f := file.Database; f != nil {
		setString(&config.Database.Path, f.Path)
		d.set(&config.Database.Timeout, "database.timeout", f.Timeout)
	}

	// Pointer so an explicit 0 can disable limiting
	if f := file.RateLimit; f != nil && f.MessagesPerMinute != nil {
		config.RateLimit.MessagesPerMinute = *f.MessagesPerMinute
	}

	return d.err
}

// durationSetter parses duration strings, remembering the first failure
type durationSetter struct {
	path string
	err  error
}

func (d *durationSetter) set(target *time.Duration, field, value string) {
	if value == "" || d.err != nil {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		d.err = fmt.Errorf("invalid duration for %s in %s: %w", field, d.path, err)
		return
	}
	*target = parsed
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func setInt(target *int, value int) {
	if value > 0 {
		*target = value
	}
}

// LoadConfigWithPrecedence builds the configuration from defaults, then the
// environment, then the JSON file at path (if non-empty), and validates it.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := DefaultConfig()

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
