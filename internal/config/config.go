// Package config provides configuration parsing and validation for the
// SOCKS5 proxy.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete proxy configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Log       LogConfig       `yaml:"log"`
	Relay     RelayConfig     `yaml:"relay"`
	KeepAlive KeepAliveConfig `yaml:"keepalive"`
}

// ListenConfig configures the TCP listener that accepts SOCKS5 clients.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Backlog is the pending-connection queue depth passed to
	// listen(2). Zero means "use the platform default."
	Backlog int `yaml:"backlog"`

	// MaxConnections limits concurrent sessions (0 = unlimited).
	MaxConnections int `yaml:"max_connections"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// RelayConfig tunes the CONNECT dial and the streaming relay.
type RelayConfig struct {
	// BufferSize sizes both the per-direction relay buffer and the
	// scratch buffer used while reading the handshake and request.
	BufferSize int `yaml:"buffer_size"`

	// ConnectTimeout bounds dialing the requested destination.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// IdleTimeout, if set, bounds how long a client may sit idle
	// before completing the handshake and request.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// RateLimitBytesPerSec caps relay throughput per direction per
	// session when positive; 0 disables limiting.
	RateLimitBytesPerSec int64 `yaml:"rate_limit_bytes_per_sec"`
}

// KeepAliveConfig controls TCP keepalive on both the client and
// upstream connections of every session.
type KeepAliveConfig struct {
	Idle time.Duration `yaml:"idle"`
}

// UnmarshalYAML lets RelayConfig's duration fields be written as plain
// strings ("5s", "1m30s") in the config file. yaml.v3 resolves a bare
// scalar against int/float/bool/string only, so a duration string
// fails to unmarshal straight into a time.Duration field without this.
func (r *RelayConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		BufferSize           int    `yaml:"buffer_size"`
		ConnectTimeout       string `yaml:"connect_timeout"`
		IdleTimeout          string `yaml:"idle_timeout"`
		RateLimitBytesPerSec int64  `yaml:"rate_limit_bytes_per_sec"`
	}
	p := plain{
		BufferSize:           r.BufferSize,
		ConnectTimeout:       r.ConnectTimeout.String(),
		IdleTimeout:          r.IdleTimeout.String(),
		RateLimitBytesPerSec: r.RateLimitBytesPerSec,
	}
	if err := value.Decode(&p); err != nil {
		return err
	}

	r.BufferSize = p.BufferSize
	r.RateLimitBytesPerSec = p.RateLimitBytesPerSec
	if p.ConnectTimeout != "" {
		d, err := time.ParseDuration(p.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("relay.connect_timeout: %w", err)
		}
		r.ConnectTimeout = d
	}
	if p.IdleTimeout != "" {
		d, err := time.ParseDuration(p.IdleTimeout)
		if err != nil {
			return fmt.Errorf("relay.idle_timeout: %w", err)
		}
		r.IdleTimeout = d
	}
	return nil
}

// UnmarshalYAML lets KeepAliveConfig.Idle be written as a duration
// string; see RelayConfig.UnmarshalYAML.
func (k *KeepAliveConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		Idle string `yaml:"idle"`
	}
	p := plain{Idle: k.Idle.String()}
	if err := value.Decode(&p); err != nil {
		return err
	}
	if p.Idle == "" {
		return nil
	}
	d, err := time.ParseDuration(p.Idle)
	if err != nil {
		return fmt.Errorf("keepalive.idle: %w", err)
	}
	k.Idle = d
	return nil
}

// MarshalYAML renders RelayConfig's durations as human-readable
// strings instead of raw nanosecond integers.
func (r RelayConfig) MarshalYAML() (interface{}, error) {
	return struct {
		BufferSize           int    `yaml:"buffer_size"`
		ConnectTimeout       string `yaml:"connect_timeout"`
		IdleTimeout          string `yaml:"idle_timeout"`
		RateLimitBytesPerSec int64  `yaml:"rate_limit_bytes_per_sec"`
	}{r.BufferSize, r.ConnectTimeout.String(), r.IdleTimeout.String(), r.RateLimitBytesPerSec}, nil
}

// MarshalYAML renders KeepAliveConfig.Idle as a duration string.
func (k KeepAliveConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Idle string `yaml:"idle"`
	}{k.Idle.String()}, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Host:           "127.0.0.1",
			Port:           8789,
			Backlog:        256,
			MaxConnections: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Relay: RelayConfig{
			BufferSize:     2048,
			ConnectTimeout: 10 * time.Second,
		},
		KeepAlive: KeepAliveConfig{
			Idle: 60 * time.Second,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding environment
// variable references first.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their
// values. ${VAR:-default} falls back to default when VAR is unset.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // keep original if not found
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Listen.Host == "" {
		errs = append(errs, "listen.host is required")
	}
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		errs = append(errs, "listen.port must be between 1 and 65535")
	}
	if c.Listen.Backlog < 0 {
		errs = append(errs, "listen.backlog must not be negative")
	}
	if c.Listen.MaxConnections < 0 {
		errs = append(errs, "listen.max_connections must not be negative")
	}

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.Relay.BufferSize < 512 {
		errs = append(errs, "relay.buffer_size must be at least 512")
	}
	if c.Relay.ConnectTimeout <= 0 {
		errs = append(errs, "relay.connect_timeout must be positive")
	}
	if c.Relay.RateLimitBytesPerSec < 0 {
		errs = append(errs, "relay.rate_limit_bytes_per_sec must not be negative")
	}

	if c.KeepAlive.Idle < 0 {
		errs = append(errs, "keepalive.idle must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// String renders the configuration as YAML for logging at startup.
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config marshal error: %v>", err)
	}
	return string(out)
}
