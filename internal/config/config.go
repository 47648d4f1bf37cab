// Package config provides TOML configuration file loading for the spreads client.
// The configuration file lives at ~/.spreads/client.toml by default, but can be
// overridden with the --config flag. CLI flags always take precedence over file values.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	apperrors "github.com/spreads/client/internal/errors"
)

// Config represents the client configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Server is the origin of the spreads server (scheme + host[:port]).
	// The push channel URL is derived from it: http -> ws, https -> wss.
	// Default: http://127.0.0.1:5000
	Server string `toml:"server"`

	// LogFile receives process logging. The terminal screens own stdout,
	// so without a log file their logging is discarded.
	LogFile string `toml:"log_file"`

	// RequestTimeoutMs bounds each REST call to the workflow API.
	// Default: 10000
	RequestTimeoutMs int `toml:"request_timeout_ms"`

	// ErrorBannerMs is how long an error banner stays up before expiring.
	// Default: 5000
	ErrorBannerMs int `toml:"error_banner_ms"`

	// InfoBannerMs is how long an info banner stays up before expiring.
	// Default: 3000
	InfoBannerMs int `toml:"info_banner_ms"`

	// Fingerprint pins the SHA-256 fingerprint of a self-signed server
	// certificate (colon-separated hex, as printed by spreadsctl simulate
	// --tls). When set, https servers are trusted by fingerprint instead of
	// the system roots.
	Fingerprint string `toml:"fingerprint"`

	// Simulator configures the local development server (spreadsctl simulate).
	Simulator SimulatorConfig `toml:"simulator"`
}

// SimulatorConfig holds settings for the development server simulator.
type SimulatorConfig struct {
	// Addr is the host:port the simulator listens on.
	// Default: 127.0.0.1:5000
	Addr string `toml:"addr"`

	// DB is the path to the simulator's SQLite workflow store.
	// Default: ~/.spreads/simulator.db
	DB string `toml:"db"`

	// CaptureDelayMs is how long a simulated capture takes.
	// Default: 400
	CaptureDelayMs int `toml:"capture_delay_ms"`

	// StageDelayMs is how long each simulated processing stage takes.
	// Default: 300
	StageDelayMs int `toml:"stage_delay_ms"`

	// MDNS advertises the simulator on the local network.
	MDNS bool `toml:"mdns"`

	// CommandsPerSecond limits inbound commands per connection.
	// Default: 10
	CommandsPerSecond float64 `toml:"commands_per_second"`

	// TLS serves https and wss with a self-signed certificate.
	TLS bool `toml:"tls"`

	// CertFile and KeyFile locate the simulator's certificate; both are
	// generated on first use.
	// Default: ~/.spreads/certs/simulator.crt and simulator.key
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// DefaultConfigPath returns the default config file location: ~/.spreads/client.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".spreads", "client.toml"), nil
}

// WriteDefault creates a config file pointing at the given server.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
func WriteDefault(path string, server string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# spreads client configuration

# Origin of the spreads server; the push channel is derived from it
server = %q

[simulator]
addr = %q
`, server, DefaultSimulatorAddr)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config
// with defaults applied to every unset field.
//
// Behavior:
//   - If path is empty, attempts to load from the default location.
//     Returns a default Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		path = defaultPath
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.RequestTimeoutMs == 0 {
		c.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if c.ErrorBannerMs == 0 {
		c.ErrorBannerMs = DefaultErrorBannerMs
	}
	if c.InfoBannerMs == 0 {
		c.InfoBannerMs = DefaultInfoBannerMs
	}
	if c.Simulator.Addr == "" {
		c.Simulator.Addr = DefaultSimulatorAddr
	}
	if c.Simulator.DB == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Simulator.DB = filepath.Join(home, ".spreads", "simulator.db")
		} else {
			c.Simulator.DB = "simulator.db"
		}
	}
	if c.Simulator.CaptureDelayMs == 0 {
		c.Simulator.CaptureDelayMs = DefaultCaptureDelayMs
	}
	if c.Simulator.StageDelayMs == 0 {
		c.Simulator.StageDelayMs = DefaultStageDelayMs
	}
	if c.Simulator.CommandsPerSecond == 0 {
		c.Simulator.CommandsPerSecond = DefaultCommandsPerSecond
	}
}

// Validate checks values that would otherwise fail late (at dial time or
// when a timer is armed).
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil {
		return apperrors.ConfigInvalid(fmt.Sprintf("server %q is not a URL: %v", c.Server, err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperrors.ConfigInvalid(fmt.Sprintf("server %q must use http or https", c.Server))
	}
	if u.Host == "" {
		return apperrors.ConfigInvalid(fmt.Sprintf("server %q has no host", c.Server))
	}

	durations := map[string]int{
		"request_timeout_ms":         c.RequestTimeoutMs,
		"error_banner_ms":            c.ErrorBannerMs,
		"info_banner_ms":             c.InfoBannerMs,
		"simulator.capture_delay_ms": c.Simulator.CaptureDelayMs,
		"simulator.stage_delay_ms":   c.Simulator.StageDelayMs,
	}
	for name, v := range durations {
		if v < 0 {
			return apperrors.ConfigInvalid(fmt.Sprintf("%s must not be negative (got %d)", name, v))
		}
	}
	if c.Simulator.CommandsPerSecond < 0 {
		return apperrors.ConfigInvalid("simulator.commands_per_second must not be negative")
	}
	return nil
}

// RequestTimeout returns the REST timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// ErrorBanner returns the error banner lifetime.
func (c *Config) ErrorBanner() time.Duration {
	return time.Duration(c.ErrorBannerMs) * time.Millisecond
}

// InfoBanner returns the info banner lifetime.
func (c *Config) InfoBanner() time.Duration {
	return time.Duration(c.InfoBannerMs) * time.Millisecond
}
