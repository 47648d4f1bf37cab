package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/spreads/client/internal/errors"
)

// TestLoad_AllFields verifies that all config fields are parsed correctly from TOML.
func TestLoad_AllFields(t *testing.T) {
	content := `
server = "https://scanner.local:8443"
log_file = "/var/log/spreadsctl.log"
request_timeout_ms = 2500
error_banner_ms = 7000
info_banner_ms = 1500

[simulator]
addr = "0.0.0.0:5001"
db = "/tmp/sim.db"
capture_delay_ms = 50
stage_delay_ms = 20
mdns = true
commands_per_second = 3.5
`
	tmpFile := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(tmpFile, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server != "https://scanner.local:8443" {
		t.Errorf("Server = %q, want %q", cfg.Server, "https://scanner.local:8443")
	}
	if cfg.LogFile != "/var/log/spreadsctl.log" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
	if cfg.RequestTimeoutMs != 2500 {
		t.Errorf("RequestTimeoutMs = %d, want %d", cfg.RequestTimeoutMs, 2500)
	}
	if cfg.ErrorBannerMs != 7000 {
		t.Errorf("ErrorBannerMs = %d, want %d", cfg.ErrorBannerMs, 7000)
	}
	if cfg.InfoBannerMs != 1500 {
		t.Errorf("InfoBannerMs = %d, want %d", cfg.InfoBannerMs, 1500)
	}
	if cfg.Simulator.Addr != "0.0.0.0:5001" {
		t.Errorf("Simulator.Addr = %q", cfg.Simulator.Addr)
	}
	if cfg.Simulator.DB != "/tmp/sim.db" {
		t.Errorf("Simulator.DB = %q", cfg.Simulator.DB)
	}
	if cfg.Simulator.CaptureDelayMs != 50 {
		t.Errorf("Simulator.CaptureDelayMs = %d, want 50", cfg.Simulator.CaptureDelayMs)
	}
	if cfg.Simulator.StageDelayMs != 20 {
		t.Errorf("Simulator.StageDelayMs = %d, want 20", cfg.Simulator.StageDelayMs)
	}
	if !cfg.Simulator.MDNS {
		t.Error("Simulator.MDNS = false, want true")
	}
	if cfg.Simulator.CommandsPerSecond != 3.5 {
		t.Errorf("Simulator.CommandsPerSecond = %v, want 3.5", cfg.Simulator.CommandsPerSecond)
	}
}

// TestLoad_PartialConfig verifies unset fields receive defaults.
func TestLoad_PartialConfig(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(tmpFile, []byte(`server = "http://10.0.0.5:5000"`), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server != "http://10.0.0.5:5000" {
		t.Errorf("Server = %q", cfg.Server)
	}
	if cfg.RequestTimeoutMs != DefaultRequestTimeoutMs {
		t.Errorf("RequestTimeoutMs = %d, want %d", cfg.RequestTimeoutMs, DefaultRequestTimeoutMs)
	}
	if cfg.ErrorBanner().Milliseconds() != DefaultErrorBannerMs {
		t.Errorf("ErrorBanner() = %v", cfg.ErrorBanner())
	}
	if cfg.InfoBanner().Milliseconds() != DefaultInfoBannerMs {
		t.Errorf("InfoBanner() = %v", cfg.InfoBanner())
	}
	if cfg.Simulator.Addr != DefaultSimulatorAddr {
		t.Errorf("Simulator.Addr = %q, want %q", cfg.Simulator.Addr, DefaultSimulatorAddr)
	}
}

func TestLoad_ExplicitPath_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("Load() should fail for a missing explicit path")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v", err)
	}
}

// TestLoad_EmptyPath_NoDefaultFile verifies that an empty path returns
// a default Config without error when no default file exists.
func TestLoad_EmptyPath_NoDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Server != DefaultServer {
		t.Errorf("Server = %q, want %q", cfg.Server, DefaultServer)
	}
}

// TestLoad_EmptyPath_DefaultFileExists verifies that an empty path loads
// from the default location when the file exists.
func TestLoad_EmptyPath_DefaultFileExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".spreads")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "client.toml")
	if err := os.WriteFile(configPath, []byte(`server = "http://localhost:7777"`), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Server != "http://localhost:7777" {
		t.Errorf("Server = %q, want %q", cfg.Server, "http://localhost:7777")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(tmpFile, []byte(`server = `), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	if _, err := Load(tmpFile); err == nil {
		t.Fatal("Load() should fail for invalid TOML")
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".spreads", "client.toml")

	if err := WriteDefault(configPath, "http://scanner:5000"); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("File permissions = %o, want 0600", info.Mode().Perm())
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server != "http://scanner:5000" {
		t.Errorf("Server = %q, want %q", cfg.Server, "http://scanner:5000")
	}
}

func TestWriteDefault_NoOverwrite(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(configPath, []byte(`server = "http://existing:1"`), 0600); err != nil {
		t.Fatalf("Failed to write existing config: %v", err)
	}

	if err := WriteDefault(configPath, "http://new:2"); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server != "http://existing:1" {
		t.Errorf("Server = %q, original should be preserved", cfg.Server)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "https server", mutate: func(c *Config) { c.Server = "https://scanner" }},
		{name: "ws scheme rejected", mutate: func(c *Config) { c.Server = "ws://scanner" }, wantErr: true},
		{name: "missing host", mutate: func(c *Config) { c.Server = "http://" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.RequestTimeoutMs = -1 }, wantErr: true},
		{name: "negative stage delay", mutate: func(c *Config) { c.Simulator.StageDelayMs = -5 }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.Simulator.CommandsPerSecond = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
					t.Errorf("Validate() = %v, want %s", err, apperrors.CodeConfigInvalid)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}
