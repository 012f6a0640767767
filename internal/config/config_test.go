// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML/TOML files, env var expansion, env overrides, defaults and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedEnv = []string{
	"HOST", "PORT", "SETUP_PASSWORD", "SETUP_SESSION_TTL",
	"OPENCLAW_CLI", "OPENCLAW_GATEWAY_TOKEN", "OPENCLAW_STATE_DIR", "OPENCLAW_WORKSPACE_DIR",
	"INTERNAL_GATEWAY_HOST", "INTERNAL_GATEWAY_PORT",
	"GATEWAY_PROCESS_PATTERN", "GATEWAY_READY_PATHS",
	"GATEWAY_READY_TIMEOUT", "GATEWAY_POLL_INTERVAL", "GATEWAY_RESTART_GRACE", "GATEWAY_PROBE_TIMEOUT",
	"TAILSCALE_ENABLED", "TAILSCALE_HOSTNAME", "TS_AUTHKEY", "TAILSCALE_STATE_DIR",
	"TAILSCALE_EPHEMERAL", "TAILSCALE_HTTPS", "TAILSCALE_FUNNEL",
	"WRAPPER_DB_PATH", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv unsets every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedEnv {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	clearEnv(t)
	state := t.TempDir()
	t.Setenv("SETUP_PASSWORD", "hunter2")
	t.Setenv("OPENCLAW_STATE_DIR", state)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr())
	assert.Equal(t, "hunter2", cfg.Setup.Password)
	assert.Equal(t, DefaultCLI, cfg.Gateway.CLI)
	assert.Equal(t, state, cfg.Gateway.StateDir)
	assert.Equal(t, filepath.Join(state, "workspace"), cfg.Gateway.WorkspaceDir)
	assert.Equal(t, filepath.Join(state, "openclaw.json"), cfg.Gateway.ConfigPath())
	assert.Equal(t, "http://127.0.0.1:18789", cfg.Gateway.Target())
	assert.Equal(t, DefaultReadyPaths, cfg.Gateway.ReadyPaths)
	assert.Equal(t, DefaultReadyTimeout, cfg.Gateway.ReadyTimeout)
	assert.Equal(t, DefaultPollInterval, cfg.Gateway.PollInterval)
	assert.Equal(t, DefaultRestartGrace, cfg.Gateway.RestartGrace)
	assert.Equal(t, DefaultSessionTTL, cfg.Setup.SessionTTL)
	assert.Equal(t, filepath.Join(state, "wrapper.db"), cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SETUP_PASSWORD", "pw")
	t.Setenv("OPENCLAW_STATE_DIR", t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("OPENCLAW_GATEWAY_TOKEN", "tok-from-env")
	t.Setenv("INTERNAL_GATEWAY_PORT", "19000")
	t.Setenv("GATEWAY_READY_TIMEOUT", "45s")
	t.Setenv("GATEWAY_POLL_INTERVAL", "100")
	t.Setenv("GATEWAY_READY_PATHS", "/healthz,/")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "tok-from-env", cfg.Gateway.Token)
	assert.Equal(t, 19000, cfg.Gateway.Port)
	assert.Equal(t, 45*time.Second, cfg.Gateway.ReadyTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Gateway.PollInterval)
	assert.Equal(t, []string{"/healthz", "/"}, cfg.Gateway.ReadyPaths)
}

func TestLoad_YAMLFileWithExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_WRAPPER_PASSWORD", "from-expansion")
	state := t.TempDir()

	path := writeConfig(t, "wrapper.yaml", `
server:
  host: "0.0.0.0"
  port: 8181
setup:
  password: "${TEST_WRAPPER_PASSWORD}"
  session_ttl: "1h"
gateway:
  cli: "/usr/local/bin/openclaw"
  state_dir: "`+state+`"
  port: 18800
  ready_timeout: "5s"
  restart_grace: "2s"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8181", cfg.Server.HTTPAddr())
	assert.Equal(t, "from-expansion", cfg.Setup.Password)
	assert.Equal(t, time.Hour, cfg.Setup.SessionTTL)
	assert.Equal(t, "/usr/local/bin/openclaw", cfg.Gateway.CLI)
	assert.Equal(t, 18800, cfg.Gateway.Port)
	assert.Equal(t, 5*time.Second, cfg.Gateway.ReadyTimeout)
	assert.Equal(t, 2*time.Second, cfg.Gateway.RestartGrace)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")

	path := writeConfig(t, "wrapper.yaml", `
server:
  port: 8181
setup:
  password: "pw"
gateway:
  state_dir: "`+t.TempDir()+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoad_TOMLFile(t *testing.T) {
	clearEnv(t)
	state := t.TempDir()

	path := writeConfig(t, "wrapper.toml", `
[server]
port = 8282

[setup]
password = "toml-pw"

[gateway]
state_dir = "`+state+`"
ready_timeout = "3s"
ready_paths = ["/ping"]

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8282, cfg.Server.Port)
	assert.Equal(t, "toml-pw", cfg.Setup.Password)
	assert.Equal(t, 3*time.Second, cfg.Gateway.ReadyTimeout)
	assert.Equal(t, []string{"/ping"}, cfg.Gateway.ReadyPaths)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "bad.yaml", "server: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("SETUP_PASSWORD", "pw")
	t.Setenv("OPENCLAW_STATE_DIR", t.TempDir())
	t.Setenv("GATEWAY_READY_TIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.ready_timeout")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8080},
			Setup:   SetupConfig{Password: "pw"},
			Gateway: GatewayConfig{Host: "127.0.0.1", Port: 18789, ProcessPattern: "^openclaw", ReadyPaths: []string{"/"}},
			Logging: LoggingConfig{Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing password", func(c *Config) { c.Setup.Password = "  " }, "SETUP_PASSWORD"},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad gateway port", func(c *Config) { c.Gateway.Port = 0 }, "gateway.port"},
		{"port clash", func(c *Config) { c.Gateway.Port = 8080; c.Gateway.Host = "" }, "must differ"},
		{"port clash on wildcard server host", func(c *Config) { c.Server.Port = 18789 }, "must differ"},
		{"port clash on 0.0.0.0", func(c *Config) { c.Server.Host = "0.0.0.0"; c.Server.Port = 18789 }, "must differ"},
		{"port clash on same host", func(c *Config) { c.Server.Host = "127.0.0.1"; c.Server.Port = 18789 }, "must differ"},
		{"same port on another interface", func(c *Config) { c.Server.Host = "10.0.0.5"; c.Server.Port = 18789 }, ""},
		{"bad pattern", func(c *Config) { c.Gateway.ProcessPattern = "(" }, "process_pattern"},
		{"relative ready path", func(c *Config) { c.Gateway.ReadyPaths = []string{"health"} }, "ready_paths"},
		{"tailscale without hostname", func(c *Config) { c.Tailscale.Enabled = true }, "tailscale.hostname"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("1500")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = parseDuration("2m30s")
	require.NoError(t, err)
	assert.Equal(t, 150*time.Second, d)

	_, err = parseDuration("later")
	assert.Error(t, err)
}

func TestExpandEnvVars_UnsetIsEmpty(t *testing.T) {
	os.Unsetenv("UNSET_VAR_FOR_TEST")
	assert.Equal(t, "a--b", expandEnvVars("a-${UNSET_VAR_FOR_TEST}-b"))
}
