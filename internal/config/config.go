// ABOUTME: Configuration loading and parsing for coven-wrapper
// ABOUTME: Optional YAML/TOML file with env expansion, then environment overrides, defaults and validation

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Defaults for the child gateway.
const (
	DefaultPort           = 8080
	DefaultGatewayHost    = "127.0.0.1"
	DefaultGatewayPort    = 18789
	DefaultCLI            = "openclaw"
	DefaultReadyTimeout   = 20 * time.Second
	DefaultPollInterval   = 250 * time.Millisecond
	DefaultRestartGrace   = 1500 * time.Millisecond
	DefaultProbeTimeout   = 1500 * time.Millisecond
	DefaultSessionTTL     = 12 * time.Hour
	DefaultProcessPattern = `^openclaw`
	DefaultConfigFileName = "openclaw.json"
)

// DefaultReadyPaths are probed on the child until any of them answers.
var DefaultReadyPaths = []string{"/openclaw", "/", "/health"}

// Config represents the complete coven-wrapper configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Setup     SetupConfig     `yaml:"setup" toml:"setup"`
	Gateway   GatewayConfig   `yaml:"gateway" toml:"gateway"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the public listener settings
type ServerConfig struct {
	Host string `yaml:"host" toml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" toml:"port" envconfig:"PORT"`
}

// HTTPAddr returns the host:port the wrapper listens on.
func (s ServerConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SetupConfig protects the /setup flow
type SetupConfig struct {
	Password string `yaml:"password" toml:"password" envconfig:"SETUP_PASSWORD"`

	SessionTTL    time.Duration `yaml:"-" toml:"-" ignored:"true"`
	SessionTTLRaw string        `yaml:"session_ttl" toml:"session_ttl" envconfig:"SETUP_SESSION_TTL"`
}

// GatewayConfig describes the supervised child gateway and its CLI
type GatewayConfig struct {
	// CLI is the gateway's own command line tool, used both for one-shot
	// configuration and to run the gateway itself.
	CLI          string `yaml:"cli" toml:"cli" envconfig:"OPENCLAW_CLI"`
	Token        string `yaml:"token" toml:"token" envconfig:"OPENCLAW_GATEWAY_TOKEN"`
	StateDir     string `yaml:"state_dir" toml:"state_dir" envconfig:"OPENCLAW_STATE_DIR"`
	WorkspaceDir string `yaml:"workspace_dir" toml:"workspace_dir" envconfig:"OPENCLAW_WORKSPACE_DIR"`
	Host         string `yaml:"host" toml:"host" envconfig:"INTERNAL_GATEWAY_HOST"`
	Port         int    `yaml:"port" toml:"port" envconfig:"INTERNAL_GATEWAY_PORT"`

	// ProcessPattern matches executable names of gateway processes that
	// were started outside the supervisor and must be reaped on restart.
	ProcessPattern string   `yaml:"process_pattern" toml:"process_pattern" envconfig:"GATEWAY_PROCESS_PATTERN"`
	ReadyPaths     []string `yaml:"ready_paths" toml:"ready_paths" envconfig:"GATEWAY_READY_PATHS"`

	ReadyTimeout time.Duration `yaml:"-" toml:"-" ignored:"true"`
	PollInterval time.Duration `yaml:"-" toml:"-" ignored:"true"`
	RestartGrace time.Duration `yaml:"-" toml:"-" ignored:"true"`
	ProbeTimeout time.Duration `yaml:"-" toml:"-" ignored:"true"`

	// Raw string values for YAML/TOML unmarshaling and env overrides
	ReadyTimeoutRaw string `yaml:"ready_timeout" toml:"ready_timeout" envconfig:"GATEWAY_READY_TIMEOUT"`
	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval" envconfig:"GATEWAY_POLL_INTERVAL"`
	RestartGraceRaw string `yaml:"restart_grace" toml:"restart_grace" envconfig:"GATEWAY_RESTART_GRACE"`
	ProbeTimeoutRaw string `yaml:"probe_timeout" toml:"probe_timeout" envconfig:"GATEWAY_PROBE_TIMEOUT"`
}

// ConfigPath returns the gateway's persisted configuration document.
func (g GatewayConfig) ConfigPath() string {
	return filepath.Join(g.StateDir, DefaultConfigFileName)
}

// Target returns the child's internal base URL.
func (g GatewayConfig) Target() string {
	return fmt.Sprintf("http://%s:%d", g.Host, g.Port)
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" envconfig:"TAILSCALE_ENABLED"`
	Hostname  string `yaml:"hostname" toml:"hostname" envconfig:"TAILSCALE_HOSTNAME"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key" envconfig:"TS_AUTHKEY"`
	StateDir  string `yaml:"state_dir" toml:"state_dir" envconfig:"TAILSCALE_STATE_DIR"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral" envconfig:"TAILSCALE_EPHEMERAL"`
	HTTPS     bool   `yaml:"https" toml:"https" envconfig:"TAILSCALE_HTTPS"`
	Funnel    bool   `yaml:"funnel" toml:"funnel" envconfig:"TAILSCALE_FUNNEL"`
}

// DatabaseConfig holds the event journal location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" envconfig:"WRAPPER_DB_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" envconfig:"LOG_FORMAT"`
}

// Load builds the configuration. path may be empty, in which case only the
// environment and defaults are used. Files ending in .toml are decoded as
// TOML, everything else as YAML. Environment variables in the format
// ${VAR_NAME} are expanded inside the file before decoding.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
		return nil
	}

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays environment variables section by section. Unset
// variables leave file values untouched.
func applyEnv(cfg *Config) error {
	sections := []any{
		&cfg.Server,
		&cfg.Setup,
		&cfg.Gateway,
		&cfg.Tailscale,
		&cfg.Database,
		&cfg.Logging,
	}
	for _, s := range sections {
		if err := envconfig.Process("", s); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg *Config) error {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	g := &cfg.Gateway
	if g.CLI == "" {
		g.CLI = DefaultCLI
	}
	if g.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory (set OPENCLAW_STATE_DIR): %w", err)
		}
		g.StateDir = filepath.Join(home, ".openclaw")
	}
	if g.WorkspaceDir == "" {
		g.WorkspaceDir = filepath.Join(g.StateDir, "workspace")
	}
	if g.Host == "" {
		g.Host = DefaultGatewayHost
	}
	if g.Port == 0 {
		g.Port = DefaultGatewayPort
	}
	if g.ProcessPattern == "" {
		g.ProcessPattern = DefaultProcessPattern
	}
	if len(g.ReadyPaths) == 0 {
		g.ReadyPaths = append([]string(nil), DefaultReadyPaths...)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(g.StateDir, "wrapper.db")
	}
	if cfg.Tailscale.Enabled && cfg.Tailscale.StateDir == "" {
		cfg.Tailscale.StateDir = filepath.Join(g.StateDir, "tailscale")
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Setup.Password) == "" {
		return errors.New("setup.password is required (set SETUP_PASSWORD)")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	if c.Gateway.Port == c.Server.Port && bindsOver(c.Server.Host, c.Gateway.Host) {
		return fmt.Errorf("gateway.port must differ from server.port (%d)", c.Server.Port)
	}

	if _, err := regexp.Compile(c.Gateway.ProcessPattern); err != nil {
		return fmt.Errorf("gateway.process_pattern: %w", err)
	}
	for _, p := range c.Gateway.ReadyPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("gateway.ready_paths entry %q must start with /", p)
		}
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// bindsOver reports whether a listener on serverHost also claims gatewayHost.
// An empty or wildcard host binds every interface, loopback included.
func bindsOver(serverHost, gatewayHost string) bool {
	switch serverHost {
	case "", "0.0.0.0", "::", "[::]":
		return true
	}
	return serverHost == gatewayHost
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
		def  time.Duration
	}{
		{"gateway.ready_timeout", cfg.Gateway.ReadyTimeoutRaw, &cfg.Gateway.ReadyTimeout, DefaultReadyTimeout},
		{"gateway.poll_interval", cfg.Gateway.PollIntervalRaw, &cfg.Gateway.PollInterval, DefaultPollInterval},
		{"gateway.restart_grace", cfg.Gateway.RestartGraceRaw, &cfg.Gateway.RestartGrace, DefaultRestartGrace},
		{"gateway.probe_timeout", cfg.Gateway.ProbeTimeoutRaw, &cfg.Gateway.ProbeTimeout, DefaultProbeTimeout},
		{"setup.session_ttl", cfg.Setup.SessionTTLRaw, &cfg.Setup.SessionTTL, DefaultSessionTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			*f.dst = f.def
			continue
		}
		d, err := parseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}

// parseDuration accepts Go duration syntax or a bare integer of milliseconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}
