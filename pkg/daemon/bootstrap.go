package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/psaab/netcli/pkg/api"
	"github.com/psaab/netcli/pkg/audit"
)

// DefaultBootstrapPath is read when no bootstrap file is named and the
// file exists.
const DefaultBootstrapPath = "/etc/netcli/netclid.toml"

const (
	defaultConfigDir   = "/etc/netcli"
	defaultAPIListen   = "127.0.0.1:8330"
	defaultHistorySize = 50
	defaultSyslogPort  = 514
)

// Duration is a time.Duration that unmarshals from TOML strings like
// "30s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Bootstrap is the daemon's TOML bootstrap file: the handful of
// settings the daemon needs before the configuration store is open.
// Device configuration itself lives in the configuration tree, never
// here.
type Bootstrap struct {
	ConfigDir       string   `toml:"config-dir"`
	SchemaDir       string   `toml:"schema-dir"` // empty = embedded schemas, no watcher
	APIListen       string   `toml:"api-listen"`
	APITLSListen    string   `toml:"api-tls-listen"` // empty = no HTTPS
	Hostname        string   `toml:"hostname"`
	HistorySize     int      `toml:"history-size"`
	RendererTimeout Duration `toml:"renderer-timeout"`
	CommitDB        string   `toml:"commit-db"`
	LogLevel        string   `toml:"log-level"` // debug, info, warn, error

	Syslog SyslogTarget `toml:"syslog"`
	Auth   AuthSettings `toml:"auth"`
}

// SyslogTarget points log forwarding at a collector. An empty host
// disables forwarding.
type SyslogTarget struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Protocol string `toml:"protocol"` // udp, tcp, tls
	Severity string `toml:"severity"` // minimum forwarded severity; empty = all
	Facility string `toml:"facility"`
}

// AuthSettings lists the credentials the HTTP API accepts. Both empty
// means the API runs unauthenticated, which is only sane on loopback.
type AuthSettings struct {
	Users  map[string]string `toml:"users"`
	Tokens []string          `toml:"tokens"`
}

// LoadBootstrap reads and validates a TOML bootstrap file. An empty
// path skips the read and returns the defaults.
func LoadBootstrap(path string) (*Bootstrap, error) {
	var b Bootstrap
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading bootstrap %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("parsing bootstrap %s: %w", path, err)
		}
	}
	applyDefaults(&b)
	if err := validate(&b); err != nil {
		return nil, fmt.Errorf("bootstrap %s: %w", path, err)
	}
	return &b, nil
}

func applyDefaults(b *Bootstrap) {
	if b.ConfigDir == "" {
		b.ConfigDir = defaultConfigDir
	}
	if b.APIListen == "" {
		b.APIListen = defaultAPIListen
	}
	if b.HistorySize == 0 {
		b.HistorySize = defaultHistorySize
	}
	if b.RendererTimeout.Duration == 0 {
		b.RendererTimeout.Duration = 30 * time.Second
	}
	if b.CommitDB == "" {
		b.CommitDB = audit.DefaultPath
	}
	if b.LogLevel == "" {
		b.LogLevel = "info"
	}
	if b.Syslog.Port == 0 {
		b.Syslog.Port = defaultSyslogPort
	}
	if b.Syslog.Protocol == "" {
		b.Syslog.Protocol = "udp"
	}
	if b.Syslog.Facility == "" {
		b.Syslog.Facility = "local0"
	}
}

func validate(b *Bootstrap) error {
	switch b.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log-level %q", b.LogLevel)
	}
	switch b.Syslog.Protocol {
	case "udp", "tcp", "tls":
	default:
		return fmt.Errorf("unknown syslog protocol %q", b.Syslog.Protocol)
	}
	if b.HistorySize < 1 {
		return fmt.Errorf("history-size must be positive, got %d", b.HistorySize)
	}
	return nil
}

// configPath is where the running configuration persists.
func (b *Bootstrap) configPath() string {
	return filepath.Join(b.ConfigDir, "netcli.conf")
}

// authConfig converts the bootstrap credentials for the API server,
// nil when none are set.
func (b *Bootstrap) authConfig() *api.AuthConfig {
	if len(b.Auth.Users) == 0 && len(b.Auth.Tokens) == 0 {
		return nil
	}
	tokens := make(map[string]bool, len(b.Auth.Tokens))
	for _, t := range b.Auth.Tokens {
		tokens[t] = true
	}
	return &api.AuthConfig{Users: b.Auth.Users, Tokens: tokens}
}
