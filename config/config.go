// Package config defines the runtime configuration for telfence and
// provides helpers for parsing tunnel specifications and inventories.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	ncerr "telfence/internal/errors"
	"telfence/internal/session"
)

// Config holds every tuneable for a telfence run.
type Config struct {
	// ── Target ───────────────────────────────────────────────────────
	Host    string
	Port    int
	NoDNS   bool
	Timeout time.Duration // dial timeout
	Retries int           // total dial attempts

	// ── Session ──────────────────────────────────────────────────────
	Marker     int
	Commands   []string // -c, in order; empty means interactive
	NoGreeting bool     // do not drain the banner before the first command

	// ── Batch ────────────────────────────────────────────────────────
	InventoryPath string
	Parallel      int

	// ── SSH jump host ────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	Stats   bool
}

// Default returns a Config populated with the package defaults.
func Default() *Config {
	return &Config{
		Port:     DefaultTelnetPort,
		Marker:   DefaultMarker,
		Timeout:  DefaultConnTimeout,
		Retries:  DefaultDialAttempts,
		Parallel: DefaultParallel,
	}
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ParsePort accepts a numeric port in 1-65535.
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.InventoryPath != "" {
		if c.Host != "" {
			return &ncerr.ConfigError{
				Field:   "inventory",
				Value:   c.InventoryPath,
				Message: "a host argument cannot be combined with an inventory",
			}
		}
		if c.Parallel < 1 {
			return &ncerr.ConfigError{Field: "parallel", Value: c.Parallel, Message: "must be at least 1"}
		}
	} else {
		if c.Host == "" {
			return &ncerr.ConfigError{
				Field:   "host",
				Message: "required",
				Hint:    "use --help for usage",
			}
		}
		if c.Port < 1 || c.Port > 65535 {
			return &ncerr.ConfigError{Field: "port", Value: c.Port, Message: "out of range 1-65535"}
		}
	}

	if err := session.ValidateMarker(c.Marker); err != nil {
		return err
	}
	if c.Retries < 1 {
		return &ncerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must be at least 1"}
	}
	if c.Timeout < 0 {
		return &ncerr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must not be negative"}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	return nil
}
