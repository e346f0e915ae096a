package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	ncerr "telfence/internal/errors"
	"telfence/internal/session"
	"telfence/util"
)

// Inventory is a batch of hosts to run commands on, loaded from YAML.
// After ParseInventory every Host has its defaults applied.
type Inventory struct {
	Defaults HostDefaults
	Hosts    []Host
}

// HostDefaults apply to every host that does not override them.
type HostDefaults struct {
	Port     int
	Marker   int
	Commands []string
}

// Host is one resolved inventory entry.
type Host struct {
	Name     string
	Host     string
	Port     int
	Marker   int
	Commands []string
}

// rawInventory mirrors the file.  Numeric fields are pointers so an
// explicit zero is told apart from an omitted key and rejected.
type rawInventory struct {
	Defaults struct {
		Port     *int     `yaml:"port"`
		Marker   *int     `yaml:"marker"`
		Commands []string `yaml:"commands"`
	} `yaml:"defaults"`
	Hosts []struct {
		Name     string   `yaml:"name"`
		Host     string   `yaml:"host"`
		Port     *int     `yaml:"port"`
		Marker   *int     `yaml:"marker"`
		Commands []string `yaml:"commands"`
	} `yaml:"hosts"`
}

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// Addr returns the host's dial address.
func (h Host) Addr() string {
	return util.FormatAddr(h.Host, h.Port)
}

// LoadInventory reads and resolves the inventory at path.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	return ParseInventory(data)
}

// ParseInventory decodes YAML, applies defaults to every host and
// validates the result.
func ParseInventory(data []byte) (*Inventory, error) {
	var raw rawInventory
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	return raw.resolve()
}

func (raw *rawInventory) resolve() (*Inventory, error) {
	if len(raw.Hosts) == 0 {
		return nil, &ncerr.ConfigError{Field: "inventory", Message: "no hosts defined"}
	}

	inv := &Inventory{
		Defaults: HostDefaults{
			Port:     orDefault(raw.Defaults.Port, DefaultTelnetPort),
			Marker:   orDefault(raw.Defaults.Marker, DefaultMarker),
			Commands: raw.Defaults.Commands,
		},
		Hosts: make([]Host, 0, len(raw.Hosts)),
	}
	if err := validatePort(inv.Defaults.Port); err != nil {
		return nil, err
	}
	if err := session.ValidateMarker(inv.Defaults.Marker); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(raw.Hosts))
	for i, r := range raw.Hosts {
		if r.Host == "" {
			return nil, &ncerr.ConfigError{
				Field:   "inventory",
				Value:   fmt.Sprintf("hosts[%d]", i),
				Message: "host is required",
			}
		}
		h := Host{
			Name:     r.Name,
			Host:     r.Host,
			Port:     orDefault(r.Port, inv.Defaults.Port),
			Marker:   orDefault(r.Marker, inv.Defaults.Marker),
			Commands: r.Commands,
		}
		if err := validatePort(h.Port); err != nil {
			return nil, err
		}
		if err := session.ValidateMarker(h.Marker); err != nil {
			return nil, err
		}
		if len(h.Commands) == 0 {
			h.Commands = inv.Defaults.Commands
		}
		if len(h.Commands) == 0 {
			return nil, &ncerr.ConfigError{
				Field:   "inventory",
				Value:   h.Host,
				Message: "no commands for host",
				Hint:    "set commands on the host or under defaults",
			}
		}
		if h.Name == "" {
			h.Name = h.Addr()
		}
		if seen[h.Name] {
			return nil, &ncerr.ConfigError{Field: "inventory", Value: h.Name, Message: "duplicate host name"}
		}
		seen[h.Name] = true
		inv.Hosts = append(inv.Hosts, h)
	}
	return inv, nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return &ncerr.ConfigError{Field: "port", Value: port, Message: "out of range 1-65535"}
	}
	return nil
}
