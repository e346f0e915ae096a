package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"

	ncerr "telfence/internal/errors"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TELFENCE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  A set numeric variable is
// applied as given, zero included, and left to Validate; one that does
// not parse is a *errors.ConfigError.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"TELFENCE_PORT", &cfg.Port},
		{"TELFENCE_MARKER", &cfg.Marker},
		{"TELFENCE_RETRIES", &cfg.Retries},
		{"TELFENCE_PARALLEL", &cfg.Parallel},
		{"TELFENCE_VERBOSE", &cfg.Verbose},
	}
	for _, e := range ints {
		v, ok, err := envInt(e.key)
		if err != nil {
			return err
		}
		if ok {
			*e.dst = v
		}
	}

	sec, ok, err := envInt("TELFENCE_TIMEOUT")
	if err != nil {
		return err
	}
	if ok {
		cfg.Timeout = secondsDuration(sec)
	}

	if envBool("TELFENCE_NO_GREETING") {
		cfg.NoGreeting = true
	}
	if envBool("TELFENCE_NO_DNS") {
		cfg.NoDNS = true
	}

	// Batch
	if v := os.Getenv("TELFENCE_INVENTORY"); v != "" {
		cfg.InventoryPath = v
	}

	// SSH jump host
	if v := os.Getenv("TELFENCE_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("TELFENCE_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("TELFENCE_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("TELFENCE_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("TELFENCE_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("TELFENCE_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if envBool("TELFENCE_STATS") {
		cfg.Stats = true
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

// envInt reads key as an integer.  ok is false when key is unset or
// empty.
func envInt(key string) (v int, ok bool, err error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err = strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, &ncerr.ConfigError{
			Field:   strings.ToLower(strings.TrimPrefix(key, "TELFENCE_")),
			Value:   raw,
			Message: key + " is not a number",
		}
	}
	return v, true, nil
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
