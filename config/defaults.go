package config

import (
	"time"

	"telfence/internal/session"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, inventory files, and environment variable loading.

const (
	// DefaultTelnetPort is the standard telnet port.
	DefaultTelnetPort = 23

	// DefaultMarker is the fence option code.
	DefaultMarker = session.DefaultMarker

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultDialAttempts is how many times a dial is tried before
	// giving up.
	DefaultDialAttempts = 3

	// DefaultDialBackoff is the delay before the first dial retry.
	DefaultDialBackoff = 500 * time.Millisecond

	// DefaultMaxDialBackoff caps the exponential backoff between dial
	// attempts.
	DefaultMaxDialBackoff = 10 * time.Second

	// DefaultParallel limits how many inventory hosts are driven at
	// once in batch mode.
	DefaultParallel = 8
)
