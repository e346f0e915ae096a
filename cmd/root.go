// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"telfence/config"
	"telfence/internal/core"
	"telfence/internal/metrics"
	"telfence/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X telfence/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate telfence mode against
// the process's standard streams.
func Execute(ctx context.Context, args []string) error {
	return run(ctx, args, core.Streams{}, os.Stderr)
}

func run(ctx context.Context, args []string, st core.Streams, stderr io.Writer) error {
	cfg := config.Default()
	if err := config.LoadFromEnv(cfg); err != nil {
		return err
	}

	fs := flag.NewFlagSet("telfence", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── session ──────────────────────────────────────────────────
	fs.StringArrayVarP(&cfg.Commands, "command", "c", cfg.Commands, "Command to run (repeatable, in order)")
	fs.IntVarP(&cfg.Marker, "marker", "m", cfg.Marker, "Fence option code (40-239)")
	fs.BoolVar(&cfg.NoGreeting, "no-greeting", cfg.NoGreeting, "Do not drain the login banner first")

	// ── connection ───────────────────────────────────────────────
	timeoutSec := int(cfg.Timeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Dial timeout in seconds")
	fs.IntVarP(&cfg.Retries, "retries", "r", cfg.Retries, "Dial attempts before giving up")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")

	// ── batch ────────────────────────────────────────────────────
	fs.StringVarP(&cfg.InventoryPath, "inventory", "i", cfg.InventoryPath, "YAML inventory of hosts and commands")
	fs.IntVarP(&cfg.Parallel, "parallel", "P", cfg.Parallel, "Hosts driven at once in batch mode")

	// ── SSH jump host ────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH jump host [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.Stats, "stats", cfg.Stats, "Print session metrics as JSON to stderr")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate options and print the plan without connecting")

	fs.Usage = func() { printUsage(stderr, fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(stderr, fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stderr, "telfence %s\n", version)
		return nil
	}

	cfg.Timeout = time.Duration(timeoutSec) * time.Second

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetOutput(stderr)

	var m *metrics.Collector
	if cfg.Stats {
		m = metrics.New()
	}

	mode, err := core.Build(cfg, logger, m, st)
	if err != nil {
		return err
	}

	if dryRun {
		printPlan(stderr, cfg)
		return nil
	}

	err = mode.Run(ctx)
	if m != nil {
		fmt.Fprintln(stderr, m.JSON())
	}
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.InventoryPath != "" {
		if len(remaining) > 0 {
			return fmt.Errorf("unexpected arguments with --inventory: %v", remaining)
		}
		return nil
	}

	switch len(remaining) {
	case 0:
		return fmt.Errorf("hostname required (use --help for usage)")
	case 1:
		cfg.Host = remaining[0]
	case 2:
		cfg.Host = remaining[0]
		port, err := config.ParsePort(remaining[1])
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Port = port
	default:
		return fmt.Errorf("too many arguments: %v", remaining[2:])
	}
	return nil
}

func printPlan(w io.Writer, cfg *config.Config) {
	if cfg.InventoryPath != "" {
		fmt.Fprintf(w, "batch: inventory %s, %d at a time\n", cfg.InventoryPath, cfg.Parallel)
	} else {
		fmt.Fprintf(w, "connect: %s\n", util.FormatAddr(cfg.Host, cfg.Port))
		if len(cfg.Commands) > 0 {
			fmt.Fprintf(w, "commands: %d\n", len(cfg.Commands))
		} else {
			fmt.Fprintln(w, "commands: interactive")
		}
	}
	fmt.Fprintf(w, "marker: %d\n", cfg.Marker)
	if cfg.TunnelEnabled {
		fmt.Fprintf(w, "via: %s@%s\n", cfg.TunnelUser, util.FormatAddr(cfg.TunnelHost, cfg.TunnelPort))
	}
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `telfence – telnet command client v%s

Runs commands over telnet and returns each command's complete output,
using an option negotiation round trip to tell when the output ends.

Usage:
  telfence [options] <host> [port]             Interactive
  telfence -c CMD [-c CMD...] <host> [port]    Run commands
  telfence -i inventory.yaml                   Batch over many hosts

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprint(w, `
Examples:
  telfence router1                              Interactive session on port 23
  telfence -c "show version" 10.0.0.1 2323      One command, custom port
  telfence -T admin@bastion -c "show ip route" core-1
  telfence -i lab.yaml -P 16 --stats            Batch with metrics
`)
}
