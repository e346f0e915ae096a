package core

import (
	"io"
	"os"

	"golang.org/x/term"

	"telfence/config"
	"telfence/internal/capability"
	"telfence/internal/metrics"
	"telfence/internal/retry"
	"telfence/internal/transport"
	"telfence/util"
)

// Streams are the standard streams a mode talks to.  Zero fields
// default to the process's stdin and stdout.
type Streams struct {
	In  io.Reader
	Out io.Writer
}

func (s Streams) in() io.Reader {
	if s.In != nil {
		return s.In
	}
	return os.Stdin
}

func (s Streams) out() io.Writer {
	if s.Out != nil {
		return s.Out
	}
	return os.Stdout
}

// Build constructs the appropriate Mode from the given configuration.
// cfg must already be validated.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector, st Streams) (Mode, error) {
	if cfg.InventoryPath != "" {
		return buildBatch(cfg, logger, m, st)
	}
	return buildConnect(cfg, logger, m, st)
}

// ── mode builders ────────────────────────────────────────────────────

func buildConnect(cfg *config.Config, logger *util.Logger, m *metrics.Collector, st Streams) (Mode, error) {
	address, err := util.ResolveAddr(cfg.Host, cfg.Port, cfg.NoDNS)
	if err != nil {
		return nil, err
	}

	return &ConnectMode{
		Dialer:     buildDialer(cfg, logger),
		Capability: buildCapability(cfg, st),
		Address:    address,
		Marker:     cfg.Marker,
		Backoff:    buildBackoff(cfg),
		Logger:     logger,
		Metrics:    m,
	}, nil
}

func buildBatch(cfg *config.Config, logger *util.Logger, m *metrics.Collector, st Streams) (Mode, error) {
	inv, err := config.LoadInventory(cfg.InventoryPath)
	if err != nil {
		return nil, err
	}
	if cfg.NoDNS {
		for _, h := range inv.Hosts {
			if _, err := util.ResolveAddr(h.Host, h.Port, true); err != nil {
				return nil, err
			}
		}
	}

	return &BatchMode{
		Dialer:       buildDialer(cfg, logger),
		Inventory:    inv,
		Parallel:     cfg.Parallel,
		Backoff:      buildBackoff(cfg),
		Logger:       logger,
		Metrics:      m,
		Out:          st.out(),
		SkipGreeting: cfg.NoGreeting,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&transport.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}
}

// buildCapability selects the per-session behaviour: the -c command
// list when given, otherwise a terminal loop.
func buildCapability(cfg *config.Config, st Streams) capability.Capability {
	if len(cfg.Commands) > 0 {
		return &capability.Script{
			Commands:     cfg.Commands,
			Out:          st.out(),
			SkipGreeting: cfg.NoGreeting,
		}
	}

	in := st.in()
	it := &capability.Interactive{
		In:           in,
		Out:          st.out(),
		SkipGreeting: cfg.NoGreeting,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		it.Prompt = "telfence> "
	}
	return it
}

// buildBackoff turns the retry setting into a dial policy.
func buildBackoff(cfg *config.Config) *retry.Backoff {
	return &retry.Backoff{
		InitialDelay: config.DefaultDialBackoff,
		MaxDelay:     config.DefaultMaxDialBackoff,
		MaxAttempts:  cfg.Retries,
		Jitter:       true,
	}
}
