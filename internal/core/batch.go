package core

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"telfence/config"
	"telfence/internal/capability"
	ncerr "telfence/internal/errors"
	"telfence/internal/metrics"
	"telfence/internal/retry"
	"telfence/internal/transport"
	"telfence/util"
)

// BatchMode runs every inventory host's commands, Parallel hosts at a
// time.  One host failing does not stop the others; the failures are
// joined into the returned error.
type BatchMode struct {
	Dialer    transport.Dialer
	Inventory *config.Inventory
	Parallel  int
	Backoff   *retry.Backoff
	Logger    *util.Logger
	Metrics   *metrics.Collector
	Out       io.Writer

	// SkipGreeting is applied to every host.
	SkipGreeting bool
}

// Run processes the inventory and returns once every host is done.
func (m *BatchMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	o := &opener{
		Dialer:  m.Dialer,
		Backoff: m.Backoff,
		Logger:  m.Logger,
		Metrics: m.Metrics,
	}
	out := &lockedWriter{w: m.Out}

	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.Parallel)

	m.Logger.Verbose("batch: %d hosts, %d at a time", len(m.Inventory.Hosts), m.Parallel)

	for _, host := range m.Inventory.Hosts {
		host := host
		g.Go(func() error {
			err := m.runHost(gctx, o, out, host)
			if err != nil {
				m.Logger.Warn("%s: %v", host.Name, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", host.Name, err))
				mu.Unlock()
			}
			// Host failures are collected, not propagated, so the
			// group context stays live for the remaining hosts.
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		m.Logger.Warn("batch: %d of %d hosts failed", len(errs), len(m.Inventory.Hosts))
	}
	return ncerr.Join(errs...)
}

func (m *BatchMode) runHost(ctx context.Context, o *opener, out io.Writer, host config.Host) error {
	logger := m.Logger.With(host.Name)

	sess, stop, err := o.open(ctx, host.Addr(), host.Marker, logger)
	if err != nil {
		return err
	}
	defer o.close(sess, stop)

	script := &capability.Script{
		Commands:     host.Commands,
		Out:          out,
		Prefix:       "[" + host.Name + "] ",
		SkipGreeting: m.SkipGreeting,
	}
	return script.Handle(ctx, sess)
}

// lockedWriter serialises writes from concurrent hosts so each output
// block stays contiguous.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
