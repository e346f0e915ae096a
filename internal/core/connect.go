package core

import (
	"context"
	"fmt"

	"telfence/internal/capability"
	"telfence/internal/metrics"
	"telfence/internal/retry"
	"telfence/internal/transport"
	"telfence/util"
)

// ConnectMode dials one telnet server and runs a capability on the
// resulting session.  This is the default client mode.
type ConnectMode struct {
	Dialer     transport.Dialer
	Capability capability.Capability
	Address    string
	Marker     int
	Backoff    *retry.Backoff
	Logger     *util.Logger
	Metrics    *metrics.Collector
}

// Run dials the remote address, creates a session, and hands it to
// the capability.  The session is closed when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	o := &opener{
		Dialer:  m.Dialer,
		Backoff: m.Backoff,
		Logger:  m.Logger,
		Metrics: m.Metrics,
	}
	sess, stop, err := o.open(ctx, m.Address, m.Marker, m.Logger)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	defer o.close(sess, stop)

	m.Logger.Debug("session %s fencing with option %d", sess.ID(), sess.Marker())

	err = m.Capability.Handle(ctx, sess)
	if err != nil && ctx.Err() != nil {
		// Cancellation closed the connection under the capability;
		// report why rather than the resulting disconnect.
		return ctx.Err()
	}
	return err
}
