package core

import (
	"context"
	"net"
	"time"

	ncerr "telfence/internal/errors"
	"telfence/internal/metrics"
	"telfence/internal/retry"
	"telfence/internal/session"
	"telfence/internal/telnet"
	"telfence/internal/transport"
	"telfence/util"
)

// opener dials a telnet server and wraps the connection in a Session.
// It is shared by every session a mode opens.
type opener struct {
	Dialer  transport.Dialer
	Backoff *retry.Backoff
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// open dials address, retrying transient failures, and returns a
// Session fencing with marker.  The session is closed when ctx is
// cancelled, which unblocks a read cycle that would otherwise wait
// forever; call the returned stop function before Close.
func (o *opener) open(ctx context.Context, address string, marker int, logger *util.Logger) (*session.Session, func(), error) {
	// Validate before dialing so a bad marker costs no connection.
	if err := session.ValidateMarker(marker); err != nil {
		return nil, nil, err
	}

	var conn net.Conn
	dial := func(attempt int) error {
		logger.Verbose("connecting to %s (attempt %d)", address, attempt)
		c, err := o.Dialer.Dial(ctx, "tcp", address)
		if err != nil {
			if ctx.Err() != nil || !ncerr.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}

	b := o.backoff(logger)
	if err := b.Do(ctx, dial); err != nil {
		o.Metrics.RecordError(err.Error())
		return nil, nil, err
	}
	logger.Verbose("connected to %s", conn.RemoteAddr())

	tc := telnet.NewConn(conn, logger, o.Metrics)
	sess, err := session.New(tc, marker, logger)
	if err != nil {
		tc.Close()
		return nil, nil, err
	}
	sess.Metrics = o.Metrics
	o.Metrics.SessionOpened()

	stop := util.CloseOnDone(ctx, sess)
	return sess, stop, nil
}

// close tears down a session returned by open.
func (o *opener) close(sess *session.Session, stop func()) {
	stop()
	if err := sess.Close(); !util.IsHarmless(err) {
		sess.Logger.Debug("close: %v", err)
	}
	o.Metrics.SessionClosed()
}

// backoff returns a copy of the configured policy that logs and
// counts every retry.
func (o *opener) backoff(logger *util.Logger) *retry.Backoff {
	b := retry.Backoff{MaxAttempts: 1}
	if o.Backoff != nil {
		b = *o.Backoff
	}
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		o.Metrics.DialRetry()
		logger.Warn("dial attempt %d failed: %v (retrying in %s)",
			attempt, err, wait.Round(time.Millisecond))
	}
	return &b
}
