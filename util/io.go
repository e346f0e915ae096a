package util

import (
	"context"
	"errors"
	"io"
	"net"
)

// CloseOnDone closes c as soon as ctx is cancelled, which unblocks any
// read or write pending on it.  The returned stop function detaches the
// watcher; call it once c is no longer in use.
func CloseOnDone(ctx context.Context, c io.Closer) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close() //nolint:errcheck
		case <-done:
		}
	}()
	return func() { close(done) }
}

// IsHarmless returns true for errors that are expected during shutdown.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
