package telnet

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"telfence/internal/metrics"
	"telfence/util"
)

// Conn is a telnet stream over an underlying byte connection.
//
// Read is not safe for concurrent use; Write, RequestOption and
// SetNegotiator may be called from any goroutine, including from inside
// a Negotiator while Read is dispatching.
type Conn struct {
	rw      io.ReadWriteCloser
	dec     decoder
	neg     atomic.Pointer[Negotiator]
	wmu     sync.Mutex
	logger  *util.Logger
	metrics *metrics.Collector
}

// NewConn wraps rw.  m may be nil.
func NewConn(rw io.ReadWriteCloser, logger *util.Logger, m *metrics.Collector) *Conn {
	return &Conn{rw: rw, logger: logger, metrics: m}
}

// SetNegotiator installs n as the receiver of every decoded Signal.
// A nil n restores the default refusal policy for everything.
func (c *Conn) SetNegotiator(n Negotiator) {
	if n == nil {
		c.neg.Store(nil)
		return
	}
	c.neg.Store(&n)
}

// Read performs a single read of at most len(p) raw bytes from the
// underlying connection and returns the data-channel bytes it carried.
// Signals found in the chunk are dispatched before Read returns, so a
// chunk made up only of negotiation yields (0, nil).
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	bufp := util.GetChunk()
	defer util.PutChunk(bufp)
	raw := *bufp
	if len(p) < len(raw) {
		raw = raw[:len(p)]
	}

	n, err := c.rw.Read(raw)
	if n == 0 {
		return 0, err
	}
	c.metrics.BytesReceived(int64(n))
	return c.dec.decode(raw[:n], p, c.dispatch), err
}

// Write sends p on the data channel, doubling any IAC bytes.  It
// reports len(p) on success.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.writeRaw(escape(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// RequestOption asks the remote to enable option (IAC DO option).
func (c *Conn) RequestOption(option byte) error {
	c.logger.Debug("telnet: send DO %d", option)
	return c.writeRaw([]byte{byte(IAC), byte(DO), option})
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.rw.Close()
}

func (c *Conn) writeRaw(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	for len(b) > 0 {
		n, err := c.rw.Write(b)
		c.metrics.BytesSent(int64(n))
		if err != nil {
			return fmt.Errorf("telnet write: %w", err)
		}
		b = b[n:]
	}
	return nil
}

// dispatch routes one decoded signal to the negotiator and sends the
// resulting reply, falling back to a refusal.
func (c *Conn) dispatch(sig Signal) {
	c.metrics.SignalReceived()
	c.logger.Debug("telnet: recv %s", sig)

	var (
		reply   []byte
		handled bool
	)
	if n := c.neg.Load(); n != nil {
		reply, handled = (*n)(sig)
	}
	if !handled {
		reply = Refusal(sig)
	}
	if len(reply) == 0 {
		return
	}
	// A failed reply surfaces on the next Read of the same connection.
	if err := c.writeRaw(reply); err != nil {
		c.logger.Debug("telnet: reply to %s: %v", sig, err)
	}
}
