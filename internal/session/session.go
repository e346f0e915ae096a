// Package session implements the fence synchronizer: the part of
// telfence that decides when a remote command has finished printing.
//
// A telnet stream has no message framing, so after sending a command
// the client cannot tell the end of its output from a pause.  Session
// closes that gap with a fence.  Every read cycle asks the remote to
// enable a marker option nobody implements (IAC DO <marker>) and keeps
// reading until the remote answers for that option.  Servers handle
// negotiation promptly and in order with the output they are already
// writing, so by the time the echo arrives the command's output has
// normally been delivered too.
//
// The fence is a heuristic, not a framing guarantee: a remote that
// keeps producing output after it has answered the negotiation, or
// that never answers at all, defeats it.  Read has no timeout; cancel
// a stalled cycle by closing the transport.
package session

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	ncerr "telfence/internal/errors"
	"telfence/internal/metrics"
	"telfence/internal/telnet"
	"telfence/util"
)

// Marker bounds and default.  Codes below 40 are taken by real telnet
// options; codes above 239 collide with telnet command bytes.
const (
	MinMarker     = 40
	MaxMarker     = 239
	DefaultMarker = 99
)

// Transport is what a Session needs from the stream underneath it.
// Read must return data-channel bytes only and deliver every decoded
// signal to the installed negotiator before returning.
type Transport interface {
	io.ReadWriteCloser
	RequestOption(option byte) error
	SetNegotiator(n telnet.Negotiator)
}

// Handler receives the signals a Session dispatches.  Its result is
// returned to the transport unchanged.
type Handler = telnet.Negotiator

// Session runs fenced read cycles over one exclusively owned
// Transport.  A Session is driven by a single goroutine; SetHandler and
// PongObserved may be called from others.
type Session struct {
	// Logger and Metrics may be replaced before the first Read.
	Logger  *util.Logger
	Metrics *metrics.Collector

	id     string
	tr     Transport
	marker int
	pong   atomic.Bool
	closed atomic.Bool

	mu      sync.RWMutex
	handler Handler
}

// New creates a Session over tr that fences with marker and installs
// itself as tr's negotiator.  marker must be in [MinMarker, MaxMarker].
// A nil logger discards everything but errors.
func New(tr Transport, marker int, logger *util.Logger) (*Session, error) {
	if err := ValidateMarker(marker); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}

	id := uuid.NewString()
	s := &Session{
		Logger: logger.With(id[:8]),
		id:     id,
		tr:     tr,
		marker: marker,
	}
	tr.SetNegotiator(s.OnSignal)
	return s, nil
}

// ValidateMarker reports whether marker can be used as a fence option.
func ValidateMarker(marker int) error {
	if marker < MinMarker || marker > MaxMarker {
		return &ncerr.ConfigError{
			Field:   "marker",
			Value:   marker,
			Message: fmt.Sprintf("out of range %d-%d", MinMarker, MaxMarker),
			Hint:    fmt.Sprintf("the default %d is unused by every common telnet server", DefaultMarker),
		}
	}
	return nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Marker returns the fence option code.
func (s *Session) Marker() int { return s.marker }

// PongObserved reports whether the current read cycle has seen the
// fence echo.
func (s *Session) PongObserved() bool { return s.pong.Load() }

// SetHandler installs h as the receiver of every signal, replacing any
// previous handler.  A nil h removes it.
func (s *Session) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Session) currentHandler() Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// OnSignal is the Session's negotiator.  The fence echo is the remote's
// answer to the marker option, whatever the command; it marks the
// cycle complete.  Without a handler the echo is consumed silently and
// every other signal is left to the transport's default policy.
func (s *Session) OnSignal(sig telnet.Signal) ([]byte, bool) {
	isPong := int(sig.Option) == s.marker
	if isPong && !s.pong.Swap(true) {
		s.Logger.Debug("fence echoed (%s)", sig)
	}

	h := s.currentHandler()
	if h != nil {
		return h(sig)
	}
	if isPong {
		return nil, true
	}
	return nil, false
}

// Read returns everything the remote has sent since the previous cycle.
// It sends the fence and reads until the echo arrives.  Interrupted
// reads are retried; any other read error ends the cycle with a
// *errors.DisconnectedError and no output.
func (s *Session) Read() ([]byte, error) {
	if s.closed.Load() {
		return nil, ncerr.Disconnected(ncerr.ErrNotConnected)
	}
	s.pong.Store(false)

	if err := s.tr.RequestOption(byte(s.marker)); err != nil {
		s.Metrics.RecordError(err.Error())
		return nil, ncerr.Disconnected(err)
	}
	s.Logger.Debug("fence sent (DO %d)", s.marker)

	bufp := util.GetChunk()
	defer util.PutChunk(bufp)
	chunk := *bufp

	var out []byte
	for {
		n, err := s.tr.Read(chunk)
		out = append(out, chunk[:n]...)

		if s.pong.Load() {
			s.Metrics.FenceCompleted()
			s.Logger.Debug("cycle complete, %d bytes", len(out))
			if out == nil {
				out = []byte{}
			}
			return out, nil
		}

		if err != nil {
			if ncerr.IsInterrupted(err) {
				s.Logger.Debug("read interrupted, retrying: %v", err)
				continue
			}
			s.Metrics.RecordError(err.Error())
			s.Logger.Verbose("disconnected after %d bytes: %v", len(out), err)
			return nil, ncerr.Disconnected(err)
		}
	}
}

// Write sends raw bytes on the data channel.
func (s *Session) Write(p []byte) (int, error) {
	return s.tr.Write(p)
}

// Exec sends command terminated by CRLF and returns the output that
// follows it.
func (s *Session) Exec(command string) ([]byte, error) {
	s.Logger.Verbose("exec %q", command)
	if _, err := s.tr.Write([]byte(command + "\r\n")); err != nil {
		s.Metrics.RecordError(err.Error())
		return nil, ncerr.Disconnected(err)
	}
	s.Metrics.CommandSent()
	return s.Read()
}

// Close closes the transport.  The session is unusable afterwards;
// later read cycles fail with errors.ErrNotConnected as the cause.
// Closing twice is a no-op.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.tr.Close()
}
