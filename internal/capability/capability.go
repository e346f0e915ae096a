// Package capability defines what happens over an established telnet
// session.  Each Capability encapsulates a single behaviour (run a
// fixed list of commands, or drive the session from a terminal) and
// operates on a Session rather than a raw net.Conn, which keeps
// capabilities testable and decoupled from transport details.
package capability

import (
	"context"
	"io"

	"telfence/internal/session"
)

// Capability handles a single session according to a specific
// behaviour.  Implementations include running a command list (Script)
// and a line-by-line terminal loop (Interactive).
type Capability interface {
	// Handle runs the capability against the given session.  It
	// blocks until the work is done, the session fails, or the
	// context is cancelled.
	Handle(ctx context.Context, sess *session.Session) error
}

// drainGreeting runs one read cycle to collect the login banner so it
// is not mistaken for the first command's output.
func drainGreeting(sess *session.Session) ([]byte, error) {
	banner, err := sess.Read()
	if err != nil {
		return nil, err
	}
	sess.Logger.Debug("greeting: %d bytes", len(banner))
	return banner, nil
}

// writeOutput copies one cycle's output to w.  With a non-empty prefix
// every line is tagged so interleaved output from several hosts stays
// attributable; the whole block goes out in a single Write.
func writeOutput(w io.Writer, prefix string, out []byte) error {
	if len(out) == 0 {
		return nil
	}
	if prefix != "" {
		out = prefixLines(prefix, out)
	}
	_, err := w.Write(out)
	return err
}

// prefixLines returns b with prefix inserted at the start of every
// line.  A missing final newline is added so the next block starts on
// a fresh line.
func prefixLines(prefix string, b []byte) []byte {
	buf := make([]byte, 0, len(b)+len(prefix)*4)
	atStart := true
	for _, c := range b {
		if atStart {
			buf = append(buf, prefix...)
			atStart = false
		}
		buf = append(buf, c)
		if c == '\n' {
			atStart = true
		}
	}
	if !atStart {
		buf = append(buf, '\n')
	}
	return buf
}
