package capability

import (
	"context"
	"fmt"
	"io"

	"telfence/internal/session"
)

// Script runs Commands in order and writes each one's output to Out.
type Script struct {
	Commands []string
	Out      io.Writer

	// Prefix, if set, is prepended to every output line.
	Prefix string

	// SkipGreeting sends the first command without draining the
	// banner.  Only use it against servers that print none.
	SkipGreeting bool
}

// Handle executes the script.  It stops at the first command whose
// read cycle fails.
func (s *Script) Handle(ctx context.Context, sess *session.Session) error {
	if !s.SkipGreeting {
		if _, err := drainGreeting(sess); err != nil {
			return fmt.Errorf("greeting: %w", err)
		}
	}

	for i, cmd := range s.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := sess.Exec(cmd)
		if err != nil {
			return fmt.Errorf("command %d (%q): %w", i+1, cmd, err)
		}
		if err := writeOutput(s.Out, s.Prefix, out); err != nil {
			return err
		}
	}
	return nil
}
