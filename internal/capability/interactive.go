package capability

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"telfence/internal/session"
)

// Interactive reads command lines from In, executes each on the
// session and prints the output to Out.  It returns nil when In is
// exhausted.
type Interactive struct {
	In  io.Reader
	Out io.Writer

	// Prompt is printed before each line is read.  Leave it empty
	// when In is not a terminal.
	Prompt string

	// SkipGreeting suppresses draining and printing the banner.
	SkipGreeting bool
}

// Handle runs the loop until In hits EOF, a read cycle fails, or ctx is
// cancelled.
func (it *Interactive) Handle(ctx context.Context, sess *session.Session) error {
	if !it.SkipGreeting {
		banner, err := drainGreeting(sess)
		if err != nil {
			return fmt.Errorf("greeting: %w", err)
		}
		if err := writeOutput(it.Out, "", banner); err != nil {
			return err
		}
	}

	// done releases the scanner once Handle returns, whatever the
	// reason.  A scanner blocked inside a read of In stays there until
	// In delivers or is closed.
	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(it.In)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		if it.Prompt != "" {
			fmt.Fprint(it.Out, it.Prompt)
		}

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}

		out, err := sess.Exec(line)
		if err != nil {
			return fmt.Errorf("command %q: %w", line, err)
		}
		if err := writeOutput(it.Out, "", out); err != nil {
			return err
		}
	}
}
