package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/naka-gawa/contrib-stats/internal/credential"
)

const sessionPrompt = "\nEnter a username (or 'ratelimit', 'resettoken', 'stop'): "

// session is the interactive loop shared by the github and discourse commands.
type session struct {
	prompter *credential.Prompter
	prompt   string
	// lookup fetches and prints the contributions of one user. It reports
	// its own errors, so the loop only keeps going.
	lookup     func(ctx context.Context, username string) error
	rateLimit  func(ctx context.Context)
	resetToken func() error
}

// run reads commands until "stop", end of input or cancellation of ctx.
func (s *session) run(ctx context.Context) error {
	out := s.prompter.Out()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		input, err := s.prompter.ReadLine(s.prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nCould not read username. Exiting.")
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		switch strings.ToLower(input) {
		case "":
			fmt.Fprintln(out, "Username cannot be empty. Please try again.")
		case "stop":
			fmt.Fprintln(out, "Exiting program. Goodbye!")
			return nil
		case "ratelimit":
			s.rateLimit(ctx)
		case "resettoken":
			if err := s.resetToken(); err != nil {
				fmt.Fprintf(out, "Error resetting credentials: %v\n", err)
			}
		default:
			_ = s.lookup(ctx, input)
		}
	}
}
