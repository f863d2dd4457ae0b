package console

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/chzyer/readline"
)

const prompt = "roster> "

// LineReader yields one line of user input per call.
type LineReader interface {
	Readline() (string, error)
}

// NewReadline opens a line editor over the given streams.
// Output written through the returned instance's Stdout keeps the prompt intact
// while listener callbacks print asynchronously.
func NewReadline(historyFile string, stdin io.ReadCloser, stdout, stderr io.Writer) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		HistoryLimit:    1000,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",

		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	})
}

// Run reads commands until quit, end of input or ctx is done.
// Command errors are printed and never end the session.
func (c *Console) Run(ctx context.Context, in LineReader) error {
	c.printf("type help for commands\n")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := in.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		quit, err := c.Execute(line)
		if err != nil {
			slog.Debug("console_event", "event", "command_failed", "line", line, "error", err)
			c.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}
