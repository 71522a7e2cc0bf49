package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrQuit is returned by a Handler to end the loop normally.
var ErrQuit = errors.New("repl: quit")

// Handler executes one command line split into words.
type Handler func(ctx context.Context, args []string) error

// Config configures a REPL.
type Config struct {
	In      io.Reader
	Out     io.Writer
	Prompt  string
	History *History

	// Commands feed the completer used by "help" and unknown-command
	// suggestions.
	Commands []string
}

// REPL is a read-eval-print loop.
type REPL struct {
	cfg       Config
	handler   Handler
	completer *Completer
}

// New creates a REPL dispatching to handler.
func New(cfg Config, handler Handler) *REPL {
	if cfg.Prompt == "" {
		cfg.Prompt = "> "
	}
	if cfg.History == nil {
		cfg.History = NewHistory("", 0)
	}
	return &REPL{cfg: cfg, handler: handler, completer: NewCompleter(cfg.Commands...)}
}

// Completer returns the command completer.
func (r *REPL) Completer() *Completer { return r.completer }

// Run loops until EOF, ErrQuit or ctx is done. Handler errors other than
// ErrQuit are printed and the loop continues.
func (r *REPL) Run(ctx context.Context) error {
	_ = r.cfg.History.Load()
	defer r.cfg.History.Save()

	scanner := bufio.NewScanner(r.cfg.In)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(r.cfg.Out, r.cfg.Prompt)
		if !scanner.Scan() {
			fmt.Fprintln(r.cfg.Out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.cfg.History.Add(line)

		args, err := Split(line)
		if err != nil {
			fmt.Fprintf(r.cfg.Out, "error: %v\n", err)
			continue
		}
		if err := r.handler(ctx, args); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			fmt.Fprintf(r.cfg.Out, "error: %v\n", err)
			if errors.Is(err, ErrUnknownCommand) {
				if s := r.completer.Complete(args[0][:1]); len(s) > 0 {
					fmt.Fprintf(r.cfg.Out, "did you mean: %s\n", strings.Join(s, ", "))
				}
			}
		}
	}
}

// ErrUnknownCommand is returned by handlers for unrecognized commands.
var ErrUnknownCommand = errors.New("unknown command")

// Split breaks line into words. Double quotes group words; a backslash
// escapes the next character inside quotes.
func Split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		started bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t'):
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, errors.New("unterminated quote")
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}
