package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pario-ai/tollgate/pkg/render"
)

// lineSource yields one request per line.
type lineSource interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// termSource reads from a terminal with history and line editing.
type termSource struct {
	state *liner.State
}

func newTermSource() *termSource {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	return &termSource{state: state}
}

func (t *termSource) ReadLine(prompt string) (string, error) {
	line, err := t.state.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		t.state.AppendHistory(line)
	}
	return line, nil
}

func (t *termSource) Close() error { return t.state.Close() }

// maxLineBytes caps a single piped request.
const maxLineBytes = 1 << 20

// errLineTooLong reports a line over the source's cap. The rest of the
// input stays readable.
var errLineTooLong = errors.New("line too long")

// pipeSource reads newline-delimited requests from a pipe or file.
type pipeSource struct {
	r   *bufio.Reader
	max int
}

func newPipeSource(r io.Reader) *pipeSource {
	return &pipeSource{r: bufio.NewReaderSize(r, 64*1024), max: maxLineBytes}
}

// ReadLine returns the next line without its terminator. A line longer
// than the cap is consumed whole and reported as errLineTooLong.
func (p *pipeSource) ReadLine(string) (string, error) {
	var (
		buf  []byte
		over bool
	)
	for {
		chunk, err := p.r.ReadSlice('\n')
		if !over {
			if len(bytes.TrimSuffix(chunk, []byte("\n")))+len(buf) > p.max {
				over, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if over {
			return "", errLineTooLong
		}
		if err != nil && len(buf) == 0 {
			return "", io.EOF
		}
		buf = bytes.TrimSuffix(buf, []byte("\n"))
		return string(bytes.TrimSuffix(buf, []byte("\r"))), nil
	}
}

func (p *pipeSource) Close() error { return nil }

// repl turns input lines into decisions or session commands.
type repl struct {
	s      *session
	out    io.Writer
	opts   render.Options
	asJSON bool
}

// handle processes one line. It reports true when the session should end.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	switch strings.TrimSpace(line) {
	case ":quit", ":q", ":exit":
		return true, nil
	case ":stats":
		return false, render.Stats(r.out, r.s.engine.Stats(), r.opts)
	case ":reset":
		if err := r.s.engine.ResetBudget(); err != nil {
			return false, err
		}
		_, err := fmt.Fprintf(r.out, "budget reset to $%.2f\n", r.s.cfg.Budget.DailyLimit)
		return false, err
	case ":clear":
		r.s.engine.ClearCache()
		_, err := fmt.Fprintln(r.out, "cache cleared")
		return false, err
	case ":help":
		_, err := fmt.Fprintln(r.out, "commands: :stats  :reset  :clear  :quit")
		return false, err
	}

	rec := r.s.decide(ctx, line)
	if r.asJSON {
		return false, render.JSON(r.out, rec)
	}
	return false, render.Decision(r.out, rec, r.opts)
}

// loop feeds src into the repl until EOF, :quit or cancellation.
func (r *repl) loop(ctx context.Context, src lineSource, prompt string) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := src.ReadLine(prompt)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, errLineTooLong) {
			if _, err := fmt.Fprintf(r.out, "skipped: line longer than %d bytes\n", maxLineBytes); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		quit, err := r.handle(ctx, line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	var (
		asJSON  bool
		verbose bool
		noStats bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Decide one request per input line",
		Long: "Reads requests line by line from the terminal or stdin and prints a decision for each.\n" +
			"Lines :stats, :reset, :clear and :quit control the session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, *configPath, sessionOpts{serve: true})
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			opts := render.Options{Color: render.ColorEnabled(os.Stdout), Verbose: verbose}
			r := &repl{s: s, out: out, opts: opts, asJSON: asJSON}

			var (
				src    lineSource
				prompt string
			)
			if term.IsTerminal(int(os.Stdin.Fd())) {
				src, prompt = newTermSource(), "tollgate> "
			} else {
				src = newPipeSource(cmd.InOrStdin())
			}
			defer func() { _ = src.Close() }()

			if err := r.loop(ctx, src, prompt); err != nil {
				return err
			}
			if noStats {
				return nil
			}
			if asJSON {
				return render.StatsJSON(out, s.engine.Stats())
			}
			fmt.Fprintln(out)
			return render.Stats(out, s.engine.Stats(), opts)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print decisions as JSON lines")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every field of each decision")
	cmd.Flags().BoolVar(&noStats, "no-stats", false, "skip the session summary on exit")
	return cmd
}
