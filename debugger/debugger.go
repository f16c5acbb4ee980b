// Package debugger is a line-oriented stepping debugger for goprobe
// handoffs. It reads commands from an input stream, so it works both on a
// terminal and scripted from tests.
package debugger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/podhmo/go-probe"
	"github.com/podhmo/go-probe/script"
	"github.com/podhmo/go-probe/script/object"
)

type stepMode int

const (
	// modeStep stops at every traced event.
	modeStep stepMode = iota
	// modeNext stops at the next event at or above the depth where the
	// command was given; callee frames run untraced.
	modeNext
)

// Debugger steps through script frames handed over by a breakpoint.
type Debugger struct {
	interp *script.Interpreter
	in     *bufio.Scanner
	out    io.Writer

	mode      stepMode
	stopDepth int
	detached  bool
}

type config struct {
	in  io.Reader
	out io.Writer
}

type Option func(*config)

// WithInput sets the command stream. Defaults to os.Stdin.
func WithInput(r io.Reader) Option {
	return func(cfg *config) { cfg.in = r }
}

// WithOutput sets where prompts and command output go. Defaults to
// os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(cfg *config) { cfg.out = w }
}

// Factory adapts the debugger for Breakpoint.Debug. Each firing gets a
// fresh Debugger that starts in stepping mode, so the event that tripped
// the breakpoint is the first stop. All firings read commands through one
// shared scanner; input buffered during one session stays available to the
// next.
func Factory(opts ...Option) goprobe.DebuggerFactory {
	cfg := config{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}
	in := bufio.NewScanner(cfg.in)
	return func(interp *script.Interpreter, fr *object.Frame) goprobe.Debugger {
		d := &Debugger{
			interp: interp,
			in:     in,
			out:    cfg.out,
			mode:   modeStep,
		}
		fmt.Fprintf(d.out, "paused in %s\n", fr.Name)
		return d
	}
}

// Detached implements goprobe.Debugger.
func (d *Debugger) Detached() bool { return d.detached }

// Trace implements goprobe.Debugger. It decides per event whether to stop
// and prompt, keep going silently, or let a callee run untraced.
func (d *Debugger) Trace(fr *object.Frame, ev goprobe.Event, arg object.Object) (object.Tracer, error) {
	if d.detached {
		return nil, nil
	}
	if ev == goprobe.EventCall && d.mode == modeNext {
		return nil, nil
	}
	if d.mode == modeNext && fr.Depth() > d.stopDepth {
		return d, nil
	}

	d.printLocation(fr, ev, arg)
	return d.prompt(fr)
}

func (d *Debugger) printLocation(fr *object.Frame, ev goprobe.Event, arg object.Object) {
	fmt.Fprintf(d.out, "> %s:%d %s (%s)\n", fr.File, fr.Line, fr.Name, ev)
	if src, ok := d.interp.SourceLine(fr.File, fr.Line); ok {
		fmt.Fprintf(d.out, "  %s\n", strings.TrimSpace(src))
	}
	if ev == goprobe.EventReturn && arg != nil {
		fmt.Fprintf(d.out, "  return %s\n", arg.Inspect())
	}
	if ev == goprobe.EventPanic && arg != nil {
		fmt.Fprintf(d.out, "  panic %s\n", arg.Inspect())
	}
}

func (d *Debugger) prompt(fr *object.Frame) (object.Tracer, error) {
	for {
		fmt.Fprint(d.out, "(debug) ")
		if !d.in.Scan() {
			// End of input detaches, like quitting.
			d.detached = true
			return nil, nil
		}
		line := strings.TrimSpace(d.in.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "s", "step":
			d.mode = modeStep
			return d, nil
		case "n", "next":
			d.mode = modeNext
			d.stopDepth = fr.Depth()
			return d, nil
		case "c", "continue", "q", "quit":
			d.detached = true
			return nil, nil
		case "p", "print":
			d.cmdPrint(fr, strings.TrimSpace(rest))
		case "locals":
			d.cmdLocals(fr)
		case "w", "where":
			for _, entry := range fr.StackSummary() {
				fmt.Fprintf(d.out, "  %s\n", entry)
			}
		default:
			fmt.Fprintf(d.out, "unknown command: %s\n", cmd)
		}
	}
}

func (d *Debugger) cmdPrint(fr *object.Frame, expr string) {
	if expr == "" {
		fmt.Fprintln(d.out, "usage: print <expr>")
		return
	}
	val, err := d.interp.EvalExprInFrame(expr, fr, nil)
	if err != nil {
		fmt.Fprintf(d.out, "error: %s\n", err)
		return
	}
	fmt.Fprintln(d.out, val.Inspect())
}

func (d *Debugger) cmdLocals(fr *object.Frame) {
	locals := fr.Locals()
	names := make([]string, 0, len(locals))
	for name := range locals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(d.out, "%s = %s\n", name, locals[name].Inspect())
	}
}
