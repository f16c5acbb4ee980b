package goprobe_test

import (
	"context"
	"fmt"
	"io"
	"testing"

	goprobe "github.com/podhmo/go-probe"
	"github.com/podhmo/go-probe/script"
	"github.com/podhmo/go-probe/script/object"
	"golang.org/x/sync/errgroup"
)

func intArg(n int) object.Object {
	return &object.Integer{Value: int64(n)}
}

const countdownSrc = `package main

func countdown(n int) int {
	if n == 0 {
		return 0
	}
	return countdown(n-1) + 1
}
`

func newInterp(t *testing.T, src string) *script.Interpreter {
	t.Helper()
	interp, err := script.New(script.WithStdout(io.Discard))
	if err != nil {
		t.Fatalf("script.New: %+v", err)
	}
	if _, err := interp.LoadFile("main.script", src); err != nil {
		t.Fatalf("LoadFile: %+v", err)
	}
	return interp
}

func newProbe(t *testing.T, src string) (*goprobe.Probe, *script.Interpreter) {
	t.Helper()
	interp := newInterp(t, src)
	p, err := goprobe.New(interp)
	if err != nil {
		t.Fatalf("goprobe.New: %+v", err)
	}
	return p, interp
}

func TestDefaultProbePerInterpreter(t *testing.T) {
	interp := newInterp(t, countdownSrc)
	other := newInterp(t, countdownSrc)

	p := goprobe.Default(interp)
	if p2 := goprobe.Default(interp); p2 != p {
		t.Errorf("Default returned a second probe for the same interpreter")
	}
	if p2 := goprobe.Default(other); p2 == p {
		t.Errorf("Default shared a probe across interpreters")
	}

	capture, err := goprobe.CaptureCalls(interp, goprobe.WithFunctionName("countdown"))
	if err != nil {
		t.Fatalf("CaptureCalls: %+v", err)
	}
	defer capture.Close()

	if _, err := interp.Call(context.Background(), "countdown", intArg(2)); err != nil {
		t.Fatalf("Call: %+v", err)
	}
	if len(capture.Calls) != 3 {
		t.Errorf("captured %d calls, want 3", len(capture.Calls))
	}
}

// Each interpreter is single-threaded, but independent interpreters with
// their own probes can run concurrently.
func TestProbesAreIndependentAcrossGoroutines(t *testing.T) {
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 4; i++ {
		n := i + 1
		g.Go(func() error {
			interp, err := script.New(script.WithStdout(io.Discard))
			if err != nil {
				return err
			}
			if _, err := interp.LoadFile("main.script", countdownSrc); err != nil {
				return err
			}
			p, err := goprobe.New(interp)
			if err != nil {
				return err
			}
			capture, err := p.CaptureCalls(goprobe.WithFunctionName("countdown"))
			if err != nil {
				return err
			}
			defer capture.Close()

			if _, err := interp.Call(ctx, "countdown", intArg(n)); err != nil {
				return err
			}
			if got, want := len(capture.Calls), n+1; got != want {
				return fmt.Errorf("countdown(%d): captured %d calls, want %d", n, got, want)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent captures: %+v", err)
	}
}
