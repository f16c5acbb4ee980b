package goprobe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	goprobe "github.com/podhmo/go-probe"
	"github.com/podhmo/go-probe/script/object"
)

const doubleSrc = `package main

func f(a int) int {
	x := a * 2
	return x
}
`

func mustScope(t *testing.T, opts ...goprobe.ScopeOption) *goprobe.Scope {
	t.Helper()
	scope, err := goprobe.NewScope(opts...)
	if err != nil {
		t.Fatalf("NewScope: %+v", err)
	}
	return scope
}

func TestBreakpointValidation(t *testing.T) {
	p, _ := newProbe(t, doubleSrc)
	fnScope := mustScope(t, goprobe.WithFunctionName("f"))
	fileScope := mustScope(t, goprobe.WithFile("main.script"))

	tests := []struct {
		name string
		run  func() error
	}{
		{name: "nil scope", run: func() error {
			_, err := p.SetBreakpoint(nil, goprobe.WithLine(4))
			return err
		}},
		{name: "both line selectors", run: func() error {
			_, err := p.SetBreakpoint(fnScope, goprobe.WithLine(4), goprobe.WithLineText("return x"))
			return err
		}},
		{name: "negative line", run: func() error {
			_, err := p.SetBreakpoint(fnScope, goprobe.WithLine(-1))
			return err
		}},
		{name: "entry breakpoint without function scope", run: func() error {
			_, err := p.SetBreakpoint(fileScope)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, goprobe.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestBreakpointAtFunctionEntry(t *testing.T) {
	p, interp := newProbe(t, doubleSrc)
	bp, err := p.SetBreakpoint(mustScope(t, goprobe.WithFunctionName("f")))
	if err != nil {
		t.Fatalf("SetBreakpoint: %+v", err)
	}
	defer bp.Close()

	res := bp.Eval("a + 100")
	if _, err := interp.Call(context.Background(), "f", intArg(3)); err != nil {
		t.Fatalf("Call: %+v", err)
	}
	if got := res.Last(); got == nil || got.Inspect() != "103" {
		t.Errorf("entry eval = %v, want 103", got)
	}
}

func TestBreakpointLineTextIgnoresWhitespace(t *testing.T) {
	p, interp := newProbe(t, doubleSrc)
	// the actual source line is tab-indented
	bp, err := p.SetBreakpoint(mustScope(t, goprobe.WithFunctionName("f")),
		goprobe.WithLineText("  x := a * 2  "))
	if err != nil {
		t.Fatalf("SetBreakpoint: %+v", err)
	}
	defer bp.Close()

	res := bp.Eval("a")
	if _, err := interp.Call(context.Background(), "f", intArg(7)); err != nil {
		t.Fatalf("Call: %+v", err)
	}
	if got := res.Last(); got == nil || got.Inspect() != "7" {
		t.Errorf("eval at matched line = %v, want 7", got)
	}
}

func TestBreakpointExecWritesBack(t *testing.T) {
	p, interp := newProbe(t, doubleSrc)
	bp, err := p.SetBreakpoint(mustScope(t, goprobe.WithFunctionName("f")), goprobe.WithLine(5))
	if err != nil {
		t.Fatalf("SetBreakpoint: %+v", err)
	}
	defer bp.Close()

	bp.Exec("x = 6")
	result, err := interp.Call(context.Background(), "f", intArg(3))
	if err != nil {
		t.Fatalf("Call: %+v", err)
	}
	if result.Inspect() != "6" {
		t.Errorf("f(3) = %s with mutated x, want 6", result.Inspect())
	}
}

func TestBreakpointExecDefinesNewBinding(t *testing.T) {
	src := `package main

func f(a int) int {
	x := a
	x = x + bonus
	return x
}
`
	// bonus does not exist until the breakpoint injects it
	p, interp := newProbe(t, src)
	bp, err := p.SetBreakpoint(mustScope(t, goprobe.WithFunctionName("f")), goprobe.WithLine(5))
	if err != nil {
		t.Fatalf("SetBreakpoint: %+v", err)
	}
	defer bp.Close()

	bp.Exec("bonus := 40")
	result, err := interp.Call(context.Background(), "f", intArg(2))
	if err != nil {
		t.Fatalf("Call: %+v", err)
	}
	if result.Inspect() != "42" {
		t.Errorf("f(2) = %s, want 42", result.Inspect())
	}
}

func TestBreakpointExecVariableConflict(t *testing.T) {
	p, interp := newProbe(t, doubleSrc)
	bp, err := p.SetBreakpoint(mustScope(t, goprobe.WithFunctionName("f")), goprobe.WithLine(5))
	if err != nil {
		t.Fatalf("SetBreakpoint: %+v", err)
	}
	defer bp.Close()

	// x already exists in the frame at line 5
	bp.ExecWith("z := x", map[string]object.Object{"x": intArg(99)})
	_, err = interp.Call(context.Background(), "f", intArg(3))
	if !errors.Is(err, goprobe.ErrVariableConflict) {
		t.Errorf("Call err = %v, want ErrVariableConflict", err)
	}
}

func TestBreakpointExecWithExtraBindings(t *testing.T) {
	p, interp := newProbe(t, doubleSrc)
	bp, err := p.SetBreakpoint(mustScope(t, goprobe.WithFunctionName("f")), goprobe.WithLine(5))
	if err != nil {
		t.Fatalf("SetBreakpoint: %+v", err)
	}
	defer bp.Close()

	bp.ExecWith("x = x + boost", map[string]object.Object{"boost": intArg(10)})
	result, err := interp.Call(context.Background(), "f", intArg(3))
	if err != nil {
		t.Fatalf("Call: %+v", err)
	}
	// x was 6 at the return line; the extra name itself is not written back
	if result.Inspect() != "16" {
		t.Errorf("f(3) = %s, want 16", result.Inspect())
	}
	if _, err := interp.EvalExprInFrame("boost", nil, nil); err == nil {
		t.Errorf("boost leaked into globals")
	}
}

func TestBreakpointCondition(t *testing.T) {
	p, interp := newProbe(t, doubleSrc)
	bp, err := p.SetBreakpoint(mustScope(t, goprobe.WithFunctionName("f")),
		goprobe.WithLine(5), goprobe.WithCondition("a > 2"))
	if err != nil {
		t.Fatalf("SetBreakpoint: %+v", err)
	}
	defer bp.Close()

	res := bp.Eval("x")
	for _, n := range []int{1, 5, 2} {
		if _, err := interp.Call(context.Background(), "f", intArg(n)); err != nil {
			t.Fatalf("Call f(%d): %+v", n, err)
		}
	}

	var got []string
	for _, v := range res.Values {
		got = append(got, v.Inspect())
	}
	want := []string{"10"} // only f(5) passes the guard
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("guarded results mismatch (-want +got):\n%s", diff)
	}
}

func TestBreakpointResultsAccumulate(t *testing.T) {
	src := `package main

func f(a int) int {
	x := a * 2
	return x
}

func run() {
	f(1)
	f(2)
	f(3)
}
`
	p, interp := newProbe(t, src)
	bp, err := p.SetBreakpoint(mustScope(t, goprobe.WithFunctionName("f")), goprobe.WithLine(5))
	if err != nil {
		t.Fatalf("SetBreakpoint: %+v", err)
	}
	defer bp.Close()

	res := bp.Eval("x")
	if res.Last() != nil {
		t.Errorf("Last() = %v before any firing, want nil", res.Last())
	}
	if _, err := interp.Call(context.Background(), "run"); err != nil {
		t.Fatalf("Call: %+v", err)
	}

	var got []string
	for _, v := range res.Values {
		got = append(got, v.Inspect())
	}
	want := []string{"2", "4", "6"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if res.Last().Inspect() != "6" {
		t.Errorf("Last() = %s, want 6", res.Last().Inspect())
	}
}

func TestBreakpointCloseStopsFiring(t *testing.T) {
	p, interp := newProbe(t, doubleSrc)
	bp, err := p.SetBreakpoint(mustScope(t, goprobe.WithFunctionName("f")), goprobe.WithLine(5))
	if err != nil {
		t.Fatalf("SetBreakpoint: %+v", err)
	}
	res := bp.Eval("x")

	if _, err := interp.Call(context.Background(), "f", intArg(1)); err != nil {
		t.Fatalf("Call: %+v", err)
	}
	bp.Close()
	if interp.Tracer() != nil {
		t.Errorf("hook still installed after Close")
	}

	if _, err := interp.Call(context.Background(), "f", intArg(2)); err != nil {
		t.Fatalf("Call: %+v", err)
	}
	if len(res.Values) != 1 {
		t.Errorf("results = %d after Close, want 1", len(res.Values))
	}
}
