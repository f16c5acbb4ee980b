package evaluator_test

import (
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/podhmo/go-probe/script/evaluator"
	"github.com/podhmo/go-probe/script/object"
)

func setup(t *testing.T, src string) (*evaluator.Evaluator, *object.Environment) {
	t.Helper()
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, "main.script", src, parser.SkipObjectResolution)
	if err != nil {
		t.Fatalf("parse: %+v", err)
	}
	builtins := object.NewEnvironment()
	builtins.Set("true", object.TRUE)
	builtins.Set("false", object.FALSE)
	builtins.Set("nil", object.NIL)
	builtins.Set("panic", &object.Builtin{Name: "panic", Fn: func(args ...object.Object) object.Object {
		return &object.Panic{Value: args[0]}
	}})
	env := object.NewEnclosedEnvironment(builtins)

	ev := evaluator.New(evaluator.Config{Fset: fset, Stdout: io.Discard})
	ev.SetGlobals(env)
	if result := ev.EvalFileDecls(parsed, env); result != nil && result.Type() == object.ERROR_OBJ {
		t.Fatalf("load: %s", result.Inspect())
	}
	return ev, env
}

func call(t *testing.T, ev *evaluator.Evaluator, env *object.Environment, name string, args ...object.Object) object.Object {
	t.Helper()
	fn, ok := env.Get(name)
	if !ok {
		t.Fatalf("function not found: %s", name)
	}
	return ev.ApplyFunction(fn, args, nil)
}

func TestEvalBasics(t *testing.T) {
	src := `package p

func arith() int {
	x := 2 + 3*4
	x = x - 4
	x += 2
	return x
}

func loop() int {
	total := 0
	for i := 0; i < 10; i++ {
		if i == 7 {
			break
		}
		if i%2 == 1 {
			continue
		}
		total += i
	}
	return total
}

func branch(n int) string {
	if n > 0 {
		return "pos"
	} else if n == 0 {
		return "zero"
	}
	return "neg"
}

func compare() bool {
	return 1 < 2 && "a" != "b" || false
}
`
	ev, env := setup(t, src)

	tests := []struct {
		name string
		args []object.Object
		want string
	}{
		{name: "arith", want: "12"},
		{name: "loop", want: "12"}, // 0+2+4+6
		{name: "compare", want: "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := call(t, ev, env, tt.name, tt.args...)
			if got.Inspect() != tt.want {
				t.Errorf("%s() = %s, want %s", tt.name, got.Inspect(), tt.want)
			}
		})
	}

	for n, want := range map[int64]string{1: "pos", 0: "zero", -3: "neg"} {
		got := call(t, ev, env, "branch", &object.Integer{Value: n})
		if got.Inspect() != want {
			t.Errorf("branch(%d) = %s, want %s", n, got.Inspect(), want)
		}
	}
}

func TestEvalStructsAndMethods(t *testing.T) {
	src := `package p

type Point struct {
	x int
	y int
}

func (p Point) Sum() int {
	return p.x + p.y
}

func (p Point) Shift(dx int) {
	p.x = p.x + dx
}

func use() int {
	pt := Point{x: 1, y: 2}
	pt.Shift(10)
	return pt.Sum()
}
`
	ev, env := setup(t, src)
	got := call(t, ev, env, "use")
	if got.Inspect() != "13" {
		t.Errorf("use() = %s, want 13", got.Inspect())
	}
}

func TestEvalClosure(t *testing.T) {
	src := `package p

func counter() func() int {
	n := 0
	return func() int {
		n++
		return n
	}
}

func use() int {
	next := counter()
	next()
	next()
	return next()
}
`
	ev, env := setup(t, src)
	got := call(t, ev, env, "use")
	if got.Inspect() != "3" {
		t.Errorf("use() = %s, want 3", got.Inspect())
	}
}

func TestEvalArrays(t *testing.T) {
	src := `package p

func use() int {
	xs := []int{10, 20, 30}
	xs[1] = 21
	return xs[0] + xs[1] + xs[2]
}
`
	ev, env := setup(t, src)
	got := call(t, ev, env, "use")
	if got.Inspect() != "61" {
		t.Errorf("use() = %s, want 61", got.Inspect())
	}
}

func TestEvalErrors(t *testing.T) {
	src := `package p

func undef() int {
	return missing + 1
}

func badArity(a int) int {
	return a
}

func callBadArity() int {
	return badArity(1, 2)
}
`
	ev, env := setup(t, src)

	if got := call(t, ev, env, "undef"); got.Type() != object.ERROR_OBJ {
		t.Errorf("undef() = %s, want error", got.Inspect())
	}
	got := call(t, ev, env, "callBadArity")
	if got.Type() != object.ERROR_OBJ {
		t.Fatalf("callBadArity() = %s, want error", got.Inspect())
	}
}

// recorder is a trace hook that logs every event it sees and keeps tracing.
type recorder struct {
	events []string
}

func (r *recorder) Trace(fr *object.Frame, ev object.Event, arg object.Object) (object.Tracer, error) {
	entry := fmt.Sprintf("%s %s:%d", ev, fr.Name, fr.Line)
	if arg != nil {
		entry += " " + arg.Inspect()
	}
	r.events = append(r.events, entry)
	return r, nil
}

func TestTraceEventSequence(t *testing.T) {
	src := `package p

func add(a int, b int) int {
	x := a + b
	return x
}
`
	ev, env := setup(t, src)
	rec := &recorder{}
	ev.SetTracer(rec)

	got := call(t, ev, env, "add", &object.Integer{Value: 3}, &object.Integer{Value: 5})
	if got.Inspect() != "8" {
		t.Fatalf("add(3, 5) = %s, want 8", got.Inspect())
	}

	want := []string{
		"call add:3",
		"line add:4",
		"line add:5",
		"return add:5 8",
	}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestTracePanicEvent(t *testing.T) {
	src := `package p

func boom() int {
	panic("nope")
	return 0
}
`
	ev, env := setup(t, src)
	rec := &recorder{}
	ev.SetTracer(rec)

	got := call(t, ev, env, "boom")
	if got.Type() != object.PANIC_OBJ {
		t.Fatalf("boom() = %s, want panic", got.Inspect())
	}
	want := []string{
		"call boom:3",
		"line boom:4",
		"panic boom:4 nope",
	}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
}

// declining returns no local tracer, so it should see frame entries only.
type declining struct {
	events []string
}

func (d *declining) Trace(fr *object.Frame, ev object.Event, arg object.Object) (object.Tracer, error) {
	d.events = append(d.events, fmt.Sprintf("%s %s", ev, fr.Name))
	return nil, nil
}

func TestTraceDecliningLocalTrace(t *testing.T) {
	src := `package p

func f() int {
	x := 1
	x = x + 1
	return x
}
`
	ev, env := setup(t, src)
	d := &declining{}
	ev.SetTracer(d)

	call(t, ev, env, "f")
	want := []string{"call f"}
	if diff := cmp.Diff(want, d.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

type failing struct {
	on  object.Event
	err error
}

func (f *failing) Trace(fr *object.Frame, ev object.Event, arg object.Object) (object.Tracer, error) {
	if ev == f.on {
		return nil, f.err
	}
	return f, nil
}

func TestTraceErrorAbortsEvaluation(t *testing.T) {
	src := `package p

var reached = false

func f() int {
	reached = true
	return 1
}
`
	ev, env := setup(t, src)
	sentinel := errors.New("hook failed")
	ev.SetTracer(&failing{on: object.EventLine, err: sentinel})

	got := call(t, ev, env, "f")
	errObj, ok := got.(*object.Error)
	if !ok {
		t.Fatalf("f() = %s, want error object", got.Inspect())
	}
	if !errors.Is(errObj.Err, sentinel) {
		t.Errorf("wrapped err = %v, want sentinel", errObj.Err)
	}
	// the line event fires before the statement runs
	if v, _ := env.Get("reached"); v.Inspect() != "false" {
		t.Errorf("reached = %s, statement ran despite aborted hook", v.Inspect())
	}
}
