package object

import "fmt"

// Event identifies one kind of traced event.
type Event int

const (
	// EventCall fires once when a new frame is entered, before the first
	// statement of the body runs.
	EventCall Event = iota
	// EventLine fires before each statement, with Frame.Line already updated.
	EventLine
	// EventReturn fires when a call returns normally; the event argument is
	// the return value.
	EventReturn
	// EventPanic fires when a panic unwinds through a frame; the event
	// argument is the panic value.
	EventPanic
)

func (ev Event) String() string {
	switch ev {
	case EventCall:
		return "call"
	case EventLine:
		return "line"
	case EventReturn:
		return "return"
	case EventPanic:
		return "panic"
	}
	return fmt.Sprintf("event(%d)", int(ev))
}

// Tracer is the hook invoked by the evaluator on traced events.
//
// The interpreter holds a single global Tracer slot. On EventCall the global
// tracer is invoked with the new frame; the Tracer it returns becomes the
// frame's local tracer (nil means the frame is not observed further). Line,
// return and panic events are delivered to the frame's local tracer, and its
// return value replaces the local tracer each time.
//
// An error returned by a tracer aborts the traced evaluation and propagates
// to the caller of the script.
type Tracer interface {
	Trace(fr *Frame, ev Event, arg Object) (Tracer, error)
}

// Arg is one named argument binding of a frame, in declaration order.
type Arg struct {
	Name  string
	Value Object
}

// StackEntry summarizes one frame of a call stack.
type StackEntry struct {
	Name string
	File string
	Line int
}

func (se StackEntry) String() string {
	return fmt.Sprintf("%s:%d: in %s", se.File, se.Line, se.Name)
}

// Frame is the live state of one in-progress call activation. Frames are
// owned by the evaluator; a tracer must not retain a Frame past the event
// that delivered it, only copies of the values it needs.
type Frame struct {
	Fn        *Function
	Name      string
	File      string
	Line      int    // current line, updated before each statement
	FirstLine int    // line of the func declaration
	Recv      Object // bound receiver, nil unless a method call
	Caller    *Frame

	// LocalTracer receives line/return/panic events for this frame.
	LocalTracer Tracer

	env     *Environment // innermost active environment
	fnEnv   *Environment // function-level environment (parameters)
	globals *Environment
}

// NewFrame creates a frame for one activation of fn. fnEnv is the
// function-level environment holding the parameter bindings.
func NewFrame(fn *Function, name, file string, firstLine int, recv Object, fnEnv, globals *Environment, caller *Frame) *Frame {
	return &Frame{
		Fn:        fn,
		Name:      name,
		File:      file,
		Line:      firstLine,
		FirstLine: firstLine,
		Recv:      recv,
		Caller:    caller,
		env:       fnEnv,
		fnEnv:     fnEnv,
		globals:   globals,
	}
}

// Env returns the innermost active environment.
func (fr *Frame) Env() *Environment { return fr.env }

// SetEnv switches the active environment. The evaluator calls this as block
// scopes open and close.
func (fr *Frame) SetEnv(env *Environment) { fr.env = env }

// GlobalEnv returns the script's global environment.
func (fr *Frame) GlobalEnv() *Environment { return fr.globals }

// Locals returns a flattened copy of the frame's local bindings, from the
// innermost block scope down to the function-level environment. Inner
// bindings shadow outer ones. Captured variables of enclosing closures and
// globals are not included.
func (fr *Frame) Locals() map[string]Object {
	out := make(map[string]Object)
	for e := fr.env; e != nil; e = e.Outer() {
		for k, v := range e.GetAll() {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
		if e == fr.fnEnv {
			break
		}
	}
	return out
}

// Globals returns a copy of the script's global bindings.
func (fr *Frame) Globals() map[string]Object {
	return fr.globals.GetAll()
}

// Args returns the frame's argument bindings in parameter declaration order.
// Bindings reflect the current values, which equal the call arguments when
// read during EventCall.
func (fr *Frame) Args() []Arg {
	if fr.Fn == nil {
		return nil
	}
	var args []Arg
	for _, name := range fr.Fn.ParamNames() {
		if v, ok := fr.fnEnv.Get(name); ok {
			args = append(args, Arg{Name: name, Value: v})
		}
	}
	return args
}

// SetLocal writes a binding into the live frame. An existing local binding
// is updated in the scope that defines it; a new name is defined at the
// function level so the traced code observes it when it resumes.
func (fr *Frame) SetLocal(name string, val Object) {
	for e := fr.env; e != nil; e = e.Outer() {
		if e.Defines(name) {
			e.Set(name, val)
			return
		}
		if e == fr.fnEnv {
			break
		}
	}
	fr.fnEnv.Set(name, val)
}

// StackSummary captures the call stack leading to this frame, outermost
// caller first, this frame last.
func (fr *Frame) StackSummary() []StackEntry {
	var rev []StackEntry
	for f := fr; f != nil; f = f.Caller {
		rev = append(rev, StackEntry{Name: f.Name, File: f.File, Line: f.Line})
	}
	out := make([]StackEntry, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return out
}

// Depth returns the number of callers above this frame.
func (fr *Frame) Depth() int {
	n := 0
	for f := fr.Caller; f != nil; f = f.Caller {
		n++
	}
	return n
}
