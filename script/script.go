// Package script is a small tree-walking interpreter for a Go-like script
// language. It parses scripts with go/parser and evaluates their ASTs,
// exposing a trace hook that fires as script frames are entered, advanced,
// and left. The hook surface is what the instrumentation layer attaches to.
package script

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/podhmo/go-probe/script/evaluator"
	"github.com/podhmo/go-probe/script/object"
)

// File is a loaded script file.
type File struct {
	Name string // package name
	Path string // filename passed to LoadFile
	AST  *ast.File
}

// Interpreter loads script files and calls into them. The zero value is not
// usable; construct one with New.
type Interpreter struct {
	fset    *token.FileSet
	eval    *evaluator.Evaluator
	quiet   *evaluator.Evaluator // tracer-less, for hook-internal evaluation
	globals *object.Environment
	files   []*File
	sources map[string][]string
	stdout  io.Writer
	logger  *slog.Logger
}

type Option func(*Interpreter)

// WithStdout redirects the output of the println builtin.
func WithStdout(w io.Writer) Option {
	return func(i *Interpreter) { i.stdout = w }
}

// WithLogger sets the logger used for interpreter diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) { i.logger = logger }
}

func New(opts ...Option) (*Interpreter, error) {
	i := &Interpreter{
		fset:    token.NewFileSet(),
		sources: make(map[string][]string),
		stdout:  os.Stdout,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	builtins := object.NewEnvironment()
	i.registerBuiltins(builtins)
	i.globals = object.NewEnclosedEnvironment(builtins)

	cfg := evaluator.Config{Fset: i.fset, Stdout: i.stdout, Logger: i.logger}
	i.eval = evaluator.New(cfg)
	i.eval.SetGlobals(i.globals)
	i.quiet = evaluator.New(cfg)
	i.quiet.SetGlobals(i.globals)
	return i, nil
}

func (i *Interpreter) registerBuiltins(env *object.Environment) {
	env.Set("true", object.TRUE)
	env.Set("false", object.FALSE)
	env.Set("nil", object.NIL)

	env.Set("println", &object.Builtin{Name: "println", Fn: func(args ...object.Object) object.Object {
		parts := make([]string, len(args))
		for idx, a := range args {
			parts[idx] = a.Inspect()
		}
		fmt.Fprintln(i.stdout, strings.Join(parts, " "))
		return object.NIL
	}})

	env.Set("len", &object.Builtin{Name: "len", Fn: func(args ...object.Object) object.Object {
		if len(args) != 1 {
			return &object.Error{Message: fmt.Sprintf("wrong number of arguments. got=%d, want=1", len(args))}
		}
		switch v := args[0].(type) {
		case *object.String:
			return &object.Integer{Value: int64(len(v.Value))}
		case *object.Array:
			return &object.Integer{Value: int64(len(v.Elements))}
		}
		return &object.Error{Message: fmt.Sprintf("argument to len not supported, got %s", args[0].Type())}
	}})

	// wraps(wrapper, inner) returns a copy of wrapper that records inner as
	// the function it stands in for, like a decorator preserving identity.
	env.Set("wraps", &object.Builtin{Name: "wraps", Fn: func(args ...object.Object) object.Object {
		if len(args) != 2 {
			return &object.Error{Message: fmt.Sprintf("wrong number of arguments. got=%d, want=2", len(args))}
		}
		wrapper, ok := args[0].(*object.Function)
		if !ok {
			return &object.Error{Message: fmt.Sprintf("first argument to wraps must be a function, got %s", args[0].Type())}
		}
		inner, ok := args[1].(*object.Function)
		if !ok {
			return &object.Error{Message: fmt.Sprintf("second argument to wraps must be a function, got %s", args[1].Type())}
		}
		cp := *wrapper
		cp.Wrapped = inner
		return &cp
	}})

	env.Set("panic", &object.Builtin{Name: "panic", Fn: func(args ...object.Object) object.Object {
		if len(args) != 1 {
			return &object.Error{Message: fmt.Sprintf("wrong number of arguments. got=%d, want=1", len(args))}
		}
		return &object.Panic{Value: args[0]}
	}})
}

// LoadFile parses src and evaluates its top-level declarations into the
// interpreter's global environment. filename is used for positions and for
// file-based scope matching.
func (i *Interpreter) LoadFile(filename string, src string) (*File, error) {
	parsed, err := parser.ParseFile(i.fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	i.sources[filename] = strings.Split(src, "\n")

	if result := i.eval.EvalFileDecls(parsed, i.globals); result != nil {
		if errObj, ok := result.(*object.Error); ok {
			return nil, fmt.Errorf("load %s: %w", filename, toGoError(errObj))
		}
	}
	file := &File{Name: parsed.Name.Name, Path: filename, AST: parsed}
	i.files = append(i.files, file)
	return file, nil
}

// Files returns the loaded files in load order.
func (i *Interpreter) Files() []*File { return i.files }

// FindFunction looks up a top-level function by name.
func (i *Interpreter) FindFunction(name string) (*object.Function, error) {
	obj, ok := i.globals.Get(name)
	if !ok {
		return nil, fmt.Errorf("function not found: %s", name)
	}
	fn, ok := obj.(*object.Function)
	if !ok {
		return nil, fmt.Errorf("%s is not a function (got %s)", name, obj.Type())
	}
	return fn, nil
}

// GlobalEnv returns the script-global environment. Builtins live in an
// enclosing environment and are not part of it.
func (i *Interpreter) GlobalEnv() *object.Environment { return i.globals }

// SetTracer installs tr as the interpreter's global tracer, replacing any
// previous one. Passing nil disables tracing.
func (i *Interpreter) SetTracer(tr object.Tracer) { i.eval.SetTracer(tr) }

// Tracer returns the currently installed global tracer.
func (i *Interpreter) Tracer() object.Tracer { return i.eval.Tracer() }

// SourceLine returns the 1-based line of a loaded file, without trailing
// newline. ok is false when the file or line is unknown.
func (i *Interpreter) SourceLine(file string, line int) (string, bool) {
	lines, ok := i.sources[file]
	if !ok || line < 1 || line > len(lines) {
		return "", false
	}
	return lines[line-1], true
}

// Call invokes a top-level function with the given arguments. Trace hook
// failures surface as wrapped errors, so errors.Is sees the hook's error.
func (i *Interpreter) Call(ctx context.Context, name string, args ...object.Object) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn, err := i.FindFunction(name)
	if err != nil {
		return nil, err
	}
	result := i.eval.ApplyFunction(fn, args, nil)
	switch r := result.(type) {
	case *object.Error:
		return nil, fmt.Errorf("call %s: %w", name, toGoError(r))
	case *object.Panic:
		return nil, fmt.Errorf("call %s: script panic: %s", name, r.Value.Inspect())
	}
	return result, nil
}

// EvalExprInFrame evaluates a single expression against the bindings visible
// in fr, plus extra. The evaluation runs without tracing, so it never
// re-enters an installed hook.
func (i *Interpreter) EvalExprInFrame(expr string, fr *object.Frame, extra map[string]object.Object) (object.Object, error) {
	node, err := parser.ParseExprFrom(i.fset, "<goprobe:expr>", expr, 0)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", expr, err)
	}
	env := object.NewEnclosedEnvironment(i.globals)
	if fr != nil {
		for name, val := range fr.Locals() {
			env.Set(name, val)
		}
	}
	for name, val := range extra {
		env.Set(name, val)
	}
	result := i.quiet.Eval(node, env, nil)
	if errObj, ok := result.(*object.Error); ok {
		return nil, fmt.Errorf("eval %q: %w", expr, toGoError(errObj))
	}
	if p, ok := result.(*object.Panic); ok {
		return nil, fmt.Errorf("eval %q: script panic: %s", expr, p.Value.Inspect())
	}
	return result, nil
}

// ExecStmts parses src as a statement list and runs it directly in env, so
// that := definitions become visible as entries of env itself. Like
// EvalExprInFrame it runs without tracing.
func (i *Interpreter) ExecStmts(src string, env *object.Environment) error {
	wrapped := "package p\nfunc _() {\n" + src + "\n}"
	parsed, err := parser.ParseFile(i.fset, "<goprobe:exec>", wrapped, parser.SkipObjectResolution)
	if err != nil {
		return fmt.Errorf("parse statements %q: %w", src, err)
	}
	var body *ast.BlockStmt
	for _, decl := range parsed.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok {
			body = fd.Body
			break
		}
	}
	if body == nil {
		return fmt.Errorf("parse statements %q: no statements", src)
	}
	result := i.quiet.EvalStmts(body.List, env)
	switch r := result.(type) {
	case *object.Error:
		return fmt.Errorf("exec %q: %w", src, toGoError(r))
	case *object.Panic:
		return fmt.Errorf("exec %q: script panic: %s", src, r.Value.Inspect())
	}
	return nil
}

func toGoError(obj *object.Error) error {
	if obj.Err != nil {
		return fmt.Errorf("%s: %w", obj.Message, obj.Err)
	}
	return errors.New(obj.Message)
}
