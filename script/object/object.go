package object

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/token"
	"sort"
	"strings"
)

// ObjectType is a string representation of an object's type.
type ObjectType string

const (
	INTEGER_OBJ           ObjectType = "INTEGER"
	FLOAT_OBJ             ObjectType = "FLOAT"
	STRING_OBJ            ObjectType = "STRING"
	BOOLEAN_OBJ           ObjectType = "BOOLEAN"
	NIL_OBJ               ObjectType = "NIL"
	ARRAY_OBJ             ObjectType = "ARRAY"
	FUNCTION_OBJ          ObjectType = "FUNCTION"
	BOUND_METHOD_OBJ      ObjectType = "BOUND_METHOD"
	BUILTIN_OBJ           ObjectType = "BUILTIN"
	STRUCT_DEFINITION_OBJ ObjectType = "STRUCT_DEFINITION"
	STRUCT_INSTANCE_OBJ   ObjectType = "STRUCT_INSTANCE"
	RETURN_VALUE_OBJ      ObjectType = "RETURN_VALUE"
	BREAK_OBJ             ObjectType = "BREAK"
	CONTINUE_OBJ          ObjectType = "CONTINUE"
	PANIC_OBJ             ObjectType = "PANIC"
	ERROR_OBJ             ObjectType = "ERROR"
)

// Object is the interface that all value types in the interpreter implement.
type Object interface {
	// Type returns the type of the object.
	Type() ObjectType
	// Inspect returns a string representation of the object's value.
	Inspect() string
}

// --- Integer Object ---

// Integer represents an integer value.
type Integer struct {
	Value int64
}

func (i *Integer) Type() ObjectType { return INTEGER_OBJ }
func (i *Integer) Inspect() string  { return fmt.Sprintf("%d", i.Value) }

// --- Float Object ---

// Float represents a floating-point number.
type Float struct {
	Value float64
}

func (f *Float) Type() ObjectType { return FLOAT_OBJ }
func (f *Float) Inspect() string  { return fmt.Sprintf("%g", f.Value) }

// --- String Object ---

// String represents a string value.
type String struct {
	Value string
}

func (s *String) Type() ObjectType { return STRING_OBJ }
func (s *String) Inspect() string  { return s.Value }

// --- Boolean Object ---

// Boolean represents a boolean value.
type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ObjectType { return BOOLEAN_OBJ }
func (b *Boolean) Inspect() string  { return fmt.Sprintf("%t", b.Value) }

// --- Nil Object ---

// Nil represents a nil value.
type Nil struct{}

func (n *Nil) Type() ObjectType { return NIL_OBJ }
func (n *Nil) Inspect() string  { return "nil" }

// Shared singletons. Comparisons against these are by pointer identity.
var (
	NIL      = &Nil{}
	TRUE     = &Boolean{Value: true}
	FALSE    = &Boolean{Value: false}
	BREAK    = &BreakStatement{}
	CONTINUE = &ContinueStatement{}
)

// --- Array Object ---

// Array represents an ordered sequence of values.
type Array struct {
	Elements []Object
}

func (a *Array) Type() ObjectType { return ARRAY_OBJ }
func (a *Array) Inspect() string {
	var out bytes.Buffer
	elems := make([]string, 0, len(a.Elements))
	for _, e := range a.Elements {
		elems = append(elems, e.Inspect())
	}
	out.WriteString("[")
	out.WriteString(strings.Join(elems, ", "))
	out.WriteString("]")
	return out.String()
}

// --- Break / Continue ---

// BreakStatement represents a break statement. It's a singleton.
type BreakStatement struct{}

func (bs *BreakStatement) Type() ObjectType { return BREAK_OBJ }
func (bs *BreakStatement) Inspect() string  { return "break" }

// ContinueStatement represents a continue statement. It's a singleton.
type ContinueStatement struct{}

func (cs *ContinueStatement) Type() ObjectType { return CONTINUE_OBJ }
func (cs *ContinueStatement) Inspect() string  { return "continue" }

// --- Return Value Object ---

// ReturnValue wraps the value being returned from a function to signal the
// "return" state up the evaluation tree.
type ReturnValue struct {
	Value Object
}

func (rv *ReturnValue) Type() ObjectType { return RETURN_VALUE_OBJ }
func (rv *ReturnValue) Inspect() string  { return rv.Value.Inspect() }

// --- Panic Object ---

// Panic represents a panic unwinding the call stack. It wraps the value
// passed to panic().
type Panic struct {
	Value Object
}

func (p *Panic) Type() ObjectType { return PANIC_OBJ }
func (p *Panic) Inspect() string  { return p.Value.Inspect() }

// --- Function Object ---

// Function represents a user-defined function, method, or closure.
// The Function pointer itself is the code identity of a call: two concurrent
// activations of the same declaration share one *Function.
type Function struct {
	Name       *ast.Ident // nil for function literals
	Recv       *ast.FieldList
	Parameters *ast.FieldList
	Body       *ast.BlockStmt
	Env        *Environment // environment the function was defined in
	File       string       // defining file
	Pos        token.Pos

	// Wrapped links a wrapper closure to the function it wraps, recorded by
	// the wraps builtin. Scope resolution follows this chain when unwrapping
	// is requested.
	Wrapped *Function
}

func (f *Function) Type() ObjectType { return FUNCTION_OBJ }

func (f *Function) Inspect() string {
	var out bytes.Buffer
	out.WriteString("func")
	if f.Name != nil {
		out.WriteString(" ")
		out.WriteString(f.Name.String())
	}
	out.WriteString("(")
	out.WriteString(strings.Join(f.ParamNames(), ", "))
	out.WriteString(") { ... }")
	return out.String()
}

// FuncName returns the unqualified name of the function, or a placeholder
// for anonymous function literals.
func (f *Function) FuncName() string {
	if f.Name != nil {
		return f.Name.Name
	}
	return "<func literal>"
}

// ParamNames returns the parameter names in declaration order.
func (f *Function) ParamNames() []string {
	var names []string
	if f.Parameters == nil {
		return names
	}
	for _, field := range f.Parameters.List {
		for _, name := range field.Names {
			names = append(names, name.Name)
		}
	}
	return names
}

// Unwrap follows the Wrapped chain to the innermost function.
func (f *Function) Unwrap() *Function {
	inner := f
	for inner.Wrapped != nil {
		inner = inner.Wrapped
	}
	return inner
}

// --- Bound Method Object ---

// BoundMethod pairs a method with the instance it was selected from.
type BoundMethod struct {
	Fn       *Function
	Receiver Object
}

func (bm *BoundMethod) Type() ObjectType { return BOUND_METHOD_OBJ }
func (bm *BoundMethod) Inspect() string {
	return fmt.Sprintf("bound method %s of %s", bm.Fn.FuncName(), bm.Receiver.Inspect())
}

// --- Builtin Function Object ---

// Builtin represents a function implemented in Go.
type Builtin struct {
	Name string
	Fn   func(args ...Object) Object
}

func (b *Builtin) Type() ObjectType { return BUILTIN_OBJ }
func (b *Builtin) Inspect() string  { return "builtin function " + b.Name }

// --- Struct Definition Object ---

// StructDefinition represents a struct type declared by a script.
type StructDefinition struct {
	Name       string
	FieldOrder []string
	Methods    map[string]*Function
}

func (sd *StructDefinition) Type() ObjectType { return STRUCT_DEFINITION_OBJ }
func (sd *StructDefinition) Inspect() string  { return "type " + sd.Name + " struct" }

// --- Struct Instance Object ---

// StructInstance represents one value of a script-declared struct type.
// The pointer is the instance identity used by receiver-pinned scopes.
type StructInstance struct {
	Def    *StructDefinition
	Fields map[string]Object
}

func (si *StructInstance) Type() ObjectType { return STRUCT_INSTANCE_OBJ }
func (si *StructInstance) Inspect() string {
	var out bytes.Buffer
	out.WriteString(si.Def.Name)
	out.WriteString("{")
	parts := make([]string, 0, len(si.FieldOrderOrKeys()))
	for _, name := range si.FieldOrderOrKeys() {
		if v, ok := si.Fields[name]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", name, v.Inspect()))
		}
	}
	out.WriteString(strings.Join(parts, ", "))
	out.WriteString("}")
	return out.String()
}

// FieldOrderOrKeys returns the declared field order, falling back to sorted
// keys for instances built without a definition order.
func (si *StructInstance) FieldOrderOrKeys() []string {
	if si.Def != nil && len(si.Def.FieldOrder) > 0 {
		return si.Def.FieldOrder
	}
	keys := make([]string, 0, len(si.Fields))
	for k := range si.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- Error Object ---

// Error represents a runtime error raised during evaluation. If Err is set,
// it carries an underlying Go error (e.g. one returned by a tracer) that is
// preserved through the unwind so callers can inspect it with errors.Is.
type Error struct {
	Pos     token.Pos
	Message string
	Err     error
}

func (e *Error) Type() ObjectType { return ERROR_OBJ }
func (e *Error) Inspect() string  { return "ERROR: " + e.Message }

// --- Environment ---

// Environment is a scope for variable bindings. Environments chain from
// block scopes out through function scopes to the script's global scope.
type Environment struct {
	store map[string]Object
	outer *Environment
}

// NewEnvironment creates a new top-level environment.
func NewEnvironment() *Environment {
	return &Environment{store: make(map[string]Object)}
}

// NewEnclosedEnvironment creates a new environment chained to an outer one.
func NewEnclosedEnvironment(outer *Environment) *Environment {
	env := NewEnvironment()
	env.outer = outer
	return env
}

// Get retrieves a binding, searching the environment chain outward.
func (e *Environment) Get(name string) (Object, bool) {
	if obj, ok := e.store[name]; ok {
		return obj, true
	}
	if e.outer != nil {
		return e.outer.Get(name)
	}
	return nil, false
}

// Set defines or overwrites a binding in this environment.
func (e *Environment) Set(name string, val Object) Object {
	e.store[name] = val
	return val
}

// Assign updates an existing binding, searching the chain outward.
// It returns false if the name is not bound anywhere.
func (e *Environment) Assign(name string, val Object) bool {
	if _, ok := e.store[name]; ok {
		e.store[name] = val
		return true
	}
	if e.outer != nil {
		return e.outer.Assign(name, val)
	}
	return false
}

// Defines reports whether the name is bound at this level, ignoring outer
// environments.
func (e *Environment) Defines(name string) bool {
	_, ok := e.store[name]
	return ok
}

// GetAll returns a copy of the bindings at this level only.
func (e *Environment) GetAll() map[string]Object {
	all := make(map[string]Object, len(e.store))
	for k, v := range e.store {
		all[k] = v
	}
	return all
}

// Outer returns the enclosing environment, or nil.
func (e *Environment) Outer() *Environment {
	return e.outer
}
