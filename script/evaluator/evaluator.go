package evaluator

import (
	"fmt"
	"go/ast"
	"go/token"
	"io"
	"log/slog"
	"strconv"

	"github.com/podhmo/go-probe/script/object"
)

// Config carries the dependencies of an Evaluator.
type Config struct {
	Fset   *token.FileSet
	Stdout io.Writer
	Logger *slog.Logger
}

// Evaluator walks the AST of a loaded script and evaluates it. It owns the
// interpreter's single global tracer slot and fires trace events as frames
// are entered, advanced line by line, and left.
type Evaluator struct {
	fset    *token.FileSet
	stdout  io.Writer
	logger  *slog.Logger
	tracer  object.Tracer
	globals *object.Environment
}

func New(cfg Config) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Evaluator{
		fset:   cfg.Fset,
		stdout: cfg.Stdout,
		logger: logger,
	}
}

// SetGlobals records the script-global environment used as the boundary of
// frame-local binding extraction.
func (e *Evaluator) SetGlobals(env *object.Environment) { e.globals = env }

// SetTracer installs tr into the global tracer slot, replacing any previous
// tracer. A nil tr disables tracing.
func (e *Evaluator) SetTracer(tr object.Tracer) { e.tracer = tr }

// Tracer returns the currently installed global tracer.
func (e *Evaluator) Tracer() object.Tracer { return e.tracer }

// --- top-level declarations ---

// EvalFileDecls evaluates the declarations of a parsed file into env.
// Types are bound first, then functions and methods, then variables, so
// declaration order does not matter within a file.
func (e *Evaluator) EvalFileDecls(file *ast.File, env *object.Environment) object.Object {
	for _, decl := range file.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok && gd.Tok == token.TYPE {
			if result := e.evalTypeDecl(gd, env); isError(result) {
				return result
			}
		}
	}
	for _, decl := range file.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok {
			if result := e.evalFuncDecl(fd, env); isError(result) {
				return result
			}
		}
	}
	for _, decl := range file.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok && (gd.Tok == token.VAR || gd.Tok == token.CONST) {
			if result := e.evalValueDecl(gd, env); isError(result) {
				return result
			}
		}
	}
	return object.NIL
}

func (e *Evaluator) evalTypeDecl(gd *ast.GenDecl, env *object.Environment) object.Object {
	for _, spec := range gd.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			return e.newError(ts.Pos(), "unsupported type declaration: %s", ts.Name.Name)
		}
		def := &object.StructDefinition{
			Name:    ts.Name.Name,
			Methods: make(map[string]*object.Function),
		}
		if st.Fields != nil {
			for _, field := range st.Fields.List {
				for _, name := range field.Names {
					def.FieldOrder = append(def.FieldOrder, name.Name)
				}
			}
		}
		env.Set(ts.Name.Name, def)
	}
	return object.NIL
}

func (e *Evaluator) evalFuncDecl(fd *ast.FuncDecl, env *object.Environment) object.Object {
	fn := &object.Function{
		Name:       fd.Name,
		Recv:       fd.Recv,
		Parameters: fd.Type.Params,
		Body:       fd.Body,
		Env:        env,
		File:       e.fileOf(fd.Pos()),
		Pos:        fd.Pos(),
	}
	if fd.Recv == nil {
		env.Set(fd.Name.Name, fn)
		return object.NIL
	}

	// Method: attach to the receiver's struct definition.
	recvName, errObj := e.receiverTypeName(fd)
	if errObj != nil {
		return errObj
	}
	obj, ok := env.Get(recvName)
	if !ok {
		return e.newError(fd.Pos(), "undefined receiver type: %s", recvName)
	}
	def, ok := obj.(*object.StructDefinition)
	if !ok {
		return e.newError(fd.Pos(), "receiver type %s is not a struct", recvName)
	}
	def.Methods[fd.Name.Name] = fn
	return object.NIL
}

func (e *Evaluator) receiverTypeName(fd *ast.FuncDecl) (string, object.Object) {
	if fd.Recv == nil || len(fd.Recv.List) == 0 {
		return "", e.newError(fd.Pos(), "method %s has no receiver", fd.Name.Name)
	}
	t := fd.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	ident, ok := t.(*ast.Ident)
	if !ok {
		return "", e.newError(fd.Pos(), "unsupported receiver type for method %s", fd.Name.Name)
	}
	return ident.Name, nil
}

func (e *Evaluator) evalValueDecl(gd *ast.GenDecl, env *object.Environment) object.Object {
	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for i, name := range vs.Names {
			var val object.Object = object.NIL
			if i < len(vs.Values) {
				val = e.Eval(vs.Values[i], env, nil)
				if isError(val) {
					return val
				}
			}
			if name.Name != "_" {
				env.Set(name.Name, val)
			}
		}
	}
	return object.NIL
}

// --- statement and expression evaluation ---

// Eval evaluates one AST node in env. fr is the frame of the enclosing call,
// or nil when evaluating outside any traced call (top-level declarations and
// hook-free helper evaluation).
func (e *Evaluator) Eval(node ast.Node, env *object.Environment, fr *object.Frame) object.Object {
	switch n := node.(type) {
	// statements
	case *ast.BlockStmt:
		return e.evalBlock(n, env, fr)
	case *ast.ExprStmt:
		return e.Eval(n.X, env, fr)
	case *ast.ReturnStmt:
		return e.evalReturn(n, env, fr)
	case *ast.AssignStmt:
		return e.evalAssign(n, env, fr)
	case *ast.IncDecStmt:
		return e.evalIncDec(n, env, fr)
	case *ast.IfStmt:
		return e.evalIf(n, env, fr)
	case *ast.ForStmt:
		return e.evalFor(n, env, fr)
	case *ast.BranchStmt:
		switch n.Tok {
		case token.BREAK:
			return object.BREAK
		case token.CONTINUE:
			return object.CONTINUE
		}
		return e.newError(n.Pos(), "unsupported branch statement: %s", n.Tok)
	case *ast.DeclStmt:
		gd, ok := n.Decl.(*ast.GenDecl)
		if !ok || (gd.Tok != token.VAR && gd.Tok != token.CONST) {
			return e.newError(n.Pos(), "unsupported declaration statement")
		}
		return e.evalValueDecl(gd, env)

	// expressions
	case *ast.Ident:
		return e.evalIdent(n, env)
	case *ast.BasicLit:
		return e.evalBasicLit(n)
	case *ast.ParenExpr:
		return e.Eval(n.X, env, fr)
	case *ast.UnaryExpr:
		return e.evalUnary(n, env, fr)
	case *ast.BinaryExpr:
		return e.evalBinary(n, env, fr)
	case *ast.CallExpr:
		return e.evalCall(n, env, fr)
	case *ast.SelectorExpr:
		return e.evalSelector(n, env, fr)
	case *ast.IndexExpr:
		return e.evalIndex(n, env, fr)
	case *ast.CompositeLit:
		return e.evalCompositeLit(n, env, fr)
	case *ast.FuncLit:
		return &object.Function{
			Parameters: n.Type.Params,
			Body:       n.Body,
			Env:        env,
			File:       e.fileOf(n.Pos()),
			Pos:        n.Pos(),
		}
	}
	return e.newError(node.Pos(), "unsupported syntax: %T", node)
}

func (e *Evaluator) evalBlock(block *ast.BlockStmt, env *object.Environment, fr *object.Frame) object.Object {
	enclosed := object.NewEnclosedEnvironment(env)
	if fr != nil {
		prev := fr.Env()
		fr.SetEnv(enclosed)
		defer fr.SetEnv(prev)
	}
	return e.evalStmtList(block.List, enclosed, fr)
}

func (e *Evaluator) evalStmtList(stmts []ast.Stmt, env *object.Environment, fr *object.Frame) object.Object {
	var result object.Object = object.NIL
	for _, stmt := range stmts {
		if fr != nil {
			fr.Line = e.line(stmt.Pos())
			if errObj := e.fireLine(fr); errObj != nil {
				return errObj
			}
		}
		result = e.Eval(stmt, env, fr)
		if result != nil {
			switch result.Type() {
			case object.RETURN_VALUE_OBJ, object.BREAK_OBJ, object.CONTINUE_OBJ,
				object.ERROR_OBJ, object.PANIC_OBJ:
				return result
			}
		}
	}
	return result
}

// EvalStmts evaluates statements directly in env without opening a block
// scope, so that := definitions land in env itself. Used for statement
// actions executed against a captured binding environment.
func (e *Evaluator) EvalStmts(stmts []ast.Stmt, env *object.Environment) object.Object {
	return e.evalStmtList(stmts, env, nil)
}

func (e *Evaluator) evalReturn(n *ast.ReturnStmt, env *object.Environment, fr *object.Frame) object.Object {
	switch len(n.Results) {
	case 0:
		return &object.ReturnValue{Value: object.NIL}
	case 1:
		val := e.Eval(n.Results[0], env, fr)
		if isControl(val) {
			return val
		}
		return &object.ReturnValue{Value: val}
	}
	return e.newError(n.Pos(), "multiple return values are not supported")
}

func (e *Evaluator) evalAssign(n *ast.AssignStmt, env *object.Environment, fr *object.Frame) object.Object {
	if n.Tok == token.DEFINE || n.Tok == token.ASSIGN {
		if len(n.Lhs) != len(n.Rhs) {
			return e.newError(n.Pos(), "assignment mismatch: %d variables but %d values", len(n.Lhs), len(n.Rhs))
		}
		vals := make([]object.Object, len(n.Rhs))
		for i, rhs := range n.Rhs {
			v := e.Eval(rhs, env, fr)
			if isControl(v) {
				return v
			}
			vals[i] = v
		}
		for i, lhs := range n.Lhs {
			if result := e.assignTo(lhs, vals[i], n.Tok == token.DEFINE, env, fr); isError(result) {
				return result
			}
		}
		return object.NIL
	}

	// op-assign: x += v and friends
	if len(n.Lhs) != 1 || len(n.Rhs) != 1 {
		return e.newError(n.Pos(), "invalid compound assignment")
	}
	op, ok := assignOp(n.Tok)
	if !ok {
		return e.newError(n.Pos(), "unsupported assignment operator: %s", n.Tok)
	}
	cur := e.Eval(n.Lhs[0], env, fr)
	if isControl(cur) {
		return cur
	}
	rhs := e.Eval(n.Rhs[0], env, fr)
	if isControl(rhs) {
		return rhs
	}
	val := e.evalInfix(n.Pos(), op, cur, rhs)
	if isError(val) {
		return val
	}
	return e.assignTo(n.Lhs[0], val, false, env, fr)
}

func assignOp(tok token.Token) (token.Token, bool) {
	switch tok {
	case token.ADD_ASSIGN:
		return token.ADD, true
	case token.SUB_ASSIGN:
		return token.SUB, true
	case token.MUL_ASSIGN:
		return token.MUL, true
	case token.QUO_ASSIGN:
		return token.QUO, true
	case token.REM_ASSIGN:
		return token.REM, true
	}
	return tok, false
}

func (e *Evaluator) assignTo(lhs ast.Expr, val object.Object, define bool, env *object.Environment, fr *object.Frame) object.Object {
	switch target := lhs.(type) {
	case *ast.Ident:
		if target.Name == "_" {
			return object.NIL
		}
		if define {
			env.Set(target.Name, val)
			return object.NIL
		}
		if !env.Assign(target.Name, val) {
			return e.newError(target.Pos(), "identifier not found: %s", target.Name)
		}
		return object.NIL
	case *ast.SelectorExpr:
		x := e.Eval(target.X, env, fr)
		if isControl(x) {
			return x
		}
		inst, ok := x.(*object.StructInstance)
		if !ok {
			return e.newError(target.Pos(), "cannot assign to field of %s", x.Type())
		}
		inst.Fields[target.Sel.Name] = val
		return object.NIL
	case *ast.IndexExpr:
		x := e.Eval(target.X, env, fr)
		if isControl(x) {
			return x
		}
		arr, ok := x.(*object.Array)
		if !ok {
			return e.newError(target.Pos(), "cannot index-assign into %s", x.Type())
		}
		idx := e.Eval(target.Index, env, fr)
		if isControl(idx) {
			return idx
		}
		i, ok := idx.(*object.Integer)
		if !ok {
			return e.newError(target.Pos(), "array index must be an integer, got %s", idx.Type())
		}
		if i.Value < 0 || i.Value >= int64(len(arr.Elements)) {
			return e.newError(target.Pos(), "index out of range: %d", i.Value)
		}
		arr.Elements[i.Value] = val
		return object.NIL
	}
	return e.newError(lhs.Pos(), "invalid assignment target: %T", lhs)
}

func (e *Evaluator) evalIncDec(n *ast.IncDecStmt, env *object.Environment, fr *object.Frame) object.Object {
	cur := e.Eval(n.X, env, fr)
	if isControl(cur) {
		return cur
	}
	op := token.ADD
	if n.Tok == token.DEC {
		op = token.SUB
	}
	val := e.evalInfix(n.Pos(), op, cur, &object.Integer{Value: 1})
	if isError(val) {
		return val
	}
	return e.assignTo(n.X, val, false, env, fr)
}

func (e *Evaluator) evalIf(n *ast.IfStmt, env *object.Environment, fr *object.Frame) object.Object {
	ifEnv := env
	if n.Init != nil {
		ifEnv = object.NewEnclosedEnvironment(env)
		if result := e.Eval(n.Init, ifEnv, fr); isControl(result) {
			return result
		}
	}
	cond := e.Eval(n.Cond, ifEnv, fr)
	if isControl(cond) {
		return cond
	}
	if isTruthy(cond) {
		return e.evalBlock(n.Body, ifEnv, fr)
	}
	if n.Else != nil {
		return e.Eval(n.Else, ifEnv, fr)
	}
	return object.NIL
}

func (e *Evaluator) evalFor(fs *ast.ForStmt, env *object.Environment, fr *object.Frame) object.Object {
	loopEnv := object.NewEnclosedEnvironment(env)
	if fs.Init != nil {
		if result := e.Eval(fs.Init, loopEnv, fr); isControl(result) {
			return result
		}
	}
	for {
		if fs.Cond != nil {
			cond := e.Eval(fs.Cond, loopEnv, fr)
			if isControl(cond) {
				return cond
			}
			if !isTruthy(cond) {
				break
			}
		}
		result := e.evalBlock(fs.Body, loopEnv, fr)
		if result != nil {
			switch result.Type() {
			case object.BREAK_OBJ:
				return object.NIL
			case object.RETURN_VALUE_OBJ, object.ERROR_OBJ, object.PANIC_OBJ:
				return result
			}
		}
		if fs.Post != nil {
			if result := e.Eval(fs.Post, loopEnv, fr); isControl(result) {
				return result
			}
		}
	}
	return object.NIL
}

func (e *Evaluator) evalIdent(n *ast.Ident, env *object.Environment) object.Object {
	if obj, ok := env.Get(n.Name); ok {
		return obj
	}
	return e.newError(n.Pos(), "identifier not found: %s", n.Name)
}

func (e *Evaluator) evalBasicLit(n *ast.BasicLit) object.Object {
	switch n.Kind {
	case token.INT:
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return e.newError(n.Pos(), "invalid integer literal: %s", n.Value)
		}
		return &object.Integer{Value: v}
	case token.FLOAT:
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return e.newError(n.Pos(), "invalid float literal: %s", n.Value)
		}
		return &object.Float{Value: v}
	case token.STRING:
		v, err := strconv.Unquote(n.Value)
		if err != nil {
			return e.newError(n.Pos(), "invalid string literal: %s", n.Value)
		}
		return &object.String{Value: v}
	}
	return e.newError(n.Pos(), "unsupported literal kind: %s", n.Kind)
}

func (e *Evaluator) evalUnary(n *ast.UnaryExpr, env *object.Environment, fr *object.Frame) object.Object {
	operand := e.Eval(n.X, env, fr)
	if isControl(operand) {
		return operand
	}
	switch n.Op {
	case token.SUB:
		switch v := operand.(type) {
		case *object.Integer:
			return &object.Integer{Value: -v.Value}
		case *object.Float:
			return &object.Float{Value: -v.Value}
		}
		return e.newError(n.Pos(), "unknown operator: -%s", operand.Type())
	case token.NOT:
		return nativeBool(!isTruthy(operand))
	}
	return e.newError(n.Pos(), "unknown operator: %s%s", n.Op, operand.Type())
}

func (e *Evaluator) evalBinary(n *ast.BinaryExpr, env *object.Environment, fr *object.Frame) object.Object {
	// && and || evaluate the right side lazily.
	if n.Op == token.LAND || n.Op == token.LOR {
		left := e.Eval(n.X, env, fr)
		if isControl(left) {
			return left
		}
		if n.Op == token.LAND && !isTruthy(left) {
			return object.FALSE
		}
		if n.Op == token.LOR && isTruthy(left) {
			return object.TRUE
		}
		right := e.Eval(n.Y, env, fr)
		if isControl(right) {
			return right
		}
		return nativeBool(isTruthy(right))
	}

	left := e.Eval(n.X, env, fr)
	if isControl(left) {
		return left
	}
	right := e.Eval(n.Y, env, fr)
	if isControl(right) {
		return right
	}
	return e.evalInfix(n.Pos(), n.Op, left, right)
}

func (e *Evaluator) evalInfix(pos token.Pos, op token.Token, left, right object.Object) object.Object {
	switch {
	case left.Type() == object.INTEGER_OBJ && right.Type() == object.INTEGER_OBJ:
		return e.evalIntegerInfix(pos, op, left.(*object.Integer), right.(*object.Integer))
	case isNumeric(left) && isNumeric(right):
		return e.evalFloatInfix(pos, op, toFloat(left), toFloat(right))
	case left.Type() == object.STRING_OBJ && right.Type() == object.STRING_OBJ:
		return e.evalStringInfix(pos, op, left.(*object.String), right.(*object.String))
	case op == token.EQL:
		return nativeBool(left == right)
	case op == token.NEQ:
		return nativeBool(left != right)
	}
	return e.newError(pos, "type mismatch: %s %s %s", left.Type(), op, right.Type())
}

func (e *Evaluator) evalIntegerInfix(pos token.Pos, op token.Token, left, right *object.Integer) object.Object {
	switch op {
	case token.ADD:
		return &object.Integer{Value: left.Value + right.Value}
	case token.SUB:
		return &object.Integer{Value: left.Value - right.Value}
	case token.MUL:
		return &object.Integer{Value: left.Value * right.Value}
	case token.QUO:
		if right.Value == 0 {
			return e.newError(pos, "integer division by zero")
		}
		return &object.Integer{Value: left.Value / right.Value}
	case token.REM:
		if right.Value == 0 {
			return e.newError(pos, "integer division by zero")
		}
		return &object.Integer{Value: left.Value % right.Value}
	case token.EQL:
		return nativeBool(left.Value == right.Value)
	case token.NEQ:
		return nativeBool(left.Value != right.Value)
	case token.LSS:
		return nativeBool(left.Value < right.Value)
	case token.LEQ:
		return nativeBool(left.Value <= right.Value)
	case token.GTR:
		return nativeBool(left.Value > right.Value)
	case token.GEQ:
		return nativeBool(left.Value >= right.Value)
	}
	return e.newError(pos, "unknown operator: INTEGER %s INTEGER", op)
}

func (e *Evaluator) evalFloatInfix(pos token.Pos, op token.Token, left, right float64) object.Object {
	switch op {
	case token.ADD:
		return &object.Float{Value: left + right}
	case token.SUB:
		return &object.Float{Value: left - right}
	case token.MUL:
		return &object.Float{Value: left * right}
	case token.QUO:
		if right == 0 {
			return e.newError(pos, "float division by zero")
		}
		return &object.Float{Value: left / right}
	case token.EQL:
		return nativeBool(left == right)
	case token.NEQ:
		return nativeBool(left != right)
	case token.LSS:
		return nativeBool(left < right)
	case token.LEQ:
		return nativeBool(left <= right)
	case token.GTR:
		return nativeBool(left > right)
	case token.GEQ:
		return nativeBool(left >= right)
	}
	return e.newError(pos, "unknown operator: FLOAT %s FLOAT", op)
}

func (e *Evaluator) evalStringInfix(pos token.Pos, op token.Token, left, right *object.String) object.Object {
	switch op {
	case token.ADD:
		return &object.String{Value: left.Value + right.Value}
	case token.EQL:
		return nativeBool(left.Value == right.Value)
	case token.NEQ:
		return nativeBool(left.Value != right.Value)
	case token.LSS:
		return nativeBool(left.Value < right.Value)
	case token.LEQ:
		return nativeBool(left.Value <= right.Value)
	case token.GTR:
		return nativeBool(left.Value > right.Value)
	case token.GEQ:
		return nativeBool(left.Value >= right.Value)
	}
	return e.newError(pos, "unknown operator: STRING %s STRING", op)
}

func (e *Evaluator) evalSelector(n *ast.SelectorExpr, env *object.Environment, fr *object.Frame) object.Object {
	x := e.Eval(n.X, env, fr)
	if isControl(x) {
		return x
	}
	inst, ok := x.(*object.StructInstance)
	if !ok {
		return e.newError(n.Pos(), "undefined selector on %s: %s", x.Type(), n.Sel.Name)
	}
	if v, ok := inst.Fields[n.Sel.Name]; ok {
		return v
	}
	if m, ok := inst.Def.Methods[n.Sel.Name]; ok {
		return &object.BoundMethod{Fn: m, Receiver: inst}
	}
	return e.newError(n.Pos(), "%s has no field or method %s", inst.Def.Name, n.Sel.Name)
}

func (e *Evaluator) evalIndex(n *ast.IndexExpr, env *object.Environment, fr *object.Frame) object.Object {
	x := e.Eval(n.X, env, fr)
	if isControl(x) {
		return x
	}
	arr, ok := x.(*object.Array)
	if !ok {
		return e.newError(n.Pos(), "index operator not supported for %s", x.Type())
	}
	idx := e.Eval(n.Index, env, fr)
	if isControl(idx) {
		return idx
	}
	i, ok := idx.(*object.Integer)
	if !ok {
		return e.newError(n.Pos(), "array index must be an integer, got %s", idx.Type())
	}
	if i.Value < 0 || i.Value >= int64(len(arr.Elements)) {
		return e.newError(n.Pos(), "index out of range: %d", i.Value)
	}
	return arr.Elements[i.Value]
}

func (e *Evaluator) evalCompositeLit(n *ast.CompositeLit, env *object.Environment, fr *object.Frame) object.Object {
	switch t := n.Type.(type) {
	case *ast.Ident:
		obj, ok := env.Get(t.Name)
		if !ok {
			return e.newError(n.Pos(), "undefined type: %s", t.Name)
		}
		def, ok := obj.(*object.StructDefinition)
		if !ok {
			return e.newError(n.Pos(), "%s is not a struct type", t.Name)
		}
		inst := &object.StructInstance{Def: def, Fields: make(map[string]object.Object)}
		for i, elt := range n.Elts {
			if kv, ok := elt.(*ast.KeyValueExpr); ok {
				key, ok := kv.Key.(*ast.Ident)
				if !ok {
					return e.newError(kv.Pos(), "invalid struct literal key")
				}
				val := e.Eval(kv.Value, env, fr)
				if isControl(val) {
					return val
				}
				inst.Fields[key.Name] = val
				continue
			}
			if i >= len(def.FieldOrder) {
				return e.newError(elt.Pos(), "too many values in %s literal", def.Name)
			}
			val := e.Eval(elt, env, fr)
			if isControl(val) {
				return val
			}
			inst.Fields[def.FieldOrder[i]] = val
		}
		return inst
	case *ast.ArrayType:
		arr := &object.Array{Elements: make([]object.Object, 0, len(n.Elts))}
		for _, elt := range n.Elts {
			val := e.Eval(elt, env, fr)
			if isControl(val) {
				return val
			}
			arr.Elements = append(arr.Elements, val)
		}
		return arr
	}
	return e.newError(n.Pos(), "unsupported composite literal type: %T", n.Type)
}

// --- function application ---

func (e *Evaluator) evalCall(n *ast.CallExpr, env *object.Environment, fr *object.Frame) object.Object {
	fnObj := e.Eval(n.Fun, env, fr)
	if isControl(fnObj) {
		return fnObj
	}
	args := make([]object.Object, 0, len(n.Args))
	for _, a := range n.Args {
		v := e.Eval(a, env, fr)
		if isControl(v) {
			return v
		}
		args = append(args, v)
	}
	return e.applyFunction(n.Pos(), fnObj, args, fr)
}

// ApplyFunction invokes a callable object with the given arguments. caller
// is the frame of the calling context, or nil when invoked from Go.
func (e *Evaluator) ApplyFunction(fnObj object.Object, args []object.Object, caller *object.Frame) object.Object {
	return e.applyFunction(token.NoPos, fnObj, args, caller)
}

func (e *Evaluator) applyFunction(pos token.Pos, fnObj object.Object, args []object.Object, caller *object.Frame) object.Object {
	switch f := fnObj.(type) {
	case *object.Builtin:
		return f.Fn(args...)
	case *object.Function:
		return e.callFunction(pos, f, nil, args, caller)
	case *object.BoundMethod:
		return e.callFunction(pos, f.Fn, f.Receiver, args, caller)
	}
	return e.newError(pos, "not a function: %s", fnObj.Type())
}

func (e *Evaluator) callFunction(pos token.Pos, fn *object.Function, recv object.Object, args []object.Object, caller *object.Frame) object.Object {
	params := fn.ParamNames()
	if len(params) != len(args) {
		return e.newError(pos, "wrong number of arguments. got=%d, want=%d", len(args), len(params))
	}

	fnEnv := object.NewEnclosedEnvironment(fn.Env)
	if recv != nil {
		if name, ok := receiverName(fn); ok {
			fnEnv.Set(name, recv)
		}
	}
	for i, name := range params {
		fnEnv.Set(name, args[i])
	}

	fr := object.NewFrame(fn, fn.FuncName(), fn.File, e.line(fn.Pos), recv, fnEnv, e.globals, caller)
	if e.tracer != nil {
		lt, err := e.tracer.Trace(fr, object.EventCall, nil)
		if err != nil {
			return e.traceError(fr, err)
		}
		fr.LocalTracer = lt
	}

	// The body env stays active on the frame while the return or panic
	// event fires, so exit-time hooks observe the full local bindings.
	bodyEnv := object.NewEnclosedEnvironment(fnEnv)
	fr.SetEnv(bodyEnv)
	result := e.evalStmtList(fn.Body.List, bodyEnv, fr)

	switch r := result.(type) {
	case *object.Error:
		return r
	case *object.Panic:
		if errObj := e.fireLocal(fr, object.EventPanic, r.Value); errObj != nil {
			return errObj
		}
		return r
	case *object.ReturnValue:
		if errObj := e.fireLocal(fr, object.EventReturn, r.Value); errObj != nil {
			return errObj
		}
		return r.Value
	}
	if errObj := e.fireLocal(fr, object.EventReturn, object.NIL); errObj != nil {
		return errObj
	}
	return object.NIL
}

func receiverName(fn *object.Function) (string, bool) {
	if fn.Recv == nil || len(fn.Recv.List) == 0 || len(fn.Recv.List[0].Names) == 0 {
		return "", false
	}
	return fn.Recv.List[0].Names[0].Name, true
}

// --- trace event firing ---

func (e *Evaluator) fireLine(fr *object.Frame) object.Object {
	return e.fireLocal(fr, object.EventLine, nil)
}

func (e *Evaluator) fireLocal(fr *object.Frame, ev object.Event, arg object.Object) object.Object {
	if fr.LocalTracer == nil {
		return nil
	}
	lt, err := fr.LocalTracer.Trace(fr, ev, arg)
	if err != nil {
		return e.traceError(fr, err)
	}
	fr.LocalTracer = lt
	return nil
}

func (e *Evaluator) traceError(fr *object.Frame, err error) *object.Error {
	e.logger.Debug("trace hook failed", "func", fr.Name, "file", fr.File, "line", fr.Line, "err", err)
	return &object.Error{
		Message: fmt.Sprintf("trace hook failed at %s:%d", fr.File, fr.Line),
		Err:     err,
	}
}

// --- helpers ---

func (e *Evaluator) newError(pos token.Pos, format string, args ...any) *object.Error {
	msg := fmt.Sprintf(format, args...)
	if pos.IsValid() && e.fset != nil {
		position := e.fset.Position(pos)
		msg = fmt.Sprintf("%s: %s", position, msg)
	}
	return &object.Error{Pos: pos, Message: msg}
}

func (e *Evaluator) line(pos token.Pos) int {
	if e.fset == nil || !pos.IsValid() {
		return 0
	}
	return e.fset.Position(pos).Line
}

func (e *Evaluator) fileOf(pos token.Pos) string {
	if e.fset == nil || !pos.IsValid() {
		return ""
	}
	return e.fset.Position(pos).Filename
}

func isError(obj object.Object) bool {
	return obj != nil && obj.Type() == object.ERROR_OBJ
}

// isControl reports whether obj should interrupt the surrounding expression
// evaluation (errors and panics unwinding through subexpressions).
func isControl(obj object.Object) bool {
	if obj == nil {
		return false
	}
	switch obj.Type() {
	case object.ERROR_OBJ, object.PANIC_OBJ, object.RETURN_VALUE_OBJ:
		return true
	}
	return false
}

func isTruthy(obj object.Object) bool {
	switch v := obj.(type) {
	case *object.Boolean:
		return v.Value
	case *object.Nil:
		return false
	}
	return obj != nil
}

func nativeBool(v bool) *object.Boolean {
	if v {
		return object.TRUE
	}
	return object.FALSE
}

func isNumeric(obj object.Object) bool {
	t := obj.Type()
	return t == object.INTEGER_OBJ || t == object.FLOAT_OBJ
}

func toFloat(obj object.Object) float64 {
	switch v := obj.(type) {
	case *object.Integer:
		return float64(v.Value)
	case *object.Float:
		return v.Value
	}
	return 0
}
