package goprobe

import (
	"fmt"
	"strings"

	"github.com/podhmo/go-probe/script/object"
)

// Breakpoint pauses matching frames at a position and runs its scheduled
// actions there. Actions persist: they run again on every firing until the
// breakpoint is closed.
type Breakpoint struct {
	probe    *Probe
	scope    *Scope
	line     int    // 0 when unset
	lineText string // matched against the stripped source line
	cond     string

	actions []breakpointAction

	handle  Handle
	release func()
}

type breakpointAction func(fr *object.Frame, ev Event) error

type breakpointConfig struct {
	line     int
	lineText string
	cond     string
}

type BreakpointOption func(*breakpointConfig)

// WithLine places the breakpoint on a 1-based line number.
func WithLine(line int) BreakpointOption {
	return func(cfg *breakpointConfig) { cfg.line = line }
}

// WithLineText places the breakpoint on the first line whose source equals
// text, compared with surrounding whitespace stripped.
func WithLineText(text string) BreakpointOption {
	return func(cfg *breakpointConfig) { cfg.lineText = text }
}

// WithCondition guards the breakpoint: actions run only when expr evaluates
// truthy in the paused frame.
func WithCondition(expr string) BreakpointOption {
	return func(cfg *breakpointConfig) { cfg.cond = expr }
}

// SetBreakpoint installs a breakpoint in scope. Without a line selector the
// breakpoint fires at function entry, which requires the scope to pin a
// function. The probe is started on demand and stopped again when the
// breakpoint is closed.
func (p *Probe) SetBreakpoint(scope *Scope, opts ...BreakpointOption) (*Breakpoint, error) {
	if scope == nil {
		return nil, fmt.Errorf("%w: scope is nil", ErrConfiguration)
	}
	var cfg breakpointConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.line != 0 && cfg.lineText != "" {
		return nil, fmt.Errorf("%w: line and line text are mutually exclusive", ErrConfiguration)
	}
	if cfg.line < 0 {
		return nil, fmt.Errorf("%w: invalid line %d", ErrConfiguration, cfg.line)
	}
	if cfg.line == 0 && cfg.lineText == "" && !scope.hasFunction() {
		return nil, fmt.Errorf("%w: breakpoint without a line needs a function scope", ErrConfiguration)
	}

	release, err := p.ensureStarted()
	if err != nil {
		return nil, err
	}
	bp := &Breakpoint{
		probe:    p,
		scope:    scope,
		line:     cfg.line,
		lineText: cfg.lineText,
		cond:     cfg.cond,
		release:  release,
	}
	h, err := p.AddCallback(scope, []Event{EventCall, EventLine}, bp.trace)
	if err != nil {
		release()
		return nil, err
	}
	bp.handle = h
	return bp, nil
}

// Close removes the breakpoint and stops the probe if the breakpoint
// started it.
func (bp *Breakpoint) Close() {
	if err := bp.probe.RemoveCallback(bp.handle); err != nil {
		bp.probe.logger.Warn("remove breakpoint callback", "err", err)
	}
	bp.release()
}

func (bp *Breakpoint) trace(fr *object.Frame, ev Event, arg object.Object) error {
	if !bp.matchesHere(fr, ev) {
		return nil
	}
	if bp.cond != "" {
		ok, err := bp.evalCondition(fr)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	for _, act := range bp.actions {
		if err := act(fr, ev); err != nil {
			return err
		}
	}
	return nil
}

func (bp *Breakpoint) matchesHere(fr *object.Frame, ev Event) bool {
	switch {
	case bp.line != 0:
		return ev == EventLine && fr.Line == bp.line
	case bp.lineText != "":
		if ev != EventLine {
			return false
		}
		src, ok := bp.probe.interp.SourceLine(fr.File, fr.Line)
		if !ok {
			return false
		}
		return strings.TrimSpace(src) == strings.TrimSpace(bp.lineText)
	}
	return ev == EventCall
}

func (bp *Breakpoint) evalCondition(fr *object.Frame) (bool, error) {
	bp.probe.suspend()
	defer bp.probe.resume()
	val, err := bp.probe.interp.EvalExprInFrame(bp.cond, fr, nil)
	if err != nil {
		return false, fmt.Errorf("breakpoint condition %q: %w", bp.cond, err)
	}
	return isTruthy(val), nil
}

// Results collects the values produced by an Eval action, one per firing.
type Results struct {
	Values []object.Object
}

// Last returns the value of the most recent firing, or nil before the first.
func (r *Results) Last() object.Object {
	if len(r.Values) == 0 {
		return nil
	}
	return r.Values[len(r.Values)-1]
}

// Eval schedules expr to be evaluated in the paused frame on every firing.
// The returned Results fills in as firings happen.
func (bp *Breakpoint) Eval(expr string) *Results {
	return bp.EvalWith(expr, nil)
}

// EvalWith is Eval with extra bindings visible to the expression.
func (bp *Breakpoint) EvalWith(expr string, extra map[string]object.Object) *Results {
	res := &Results{}
	bp.actions = append(bp.actions, func(fr *object.Frame, _ Event) error {
		bp.probe.suspend()
		defer bp.probe.resume()
		val, err := bp.probe.interp.EvalExprInFrame(expr, fr, extra)
		if err != nil {
			return err
		}
		res.Values = append(res.Values, val)
		return nil
	})
	return res
}

// Exec schedules a statement list to run in the paused frame on every
// firing. Variables the statements assign or define are written back into
// the frame afterwards.
func (bp *Breakpoint) Exec(src string) {
	bp.ExecWith(src, nil)
}

// ExecWith is Exec with extra bindings visible to the statements. Extra
// names must not collide with existing frame bindings; a collision fails
// the firing before anything is mutated, and extras are never written back.
func (bp *Breakpoint) ExecWith(src string, extra map[string]object.Object) {
	bp.actions = append(bp.actions, func(fr *object.Frame, _ Event) error {
		bp.probe.suspend()
		defer bp.probe.resume()

		locals := fr.Locals()
		for name := range extra {
			if _, exists := locals[name]; exists {
				return fmt.Errorf("%w: %s", ErrVariableConflict, name)
			}
		}

		work := object.NewEnclosedEnvironment(fr.GlobalEnv())
		for name, val := range locals {
			work.Set(name, val)
		}
		for name, val := range extra {
			work.Set(name, val)
		}
		if err := bp.probe.interp.ExecStmts(src, work); err != nil {
			return err
		}
		for name, val := range work.GetAll() {
			if _, isExtra := extra[name]; isExtra {
				continue
			}
			fr.SetLocal(name, val)
		}
		return nil
	})
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
