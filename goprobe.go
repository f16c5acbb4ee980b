// Package goprobe instruments script interpreters non-interactively: it
// owns an interpreter's trace hook and turns trace events into call
// captures, breakpoints with scheduled actions, and handoffs to an
// interactive debugger.
//
// The usual entry points are CaptureCall, CaptureCalls, and SetBreakpoint,
// either on a Probe built with New or through the package-level helpers,
// which keep one default probe per interpreter:
//
//	capture, err := goprobe.CaptureCall(interp, goprobe.WithFunctionName("f"))
//	if err != nil { ... }
//	defer capture.Close()
//	result, err := interp.Call(ctx, "main")
package goprobe

import (
	"sync"

	"github.com/podhmo/go-probe/script"
)

var (
	defaultMu     sync.Mutex
	defaultProbes = map[*script.Interpreter]*Probe{}
)

// Default returns the package-level probe for interp, creating it on first
// use. Each interpreter gets exactly one.
func Default(interp *script.Interpreter) *Probe {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if p, ok := defaultProbes[interp]; ok {
		return p
	}
	p, err := New(interp)
	if err != nil {
		// New only fails on a nil interpreter.
		panic(err)
	}
	defaultProbes[interp] = p
	return p
}

// CaptureCall records the latest matching call using the default probe for
// interp.
func CaptureCall(interp *script.Interpreter, opts ...ScopeOption) (*CallCapture, error) {
	return Default(interp).CaptureCall(opts...)
}

// CaptureCalls records every matching call using the default probe for
// interp.
func CaptureCalls(interp *script.Interpreter, opts ...ScopeOption) (*CallListCapture, error) {
	return Default(interp).CaptureCalls(opts...)
}

// SetBreakpoint installs a breakpoint using the default probe for interp.
func SetBreakpoint(interp *script.Interpreter, scope *Scope, opts ...BreakpointOption) (*Breakpoint, error) {
	return Default(interp).SetBreakpoint(scope, opts...)
}
