package goprobe

import (
	"github.com/podhmo/go-probe/script"
	"github.com/podhmo/go-probe/script/object"
)

// Debugger is the target of a handoff: a tracer that takes over the
// interpreter's hook and the local tracers of the paused frame chain until
// it reports itself detached.
type Debugger interface {
	object.Tracer

	// Detached reports whether the debugger is done. It is checked after
	// every Trace call; once true, the hooks saved at handoff are restored.
	Detached() bool
}

// DebuggerFactory builds a debugger for the frame a breakpoint paused at.
// Returning nil skips the handoff for that firing.
type DebuggerFactory func(interp *script.Interpreter, fr *object.Frame) Debugger

// savedTracer remembers one frame's local tracer at handoff time.
type savedTracer struct {
	fr     *object.Frame
	tracer object.Tracer
}

// hookState is everything a handoff displaces: the global tracer and the
// local tracer of the paused frame and each of its ancestors.
type hookState struct {
	global object.Tracer
	frames []savedTracer
}

func captureHookState(interp *script.Interpreter, fr *object.Frame) *hookState {
	st := &hookState{global: interp.Tracer()}
	for f := fr; f != nil; f = f.Caller {
		st.frames = append(st.frames, savedTracer{fr: f, tracer: f.LocalTracer})
	}
	return st
}

// handoffTracer wraps a Debugger so that detachment (or a debugger error)
// puts every displaced hook back.
type handoffTracer struct {
	interp *script.Interpreter
	dbg    Debugger
	saved  *hookState
	done   bool
}

func (h *handoffTracer) Trace(fr *object.Frame, ev Event, arg object.Object) (object.Tracer, error) {
	if h.done {
		return nil, nil
	}
	lt, err := h.dbg.Trace(fr, ev, arg)
	if err != nil {
		h.restore()
		return nil, err
	}
	if h.dbg.Detached() {
		h.restore()
		restored := fr.LocalTracer
		if restored == object.Tracer(h) {
			// Frame entered during the debugging session; nothing to put
			// back for it.
			restored = nil
		}
		return restored, nil
	}
	if lt == nil {
		return nil, nil
	}
	return h, nil
}

// restore reinstates the saved hooks, innermost frame last, then the global
// tracer.
func (h *handoffTracer) restore() {
	if h.done {
		return
	}
	h.done = true
	for i := len(h.saved.frames) - 1; i >= 0; i-- {
		s := h.saved.frames[i]
		s.fr.LocalTracer = s.tracer
	}
	h.interp.SetTracer(h.saved.global)
}

// Debug schedules a handoff: on every firing the factory builds a debugger
// which takes over tracing at the paused frame. The hooks it displaces are
// saved first and restored when it detaches, so the probe resumes intact.
func (bp *Breakpoint) Debug(factory DebuggerFactory) {
	bp.actions = append(bp.actions, func(fr *object.Frame, ev Event) error {
		p := bp.probe
		saved := captureHookState(p.interp, fr)

		p.suspend()
		dbg := factory(p.interp, fr)
		p.resume()
		if dbg == nil {
			return nil
		}

		h := &handoffTracer{interp: p.interp, dbg: dbg, saved: saved}
		for f := fr; f != nil; f = f.Caller {
			f.LocalTracer = h
		}
		p.interp.SetTracer(h)

		// Give the debugger the event that tripped the breakpoint. Its
		// verdict replaces whatever the probe would return for it. Entry
		// and line events carry no argument.
		lt, err := h.Trace(fr, ev, nil)
		if err != nil {
			return err
		}
		p.pendingLocal = lt
		return nil
	})
}
