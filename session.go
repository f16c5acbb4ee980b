package goprobe

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/podhmo/go-probe/script"
	"github.com/podhmo/go-probe/script/object"
)

// Event re-exports the interpreter's trace event type for callers of this
// package.
type Event = object.Event

const (
	EventCall   = object.EventCall
	EventLine   = object.EventLine
	EventReturn = object.EventReturn
	EventPanic  = object.EventPanic
)

// TraceFunc is a callback fired for subscribed events on matching frames.
// A non-nil error aborts the script evaluation and surfaces from the
// interpreter call that triggered it.
type TraceFunc func(fr *object.Frame, ev Event, arg object.Object) error

// Handle identifies a registered callback.
type Handle struct {
	id uint64
}

type callbackEntry struct {
	handle   Handle
	scope    *Scope
	events   map[Event]bool
	callback TraceFunc
	// removed entries are skipped by dispatches already in flight and
	// dropped from the registry afterwards.
	removed bool
}

// wantsLocal reports whether the entry subscribes to anything beyond frame
// entry, which forces per-frame local tracing for matching frames.
func (e *callbackEntry) wantsLocal() bool {
	for ev := range e.events {
		if ev != EventCall {
			return true
		}
	}
	return false
}

// Probe owns an interpreter's trace hook while started and dispatches
// events to registered callbacks in registration order. A Probe serves one
// interpreter; concurrent interpreters each get their own.
type Probe struct {
	interp *script.Interpreter
	logger *slog.Logger

	started    bool
	origTracer object.Tracer

	entries  []*callbackEntry
	byHandle map[Handle]*callbackEntry
	nextID   uint64

	// suspended silences dispatch while the probe itself runs script code
	// or hands frames over to a debugger.
	suspended int

	// pendingLocal, when set by a handoff action during dispatch, overrides
	// the tracer returned for the current event.
	pendingLocal object.Tracer
}

type ProbeOption func(*Probe)

// WithLogger sets the logger used for session diagnostics.
func WithLogger(logger *slog.Logger) ProbeOption {
	return func(p *Probe) { p.logger = logger }
}

// New builds a Probe for interp. The probe is idle until Start (or one of
// the capture/breakpoint helpers, which start it on demand).
func New(interp *script.Interpreter, opts ...ProbeOption) (*Probe, error) {
	if interp == nil {
		return nil, fmt.Errorf("%w: interpreter is nil", ErrConfiguration)
	}
	p := &Probe{
		interp:   interp,
		byHandle: make(map[Handle]*callbackEntry),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Interpreter returns the interpreter this probe instruments.
func (p *Probe) Interpreter() *script.Interpreter { return p.interp }

// Start takes ownership of the interpreter's trace hook, remembering the
// previous tracer for Stop.
func (p *Probe) Start() error {
	if p.started {
		return fmt.Errorf("%w: already started", ErrSessionState)
	}
	p.origTracer = p.interp.Tracer()
	p.interp.SetTracer(p)
	p.started = true
	return nil
}

// Stop restores the tracer that was installed before Start. If somebody
// else replaced the hook in the meantime, their tracer is left in place and
// a warning is logged.
func (p *Probe) Stop() error {
	if !p.started {
		return fmt.Errorf("%w: not started", ErrSessionState)
	}
	if p.interp.Tracer() == object.Tracer(p) {
		p.interp.SetTracer(p.origTracer)
	} else {
		p.logger.Warn("trace hook was replaced while probing; leaving it in place")
	}
	p.origTracer = nil
	p.started = false
	return nil
}

// Started reports whether the probe currently owns the trace hook.
func (p *Probe) Started() bool { return p.started }

// ensureStarted starts the probe if needed and returns a release func that
// undoes exactly what ensureStarted did: a no-op when the probe was already
// running, a Stop otherwise.
func (p *Probe) ensureStarted() (func(), error) {
	if p.started {
		if p.interp.Tracer() != object.Tracer(p) {
			return nil, fmt.Errorf("%w: trace hook was replaced while probing; callbacks cannot fire", ErrSessionState)
		}
		return func() {}, nil
	}
	if err := p.Start(); err != nil {
		return nil, err
	}
	return func() {
		if p.started {
			if err := p.Stop(); err != nil {
				p.logger.Warn("stop failed", "err", err)
			}
		}
	}, nil
}

// AddCallback registers cb for the given events on frames matching scope.
// Callbacks fire in registration order.
func (p *Probe) AddCallback(scope *Scope, events []Event, cb TraceFunc) (Handle, error) {
	if scope == nil {
		return Handle{}, fmt.Errorf("%w: scope is nil", ErrConfiguration)
	}
	if cb == nil {
		return Handle{}, fmt.Errorf("%w: callback is nil", ErrConfiguration)
	}
	if len(events) == 0 {
		return Handle{}, fmt.Errorf("%w: no events subscribed", ErrConfiguration)
	}
	evSet := make(map[Event]bool, len(events))
	for _, ev := range events {
		switch ev {
		case EventCall, EventLine, EventReturn, EventPanic:
			evSet[ev] = true
		default:
			return Handle{}, fmt.Errorf("%w: unknown event %d", ErrConfiguration, int(ev))
		}
	}
	p.nextID++
	entry := &callbackEntry{
		handle:   Handle{id: p.nextID},
		scope:    scope,
		events:   evSet,
		callback: cb,
	}
	p.entries = append(p.entries, entry)
	p.byHandle[entry.handle] = entry
	return entry.handle, nil
}

// RemoveCallback unregisters a callback. A dispatch already underway skips
// it from the next event on.
func (p *Probe) RemoveCallback(h Handle) error {
	entry, ok := p.byHandle[h]
	if !ok {
		return fmt.Errorf("%w: unknown callback handle", ErrConfiguration)
	}
	entry.removed = true
	delete(p.byHandle, h)
	// rebuild into a fresh slice; a dispatch iterating the old one keeps
	// its snapshot intact and skips the entry via the removed flag
	kept := make([]*callbackEntry, 0, len(p.entries)-1)
	for _, e := range p.entries {
		if !e.removed {
			kept = append(kept, e)
		}
	}
	p.entries = kept
	return nil
}

func (p *Probe) suspend() { p.suspended++ }
func (p *Probe) resume()  { p.suspended-- }

// Trace implements object.Tracer. For frame entry it is invoked through the
// interpreter's global slot; for line, return, and panic events through the
// frame's local tracer, which it returned at entry.
func (p *Probe) Trace(fr *object.Frame, ev Event, arg object.Object) (object.Tracer, error) {
	if !p.started {
		return nil, nil
	}
	if p.suspended > 0 {
		// While the probe runs its own script code, don't trace new frames
		// but keep local tracing already established.
		if ev == EventCall {
			return nil, nil
		}
		return p, nil
	}
	if strings.HasPrefix(fr.File, "<goprobe") {
		return nil, nil
	}

	traceLocally := false
	entries := p.entries
	for _, entry := range entries {
		if entry.removed {
			continue
		}
		if !entry.scope.Match(fr) {
			continue
		}
		if entry.wantsLocal() {
			traceLocally = true
		}
		if entry.events[ev] {
			if err := entry.callback(fr, ev, arg); err != nil {
				return nil, err
			}
		}
	}

	if p.pendingLocal != nil {
		// A handoff action installed a debugger for this frame; it takes
		// over local tracing from here.
		lt := p.pendingLocal
		p.pendingLocal = nil
		return lt, nil
	}
	if ev == EventCall && !traceLocally {
		return nil, nil
	}
	return p, nil
}
