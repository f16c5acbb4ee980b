package goprobe

import (
	"github.com/podhmo/go-probe/script/object"
)

// Binding is a named value extracted from a frame.
type Binding struct {
	Name  string
	Value object.Object
}

// CallInfo records one call of a captured function: its arguments at entry
// and its bindings and result at exit. ReturnValue is nil when the call
// unwound with a panic instead of returning.
type CallInfo struct {
	Name  string
	File  string
	Stack []object.StackEntry

	Args    []Binding
	Locals  map[string]object.Object
	Globals map[string]object.Object

	ReturnValue object.Object
	Panic       object.Object
}

// callCapture is the state machine behind CaptureCall and CaptureCalls.
// Capture state is keyed by frame identity, so overlapping calls of the
// same function (recursion included) each get their own record.
type callCapture struct {
	pending map[*object.Frame]*CallInfo
	publish func(*CallInfo)
}

func (c *callCapture) trace(fr *object.Frame, ev Event, arg object.Object) error {
	switch ev {
	case EventCall:
		info := &CallInfo{
			Name:  fr.Name,
			File:  fr.File,
			Stack: fr.StackSummary(),
		}
		for _, a := range fr.Args() {
			info.Args = append(info.Args, Binding{Name: a.Name, Value: a.Value})
		}
		c.pending[fr] = info
	case EventReturn, EventPanic:
		info, ok := c.pending[fr]
		if !ok {
			// Frame entered before the capture was registered.
			return nil
		}
		delete(c.pending, fr)
		info.Locals = fr.Locals()
		info.Globals = fr.Globals()
		if ev == EventReturn {
			info.ReturnValue = arg
		} else {
			info.Panic = arg
		}
		c.publish(info)
	}
	return nil
}

// CallCapture holds the most recent completed call of the captured scope.
// Close detaches the capture and stops the probe if the capture started it.
type CallCapture struct {
	CallInfo
	close func()
}

func (c *CallCapture) Close() { c.close() }

// CallListCapture accumulates every completed call of the captured scope in
// completion order.
type CallListCapture struct {
	Calls []*CallInfo
	close func()
}

func (c *CallListCapture) Close() { c.close() }

// CaptureCall starts recording calls matching the given scope selectors,
// keeping the latest completed call. The probe is started on demand and
// stopped again when the capture is closed.
func (p *Probe) CaptureCall(opts ...ScopeOption) (*CallCapture, error) {
	capture := &CallCapture{}
	closeFn, err := p.attachCapture(opts, func(info *CallInfo) {
		capture.CallInfo = *info
	})
	if err != nil {
		return nil, err
	}
	capture.close = closeFn
	return capture, nil
}

// CaptureCalls is like CaptureCall but keeps every completed call.
func (p *Probe) CaptureCalls(opts ...ScopeOption) (*CallListCapture, error) {
	capture := &CallListCapture{}
	closeFn, err := p.attachCapture(opts, func(info *CallInfo) {
		capture.Calls = append(capture.Calls, info)
	})
	if err != nil {
		return nil, err
	}
	capture.close = closeFn
	return capture, nil
}

func (p *Probe) attachCapture(opts []ScopeOption, publish func(*CallInfo)) (func(), error) {
	scope, err := NewScope(opts...)
	if err != nil {
		return nil, err
	}
	release, err := p.ensureStarted()
	if err != nil {
		return nil, err
	}
	cc := &callCapture{
		pending: make(map[*object.Frame]*CallInfo),
		publish: publish,
	}
	h, err := p.AddCallback(scope, []Event{EventCall, EventReturn, EventPanic}, cc.trace)
	if err != nil {
		release()
		return nil, err
	}
	return func() {
		if err := p.RemoveCallback(h); err != nil {
			p.logger.Warn("remove capture callback", "err", err)
		}
		release()
	}, nil
}
