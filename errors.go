package goprobe

import "errors"

var (
	// ErrConfiguration reports an invalid scope, callback, or breakpoint
	// setup, detected at registration time before anything runs.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrSessionState reports a lifecycle misuse, such as starting an
	// already started probe or stopping one that never started.
	ErrSessionState = errors.New("invalid session state")

	// ErrVariableConflict reports that a statement action would define a
	// variable that already exists in the paused frame. The check runs
	// before any mutation, so the frame is left untouched.
	ErrVariableConflict = errors.New("variable already defined in frame")
)
