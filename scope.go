package goprobe

import (
	"fmt"
	"path/filepath"

	"github.com/podhmo/go-probe/script"
	"github.com/podhmo/go-probe/script/object"
)

// Scope decides which frames an instrumentation target covers. Selectors
// combine with AND; at least one must be given.
type Scope struct {
	fn       *object.Function
	recv     object.Object // pinned receiver when built from a bound method
	fnName   string
	module   *script.File
	fileGlob string
	filePath string
	unwrap   bool
}

type scopeConfig struct {
	fn       object.Object
	fnName   string
	module   *script.File
	fileGlob string
	filePath string
	parent   bool
	unwrap   bool
}

type ScopeOption func(*scopeConfig)

// WithFunction targets a specific function object. A bound method pins its
// receiver, so only calls on that exact instance match.
func WithFunction(fn object.Object) ScopeOption {
	return func(cfg *scopeConfig) { cfg.fn = fn }
}

// WithFunctionName targets functions by name.
func WithFunctionName(name string) ScopeOption {
	return func(cfg *scopeConfig) { cfg.fnName = name }
}

// WithModule restricts matches to frames defined in the given loaded file.
func WithModule(file *script.File) ScopeOption {
	return func(cfg *scopeConfig) { cfg.module = file }
}

// WithFile restricts matches by filename glob. The pattern is tried against
// the frame's full path and against its base name.
func WithFile(glob string) ScopeOption {
	return func(cfg *scopeConfig) { cfg.fileGlob = glob }
}

// WithFilePath restricts matches to an exact file path, resolved to an
// absolute path at construction.
func WithFilePath(path string) ScopeOption {
	return func(cfg *scopeConfig) { cfg.filePath = path }
}

// WithUnwrap controls whether matching sees through functions that stand in
// for another via wraps. Enabled by default.
func WithUnwrap(unwrap bool) ScopeOption {
	return func(cfg *scopeConfig) { cfg.unwrap = unwrap }
}

// WithParentScope is accepted for symmetry but always rejected by NewScope:
// matching ancestors of a frame would require every dispatch to walk the
// whole call stack, and nothing here needs that.
func WithParentScope(parent *Scope) ScopeOption {
	return func(cfg *scopeConfig) { cfg.parent = true }
}

// NewScope builds a Scope from the given selectors.
func NewScope(opts ...ScopeOption) (*Scope, error) {
	cfg := scopeConfig{unwrap: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.parent {
		return nil, fmt.Errorf("%w: parent scopes are not supported", ErrConfiguration)
	}

	s := &Scope{
		fnName:   cfg.fnName,
		module:   cfg.module,
		fileGlob: cfg.fileGlob,
		unwrap:   cfg.unwrap,
	}
	if cfg.filePath != "" {
		abs, err := filepath.Abs(cfg.filePath)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve file path %q: %s", ErrConfiguration, cfg.filePath, err)
		}
		s.filePath = abs
	}
	if cfg.fn != nil {
		switch f := cfg.fn.(type) {
		case *object.Function:
			s.fn = f
		case *object.BoundMethod:
			s.fn = f.Fn
			s.recv = f.Receiver
		default:
			return nil, fmt.Errorf("%w: not a function: %s", ErrConfiguration, cfg.fn.Type())
		}
		if s.unwrap {
			s.fn = s.fn.Unwrap()
		}
	}
	if s.fn == nil && s.fnName == "" && s.module == nil && s.fileGlob == "" && s.filePath == "" {
		return nil, fmt.Errorf("%w: scope needs at least one selector", ErrConfiguration)
	}
	return s, nil
}

// hasFunction reports whether the scope pins a specific function, by object
// or by name. Breakpoints without a line selector require this.
func (s *Scope) hasFunction() bool {
	return s.fn != nil || s.fnName != ""
}

// Match reports whether fr falls inside the scope.
func (s *Scope) Match(fr *object.Frame) bool {
	if s.fn != nil {
		fn := fr.Fn
		if fn == nil {
			return false
		}
		if s.unwrap {
			fn = fn.Unwrap()
		}
		if fn != s.fn {
			return false
		}
		if s.recv != nil && fr.Recv != s.recv {
			return false
		}
	}
	if s.fnName != "" && fr.Name != s.fnName {
		if !(s.unwrap && fr.Fn != nil && fr.Fn.Unwrap().FuncName() == s.fnName) {
			return false
		}
	}
	if s.module != nil && fr.File != s.module.Path {
		return false
	}
	if s.fileGlob != "" {
		if ok, _ := filepath.Match(s.fileGlob, fr.File); !ok {
			if ok, _ := filepath.Match(s.fileGlob, filepath.Base(fr.File)); !ok {
				return false
			}
		}
	}
	if s.filePath != "" {
		abs, err := filepath.Abs(fr.File)
		if err != nil || abs != s.filePath {
			return false
		}
	}
	return true
}
