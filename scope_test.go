package goprobe_test

import (
	"errors"
	"testing"

	goprobe "github.com/podhmo/go-probe"
	"github.com/podhmo/go-probe/script/object"
)

func TestNewScopeRequiresSelector(t *testing.T) {
	_, err := goprobe.NewScope()
	if !errors.Is(err, goprobe.ErrConfiguration) {
		t.Errorf("NewScope() err = %v, want ErrConfiguration", err)
	}
}

func TestNewScopeRejectsParentScopes(t *testing.T) {
	inner, err := goprobe.NewScope(goprobe.WithFunctionName("f"))
	if err != nil {
		t.Fatalf("NewScope: %+v", err)
	}
	_, err = goprobe.NewScope(goprobe.WithFunctionName("g"), goprobe.WithParentScope(inner))
	if !errors.Is(err, goprobe.ErrConfiguration) {
		t.Errorf("parent scope err = %v, want ErrConfiguration", err)
	}
}

func TestNewScopeRejectsNonFunction(t *testing.T) {
	_, err := goprobe.NewScope(goprobe.WithFunction(object.NIL))
	if !errors.Is(err, goprobe.ErrConfiguration) {
		t.Errorf("WithFunction(nil object) err = %v, want ErrConfiguration", err)
	}
}

func frameNamed(name, file string) *object.Frame {
	globals := object.NewEnvironment()
	fnEnv := object.NewEnclosedEnvironment(globals)
	return object.NewFrame(nil, name, file, 3, nil, fnEnv, globals, nil)
}

func TestScopeMatchByName(t *testing.T) {
	scope, err := goprobe.NewScope(goprobe.WithFunctionName("f"))
	if err != nil {
		t.Fatalf("NewScope: %+v", err)
	}
	if !scope.Match(frameNamed("f", "main.script")) {
		t.Errorf("scope did not match f")
	}
	if scope.Match(frameNamed("g", "main.script")) {
		t.Errorf("scope matched g")
	}
}

func TestScopeMatchByFileGlob(t *testing.T) {
	tests := []struct {
		glob string
		file string
		want bool
	}{
		{glob: "*.script", file: "main.script", want: true},
		{glob: "*.script", file: "lib/util.script", want: true}, // base name fallback
		{glob: "main.*", file: "main.script", want: true},
		{glob: "other.*", file: "main.script", want: false},
	}
	for _, tt := range tests {
		scope, err := goprobe.NewScope(goprobe.WithFunctionName("f"), goprobe.WithFile(tt.glob))
		if err != nil {
			t.Fatalf("NewScope: %+v", err)
		}
		if got := scope.Match(frameNamed("f", tt.file)); got != tt.want {
			t.Errorf("glob %q against %q = %v, want %v", tt.glob, tt.file, got, tt.want)
		}
	}
}

func TestScopeMatchByModule(t *testing.T) {
	interp := newInterp(t, countdownSrc)
	file := interp.Files()[0]

	scope, err := goprobe.NewScope(goprobe.WithModule(file))
	if err != nil {
		t.Fatalf("NewScope: %+v", err)
	}
	if !scope.Match(frameNamed("countdown", "main.script")) {
		t.Errorf("scope did not match a frame from the module")
	}
	if scope.Match(frameNamed("countdown", "other.script")) {
		t.Errorf("scope matched a frame from another file")
	}
}

func TestScopeSelectorsCombineWithAnd(t *testing.T) {
	scope, err := goprobe.NewScope(goprobe.WithFunctionName("f"), goprobe.WithFile("main.script"))
	if err != nil {
		t.Fatalf("NewScope: %+v", err)
	}
	if !scope.Match(frameNamed("f", "main.script")) {
		t.Errorf("both selectors hold but no match")
	}
	if scope.Match(frameNamed("f", "other.script")) {
		t.Errorf("file selector ignored")
	}
	if scope.Match(frameNamed("g", "main.script")) {
		t.Errorf("name selector ignored")
	}
}
