package cdom

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrParentNavigation = errors.New("explicit parent navigation '..' is not supported in paths")
	ErrNotContainer     = errors.New("value is not a container")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrNotCallable      = errors.New("value is not callable")
	ErrNilAccess        = errors.New("cannot read property of null")
)

// Marker is an in-band failure value. Markers are strings so they render
// visibly wherever a value would have been shown.
type Marker string

const (
	ParseError Marker = "[Parse Error]"
	Pending    Marker = "..."
)

func UnknownMarker(name string) Marker {
	return Marker("[Unknown: " + name + "]")
}

func UndefinedMarker(name string) Marker {
	return Marker("[" + name + " undefined]")
}

// SourceMarker re-wraps an expression's source in its invocation sigil.
func SourceMarker(src string) Marker {
	return Marker("=(" + src + ")")
}

func helperErrorMarker(name string, err error) Marker {
	return Marker(fmt.Sprintf("[%s error: %v]", name, err))
}

func (m Marker) String() string { return string(m) }

// IsMarker reports whether v is a Marker.
func IsMarker(v any) bool {
	_, ok := v.(Marker)
	return ok
}

type CompileError struct {
	Source string
	Pos    int
	Msg    string
	Err    error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compile %q at %d: %s: %v", e.Source, e.Pos, e.Msg, e.Err)
	}
	return fmt.Sprintf("compile %q at %d: %s", e.Source, e.Pos, e.Msg)
}

func (e *CompileError) Unwrap() error { return e.Err }

type Violation struct {
	Path    string
	Keyword string
	Message string
}

func (v Violation) String() string {
	path := v.Path
	if path == "" {
		path = "root"
	}
	s := path + ": failed " + v.Keyword
	if v.Message != "" {
		s += " (" + v.Message + ")"
	}
	return s
}

// ValidationError is the only error handed back to writers.
type ValidationError struct {
	Cell       string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return "Validation Error: " + strings.Join(msgs, ", ")
}

// evalError travels as a panic through the closure tree and is recovered at
// the Expression boundary.
type evalError struct {
	err error
}

func throw(format string, args ...any) {
	panic(evalError{err: fmt.Errorf(format, args...)})
}
