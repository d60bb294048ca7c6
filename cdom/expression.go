package cdom

import (
	"fmt"
	"strings"
	"time"
)

// Expression is an immutable compiled closure tree. Compiling the same
// source again returns the same Expression.
type Expression struct {
	sys *System
	src string
	fn  evalFn
	err *CompileError
}

func (x *Expression) Source() string { return x.src }

// Err reports the compile error, if any.
func (x *Expression) Err() error {
	if x.err == nil {
		return nil
	}
	return x.err
}

// Compile parses src once per System. On a syntax error both the error and
// an Expression that always yields ParseError are returned.
func (s *System) Compile(src string) (*Expression, error) {
	x := s.compile(src)
	return x, x.Err()
}

func (s *System) compile(src string) *Expression {
	key := nameKey(src)
	if x, ok := s.exprCache[key]; ok && x.src == src {
		return x
	}
	x := &Expression{sys: s, src: src}
	x.fn, x.err = compileExpression(s, strings.TrimSpace(src))
	if x.err != nil {
		s.logger.Debug("compile failed", "expr", src, "err", x.err)
	}
	if _, taken := s.exprCache[key]; !taken {
		s.exprCache[key] = x
	}
	return x
}

// Eval runs the expression. Runtime failures are logged and replaced by the
// source re-wrapped in its sigil; the result is always a plain value.
func (x *Expression) Eval(ctx *Context, event any) any {
	if ctx == nil {
		ctx = &Context{}
	}
	return Unwrap(x.eval(&env{sys: x.sys, ctx: ctx, event: event}))
}

// eval keeps cells and handles intact so callers that need a live handle
// can have one.
func (x *Expression) eval(e *env) (out any) {
	if x.err != nil {
		return ParseError
	}
	start := time.Now()
	failed := false
	defer func() {
		if r := recover(); r != nil {
			failed = true
			x.sys.logger.Warn("evaluation failed", "expr", x.src, "err", recovered(r))
			out = SourceMarker(x.src)
		}
		x.sys.observer.Evaluated(EvalExpression, time.Since(start), failed)
	}()
	return x.fn(e)
}

func recovered(r any) error {
	switch v := r.(type) {
	case evalError:
		return v.err
	case error:
		return v
	default:
		return fmt.Errorf("%v", v)
	}
}

// Eval compiles and evaluates src in one step.
func (s *System) Eval(src string, ctx *Context, event any) any {
	return s.compile(src).Eval(ctx, event)
}
