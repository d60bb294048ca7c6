package cdom

import (
	"strings"
	"time"
)

// EvaluateStructural interprets a JSON-shaped descriptor. A single-key object
// is dispatched on its key: "$" queries the presentation tree, "=" compiles
// an expression, an operator symbol or "=name" calls a helper. Any other
// object is a template whose properties are resolved. Failures come back as
// marker values.
func (s *System) EvaluateStructural(desc any, ctx *Context, event any) (out any) {
	if ctx == nil {
		ctx = &Context{}
	}
	start := time.Now()
	failed := false
	defer func() {
		if r := recover(); r != nil {
			failed = true
			err := recovered(r)
			s.logger.Warn("structural evaluation failed", "err", err)
			out = Marker("[Error: " + err.Error() + "]")
		}
		s.observer.Evaluated(EvalStructural, time.Since(start), failed)
	}()
	return s.structural(desc, &env{sys: s, ctx: ctx, event: event})
}

func (s *System) structural(desc any, e *env) any {
	switch x := desc.(type) {
	case Cell:
		return s.structural(Unwrap(x), e)
	case string:
		if strings.HasPrefix(x, "@") {
			return Unwrap(s.reference(x, e))
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = s.structural(el, e)
		}
		return out
	case map[string]any:
		return s.object(x, e)
	}
	return desc
}

func (s *System) object(obj map[string]any, e *env) any {
	if len(obj) == 1 {
		for key, val := range obj {
			switch key {
			case "$":
				return s.query(Stringify(s.structural(val, e)), e.ctx)
			case "=":
				src, ok := val.(string)
				if !ok {
					return s.structural(val, e)
				}
				return Unwrap(s.compile(src).eval(e))
			}
			if name, ok := s.helperName(key); ok {
				return s.callStructural(key, name, val, e)
			}
		}
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = s.resolveArg(v, e, false)
	}
	return out
}

func (s *System) query(expr string, ctx *Context) any {
	s.registerStructural()
	if s.querier == nil {
		return nil
	}
	return s.querier.Query(expr, ctx, false).Value
}

func (s *System) helperName(key string) (string, bool) {
	if name, ok := s.aliases[key]; ok {
		return name, true
	}
	if len(key) > 1 && key[0] == '=' {
		return key[1:], true
	}
	return "", false
}

// IsDescriptor reports whether v is a map the structural evaluator
// dispatches on rather than a template.
func (s *System) IsDescriptor(v any) bool {
	obj, ok := v.(map[string]any)
	return ok && s.isDescriptor(obj)
}

// isDescriptor reports whether obj is one of the dispatching single-key
// forms rather than a bag of named arguments.
func (s *System) isDescriptor(obj map[string]any) bool {
	if len(obj) != 1 {
		return false
	}
	for key := range obj {
		if key == "$" || key == "=" {
			return true
		}
		_, ok := s.helperName(key)
		return ok
	}
	return false
}

func (s *System) callStructural(key, name string, val any, e *env) any {
	h, status := s.GetHelper(name)
	switch status {
	case HelperLoading:
		s.suspend(name)
		return Pending
	case HelperAbsent:
		return UndefinedMarker(name)
	}

	call := &Call{Sys: s, Ctx: e.ctx, Event: e.event}
	wantRef := h.Mutates || key == "++" || key == "--"
	var args []any
	switch v := val.(type) {
	case map[string]any:
		if h.SkipResolution {
			args = []any{v}
			break
		}
		if s.isDescriptor(v) {
			args = []any{s.resolveArg(v, e, wantRef)}
			break
		}
		named := make(map[string]any, len(v))
		for k, el := range v {
			named[k] = s.resolveArg(el, e, false)
		}
		call.Named = named
		args = []any{named}
	case []any:
		if h.SkipResolution {
			args = v
			break
		}
		args = make([]any, len(v))
		for i, el := range v {
			args[i] = s.resolveArg(el, e, wantRef)
		}
	default:
		if h.SkipResolution {
			args = []any{v}
			break
		}
		args = []any{s.resolveArg(v, e, wantRef)}
	}

	out, err := s.safeCall(h, call, args)
	if err != nil {
		s.logger.Warn("helper failed", "helper", name, "err", err)
		return helperErrorMarker(name, err)
	}
	return Normalize(out)
}

func (s *System) safeCall(h *Helper, call *Call, args []any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, recovered(r)
		}
	}()
	return h.Fn(call, args)
}

// IsReference reports whether a descriptor string addresses state or
// context rather than being a literal.
func IsReference(str string) bool {
	for _, prefix := range []string{"/", "./", "$this", "$event", "@"} {
		if strings.HasPrefix(str, prefix) {
			return true
		}
	}
	return false
}

// resolveArg dereferences references, evaluates nested descriptors and
// passes literals through. With asRef, references stay live handles.
func (s *System) resolveArg(v any, e *env, asRef bool) any {
	switch x := v.(type) {
	case string:
		if !IsReference(x) {
			return x
		}
		r := s.reference(x, e)
		if _, ok := r.(Cell); ok && asRef {
			return r
		}
		return Unwrap(r)
	case map[string]any, []any:
		return s.structural(x, e)
	case Cell:
		if asRef {
			return x
		}
		return Unwrap(x)
	}
	return v
}

// reference resolves a path or context string through the compiler. A
// string that does not compile is a literal.
func (s *System) reference(str string, e *env) any {
	x := s.compile(str)
	if x.err != nil {
		return str
	}
	return x.eval(e)
}
