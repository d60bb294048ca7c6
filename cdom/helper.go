package cdom

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// HelperFunc is a named function callable from expressions and descriptors.
// Positional arguments arrive in args. A descriptor that passes an object
// receives it both as c.Named and as the single argument.
type HelperFunc func(c *Call, args []any) (any, error)

type Helper struct {
	Name string
	Fn   HelperFunc
	// Mutates helpers receive a *Ref for path arguments so they can assign
	// back through them.
	Mutates bool
	// SkipResolution helpers receive their descriptor argument unevaluated.
	SkipResolution bool
}

func (h *Helper) String() string { return "[helper " + h.Name + "]" }

type HelperOption func(*Helper)

func HelperMutates() HelperOption {
	return func(h *Helper) { h.Mutates = true }
}

func HelperSkipResolution() HelperOption {
	return func(h *Helper) { h.SkipResolution = true }
}

// Call carries what a helper invocation runs against.
type Call struct {
	Sys   *System
	Ctx   *Context
	Event any
	Named map[string]any
}

// Apply invokes fn, which must be a helper value, with args.
func (c *Call) Apply(fn any, args ...any) (any, error) {
	h, ok := Unwrap(fn).(*Helper)
	if !ok {
		return nil, fmt.Errorf("%s: %w", TypeName(fn), ErrNotCallable)
	}
	return h.Fn(&Call{Sys: c.Sys, Ctx: c.Ctx, Event: c.Event}, args)
}

type HelperStatus int

const (
	HelperReady HelperStatus = iota
	HelperLoading
	HelperAbsent
)

func (hs HelperStatus) String() string {
	switch hs {
	case HelperReady:
		return "ready"
	case HelperLoading:
		return "loading"
	case HelperAbsent:
		return "absent"
	}
	return "unknown"
}

// Helper registers fn under name.
func (s *System) Helper(name string, fn HelperFunc, opts ...HelperOption) *Helper {
	h := &Helper{Name: name, Fn: fn}
	for _, opt := range opts {
		opt(h)
	}
	s.RegisterHelper(h)
	return h
}

// RegisterHelper installs h, replaying any evaluation suspended on its name.
func (s *System) RegisterHelper(h *Helper) {
	s.helpers[h.Name] = h
	if _, ok := s.waiters[h.Name]; ok {
		s.replay(h.Name)
	}
}

// GetHelper looks name up, starting a load on the first miss. Concurrent
// misses share the in-flight load.
func (s *System) GetHelper(name string) (*Helper, HelperStatus) {
	if h, ok := s.helpers[name]; ok {
		if h == nil {
			return nil, HelperAbsent
		}
		return h, HelperReady
	}
	if _, ok := s.loading[name]; ok {
		return nil, HelperLoading
	}
	if s.loader == nil {
		s.helpers[name] = nil
		return nil, HelperAbsent
	}
	s.startLoad(name)
	return nil, HelperLoading
}

func (s *System) startLoad(name string) {
	started := time.Now()
	s.loading[name] = started
	s.inflight.Add(1)
	s.logger.Debug("loading helper", "name", name)

	go func() {
		ctx := s.baseCtx
		var cancel context.CancelFunc
		if s.loadTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, s.loadTimeout)
		} else {
			ctx, cancel = context.WithCancel(ctx)
		}
		h, err := s.loader.Load(ctx, name)
		cancel()

		s.enqueue(func() {
			s.inflight.Add(-1)
			s.completeLoad(name, h, err, time.Since(started))
		})
	}()
}

func (s *System) completeLoad(name string, h *Helper, err error, took time.Duration) {
	delete(s.loading, name)
	if existing := s.helpers[name]; existing != nil {
		s.replay(name)
		return
	}
	status := HelperReady
	switch {
	case err != nil:
		s.logger.Warn("helper load failed", "name", name, "err", err)
		status = HelperAbsent
	case h == nil || h.Fn == nil:
		status = HelperAbsent
	}
	if status == HelperAbsent {
		s.helpers[name] = nil
	} else {
		h.Name = name
		s.helpers[name] = h
	}
	s.observer.HelperLoaded(name, status, took)
	s.replay(name)
}

// suspend parks the active evaluation until name resolves.
func (s *System) suspend(name string) {
	s.observer.Suspended(name)
	sub := s.activeSubscriber()
	if sub == nil {
		return
	}
	set, ok := s.waiters[name]
	if !ok {
		set = newSubscriberSet()
		s.waiters[name] = set
	}
	set.add(sub)
}

// replay re-runs each waiter on name exactly once. Liveness is checked now,
// not when the waiter was parked.
func (s *System) replay(name string) {
	set, ok := s.waiters[name]
	if !ok {
		return
	}
	delete(s.waiters, name)
	for _, sub := range set.snapshot() {
		if sub.live() {
			sub.refresh(false)
		}
	}
}

// Waiting reports how many evaluations are parked on name.
func (s *System) Waiting(name string) int {
	set, ok := s.waiters[name]
	if !ok {
		return 0
	}
	return set.len()
}

// Alias resolves an operator symbol to its helper name.
func (s *System) Alias(op string) (string, bool) {
	name, ok := s.aliases[op]
	return name, ok
}

func defaultAliases() map[string]string {
	return map[string]string{
		"+":  "add",
		"-":  "subtract",
		"*":  "multiply",
		"/":  "divide",
		"%":  "mod",
		"==": "eq",
		"!=": "neq",
		"<":  "lt",
		">":  "gt",
		"<=": "lte",
		">=": "gte",
		"&&": "and",
		"||": "or",
		"!":  "not",
		"++": "increment",
		"--": "decrement",
	}
}

// registerTransformHelpers installs the conversions cells use as named
// transforms.
func registerTransformHelpers(s *System) {
	s.Helper("Integer", func(c *Call, args []any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		f := ToNumber(parseIntPrefix(args[0]))
		if math.IsNaN(f) {
			return f, nil
		}
		return float64(int64(f)), nil
	})
	s.Helper("Number", func(c *Call, args []any) (any, error) {
		if len(args) == 0 {
			return 0.0, nil
		}
		return ToNumber(args[0]), nil
	})
	s.Helper("String", func(c *Call, args []any) (any, error) {
		if len(args) == 0 {
			return "", nil
		}
		return Stringify(args[0]), nil
	})
	s.Helper("Boolean", func(c *Call, args []any) (any, error) {
		if len(args) == 0 {
			return false, nil
		}
		return Truthy(args[0]), nil
	})
}

// parseIntPrefix mimics parseInt: leading digits of a string are kept.
func parseIntPrefix(v any) any {
	str, ok := asString(Unwrap(v))
	if !ok {
		return v
	}
	str = strings.TrimSpace(str)
	end := 0
	for i, r := range str {
		if (r == '-' || r == '+') && i == 0 {
			end = i + 1
			continue
		}
		if r < '0' || r > '9' {
			break
		}
		end = i + 1
	}
	if end == 0 || (end == 1 && (str[0] == '-' || str[0] == '+')) {
		return "NaN"
	}
	return str[:end]
}
