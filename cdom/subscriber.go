package cdom

import (
	"errors"
	"reflect"
)

var ErrNoRenderer = errors.New("no renderer configured")

type BindKind int

const (
	BindFunc BindKind = iota
	BindValue
	BindText
	BindAttr
)

func (k BindKind) String() string {
	switch k {
	case BindFunc:
		return "func"
	case BindValue:
		return "value"
	case BindText:
		return "text"
	case BindAttr:
		return "attr"
	}
	return "unknown"
}

// Subscriber is a re-runnable evaluation plus the knowledge of where its
// result goes.
type Subscriber struct {
	sys      *System
	kind     BindKind
	ctx      *Context
	eval     func() any
	apply    func(v any)
	attr     string
	handle   Handle
	last     any
	hasLast  bool
	running  bool
	disposed bool
	runs     int
}

func (sub *Subscriber) Kind() BindKind    { return sub.kind }
func (sub *Subscriber) Context() *Context { return sub.ctx }
func (sub *Subscriber) Handle() Handle    { return sub.handle }
func (sub *Subscriber) Value() any        { return sub.last }
func (sub *Subscriber) Runs() int         { return sub.runs }

// Dispose stops future refreshes. Registrations are pruned lazily on the
// next notification.
func (sub *Subscriber) Dispose() {
	sub.disposed = true
}

func (sub *Subscriber) live() bool {
	if sub.disposed {
		return false
	}
	if sub.handle != nil && sub.sys.renderer != nil {
		return sub.sys.renderer.IsLive(sub.handle)
	}
	return true
}

// refresh re-runs the evaluation. A subscriber already on the stack is not
// re-entered, so a write inside its own evaluation cannot recurse.
func (sub *Subscriber) refresh(onlyIfChanged bool) {
	if sub.running || sub.disposed {
		return
	}
	sub.running = true
	defer func() { sub.running = false }()

	sub.runs++
	v := sub.sys.track(sub, sub.eval)
	if onlyIfChanged && sub.hasLast && reflect.DeepEqual(v, sub.last) {
		return
	}
	sub.last, sub.hasLast = v, true
	sub.deliver(v)
}

func (sub *Subscriber) deliver(v any) {
	switch {
	case sub.apply != nil:
		sub.apply(v)
	case sub.kind == BindFunc:
		// effects do their work while evaluating
	case sub.sys.renderer == nil:
		sub.sys.logger.Warn("dropping value, no renderer", "kind", sub.kind)
	case sub.handle == nil && sub.kind == BindAttr:
		ar, ok := sub.sys.renderer.(AttrRenderer)
		if !ok {
			sub.sys.logger.Warn("dropping attribute value, renderer cannot bind attributes", "attr", sub.attr)
			return
		}
		sub.handle = ar.MaterializeAttr(sub.attr, Stringify(v), sub.ctx)
	case sub.handle == nil:
		sub.handle = sub.sys.renderer.Materialize(v, sub.ctx)
	default:
		sub.sys.renderer.Update(sub.handle, v)
	}
}

func (s *System) newSubscriber(kind BindKind, ctx *Context, eval func() any) *Subscriber {
	if ctx == nil {
		ctx = &Context{}
	}
	return &Subscriber{sys: s, kind: kind, ctx: ctx, eval: eval}
}

// Effect runs fn now and again whenever a cell it read is written.
func (s *System) Effect(fn func()) *Subscriber {
	sub := s.newSubscriber(BindFunc, nil, func() any {
		fn()
		return nil
	})
	sub.refresh(false)
	return sub
}

// Bind runs eval now and hands every result to apply, re-running whenever a
// dependency changes.
func (s *System) Bind(ctx *Context, eval func() any, apply func(v any)) *Subscriber {
	sub := s.newSubscriber(BindValue, ctx, eval)
	sub.apply = apply
	sub.refresh(false)
	return sub
}

// BindExpression binds a compiled expression. A compile error is returned
// alongside a subscriber that renders the parse error marker.
func (s *System) BindExpression(src string, ctx *Context, apply func(v any)) (*Subscriber, error) {
	x, err := s.Compile(src)
	sub := s.Bind(ctx, func() any { return x.Eval(ctx, nil) }, apply)
	return sub, err
}

// BindStructural binds a descriptor.
func (s *System) BindStructural(desc any, ctx *Context, apply func(v any)) *Subscriber {
	return s.Bind(ctx, func() any { return s.EvaluateStructural(desc, ctx, nil) }, apply)
}

// Mount evaluates desc and materializes the result through the renderer,
// updating the same handle on every change. Strings containing template
// expressions are interpolated.
func (s *System) Mount(desc any, ctx *Context) (*Subscriber, error) {
	if s.renderer == nil {
		return nil, ErrNoRenderer
	}
	sub := s.newSubscriber(BindText, ctx, nil)
	sub.eval = func() any { return s.evaluateBinding(desc, sub.ctx) }
	sub.refresh(false)
	return sub, nil
}

// MountAttr binds a templated attribute value.
func (s *System) MountAttr(name, text string, ctx *Context) (*Subscriber, error) {
	if _, ok := s.renderer.(AttrRenderer); !ok {
		return nil, ErrNoRenderer
	}
	sub := s.newSubscriber(BindAttr, ctx, nil)
	sub.attr = name
	sub.eval = func() any { return s.Interpolate(text, sub.ctx, nil) }
	sub.refresh(false)
	return sub, nil
}

func (s *System) evaluateBinding(desc any, ctx *Context) any {
	if text, ok := desc.(string); ok {
		if HasExpressions(text) {
			return s.Interpolate(text, ctx, nil)
		}
		return text
	}
	return s.EvaluateStructural(desc, ctx, nil)
}
