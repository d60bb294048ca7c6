package cdom

import (
	"context"
	"time"
)

// Handle is an opaque presentation-layer target owned by a Renderer.
type Handle any

// Renderer turns resolved values into presentation-layer nodes.
type Renderer interface {
	Materialize(value any, ctx *Context) Handle
	Update(h Handle, value any)
	IsLive(h Handle) bool
}

// AttrRenderer is implemented by renderers that can bind attributes.
type AttrRenderer interface {
	MaterializeAttr(name, value string, ctx *Context) Handle
}

type QueryKind int

const (
	QueryScalar QueryKind = iota
	QueryCollection
)

type QueryResult struct {
	Kind  QueryKind
	Value any
}

// Querier answers non-reactive lookups against the presentation tree.
type Querier interface {
	Query(expr string, ctx *Context, multiple bool) QueryResult
}

// Storage persists named cells as encoded text.
type Storage interface {
	GetItem(name string) (string, bool, error)
	SetItem(name, value string) error
}

// Codec chooses the text format stored values round-trip through.
type Codec interface {
	Marshal(v any) (string, error)
	Unmarshal(s string) (any, error)
}

// Loader resolves a helper by name. A nil helper with a nil error means the
// helper does not exist.
type Loader interface {
	Load(ctx context.Context, name string) (*Helper, error)
}

type LoaderFunc func(ctx context.Context, name string) (*Helper, error)

func (f LoaderFunc) Load(ctx context.Context, name string) (*Helper, error) {
	return f(ctx, name)
}

type EvalKind string

const (
	EvalExpression EvalKind = "expression"
	EvalStructural EvalKind = "structural"
)

// Observer receives instrumentation callbacks. All calls happen on the
// System's cooperative thread.
type Observer interface {
	Evaluated(kind EvalKind, d time.Duration, failed bool)
	Suspended(name string)
	HelperLoaded(name string, status HelperStatus, d time.Duration)
	Notified(name string, subscribers int)
	Batched(subscribers int)
}

type nopObserver struct{}

func (nopObserver) Evaluated(EvalKind, time.Duration, bool)          {}
func (nopObserver) Suspended(string)                                 {}
func (nopObserver) HelperLoaded(string, HelperStatus, time.Duration) {}
func (nopObserver) Notified(string, int)                             {}
func (nopObserver) Batched(int)                                      {}
