package cdom

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// System owns every registry the reactive core needs. It is driven by a
// single cooperative thread: everything except NotifyExternalChange, Do and
// the loader goroutines must be called from that thread.
type System struct {
	logger      *slog.Logger
	renderer    Renderer
	querier     Querier
	loader      Loader
	observer    Observer
	loadTimeout time.Duration
	baseCtx     context.Context

	stack []*Subscriber

	deps           map[uint64]*subscriberSet
	structuralSubs *subscriberSet

	cells   []*cellSlot
	schemas map[string]*Schema

	nextNode NodeID
	parents  map[NodeID]NodeID
	locals   map[NodeID]map[string]any
	globals  map[string]any

	helpers map[string]*Helper
	loading map[string]time.Time
	waiters map[string]*subscriberSet
	aliases map[string]string

	exprCache     map[uint64]*Expression
	templateCache map[string][]Segment

	mu           sync.Mutex
	queue        []func()
	wake         chan struct{}
	inflight     atomic.Int64
	changeQueued atomic.Bool
}

type Option func(*System)

func WithLogger(l *slog.Logger) Option {
	return func(s *System) { s.logger = l }
}

func WithRenderer(r Renderer) Option {
	return func(s *System) { s.renderer = r }
}

func WithQuerier(q Querier) Option {
	return func(s *System) { s.querier = q }
}

func WithLoader(l Loader) Option {
	return func(s *System) { s.loader = l }
}

func WithObserver(o Observer) Option {
	return func(s *System) { s.observer = o }
}

// WithLoadTimeout bounds each helper load. Zero disables the bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *System) { s.loadTimeout = d }
}

// WithBaseContext sets the parent context of helper loads.
func WithBaseContext(ctx context.Context) Option {
	return func(s *System) { s.baseCtx = ctx }
}

// WithAliases extends or overrides the operator symbol table.
func WithAliases(aliases map[string]string) Option {
	return func(s *System) {
		for k, v := range aliases {
			s.aliases[k] = v
		}
	}
}

func New(opts ...Option) *System {
	s := &System{
		logger:         slog.Default(),
		observer:       nopObserver{},
		loadTimeout:    30 * time.Second,
		baseCtx:        context.Background(),
		deps:           map[uint64]*subscriberSet{},
		structuralSubs: newSubscriberSet(),
		schemas:        map[string]*Schema{},
		parents:        map[NodeID]NodeID{},
		locals:         map[NodeID]map[string]any{},
		globals:        map[string]any{},
		helpers:        map[string]*Helper{},
		loading:        map[string]time.Time{},
		waiters:        map[string]*subscriberSet{},
		aliases:        defaultAliases(),
		exprCache:      map[uint64]*Expression{},
		templateCache:  map[string][]Segment{},
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	registerTransformHelpers(s)
	return s
}

func (s *System) Logger() *slog.Logger { return s.logger }

func (s *System) Renderer() Renderer { return s.renderer }

// SetRenderer installs a renderer after construction, for collaborators that
// need the System to exist first.
func (s *System) SetRenderer(r Renderer) { s.renderer = r }

func (s *System) SetQuerier(q Querier) { s.querier = q }
