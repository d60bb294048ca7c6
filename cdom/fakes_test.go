package cdom_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/delaneyj/cdom/cdom"
)

type mapStorage struct {
	items  map[string]string
	writes int
}

func newMapStorage() *mapStorage {
	return &mapStorage{items: map[string]string{}}
}

func (m *mapStorage) GetItem(name string) (string, bool, error) {
	v, ok := m.items[name]
	return v, ok, nil
}

func (m *mapStorage) SetItem(name, value string) error {
	m.items[name] = value
	m.writes++
	return nil
}

type fakeHandle struct {
	value   any
	live    bool
	updates int
}

type fakeRenderer struct {
	handles []*fakeHandle
}

func (r *fakeRenderer) Materialize(v any, ctx *cdom.Context) cdom.Handle {
	h := &fakeHandle{value: v, live: true}
	r.handles = append(r.handles, h)
	return h
}

func (r *fakeRenderer) Update(h cdom.Handle, v any) {
	fh := h.(*fakeHandle)
	fh.value = v
	fh.updates++
}

func (r *fakeRenderer) IsLive(h cdom.Handle) bool {
	return h.(*fakeHandle).live
}

func (r *fakeRenderer) MaterializeAttr(name, value string, ctx *cdom.Context) cdom.Handle {
	return r.Materialize(value, ctx)
}

type fakeQuerier struct {
	values  map[string]any
	queries int
}

func (q *fakeQuerier) Query(expr string, ctx *cdom.Context, multiple bool) cdom.QueryResult {
	q.queries++
	return cdom.QueryResult{Kind: cdom.QueryScalar, Value: q.values[expr]}
}

// gatedLoader blocks every load until release is closed.
type gatedLoader struct {
	release chan struct{}
	calls   atomic.Int32
	helpers map[string]*cdom.Helper
	fail    bool
}

func newGatedLoader(helpers map[string]*cdom.Helper) *gatedLoader {
	return &gatedLoader{release: make(chan struct{}), helpers: helpers}
}

func (l *gatedLoader) Load(ctx context.Context, name string) (*cdom.Helper, error) {
	l.calls.Add(1)
	select {
	case <-l.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if l.fail {
		return nil, errors.New("network down")
	}
	return l.helpers[name], nil
}

type countingObserver struct {
	batches     int
	lastBatch   int
	suspensions int
	loads       map[string]cdom.HelperStatus
	failures    int
}

func (o *countingObserver) Evaluated(kind cdom.EvalKind, d time.Duration, failed bool) {
	if failed {
		o.failures++
	}
}

func (o *countingObserver) Suspended(name string) { o.suspensions++ }

func (o *countingObserver) HelperLoaded(name string, status cdom.HelperStatus, d time.Duration) {
	if o.loads == nil {
		o.loads = map[string]cdom.HelperStatus{}
	}
	o.loads[name] = status
}

func (o *countingObserver) Notified(name string, subscribers int) {}

func (o *countingObserver) Batched(subscribers int) {
	o.batches++
	o.lastBatch = subscribers
}

func double() cdom.HelperFunc {
	return func(c *cdom.Call, args []any) (any, error) {
		return cdom.ToNumber(args[0]) * 2, nil
	}
}
