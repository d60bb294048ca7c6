package cdom_test

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/delaneyj/cdom/cdom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyExternalChange(t *testing.T) {
	t.Run("many changes coalesce into one pass", func(t *testing.T) {
		q := &fakeQuerier{values: map[string]any{"h1": "Title"}}
		obs := &countingObserver{}
		sys := cdom.New(cdom.WithQuerier(q), cdom.WithObserver(obs))

		applied := 0
		var got any
		sub := sys.BindStructural(map[string]any{"$": "h1"}, nil, func(v any) {
			applied++
			got = v
		})
		assert.Equal(t, "Title", got)

		sys.NotifyExternalChange()
		sys.NotifyExternalChange()
		sys.NotifyExternalChange()
		sys.Drain()

		assert.Equal(t, 1, obs.batches)
		assert.Equal(t, 2, sub.Runs())
		assert.Equal(t, 1, applied, "unchanged values are not re-applied")

		q.values["h1"] = "Renamed"
		sys.NotifyExternalChange()
		sys.Drain()
		assert.Equal(t, 2, obs.batches)
		assert.Equal(t, 2, applied)
		assert.Equal(t, "Renamed", got)
	})

	t.Run("safe from other goroutines", func(t *testing.T) {
		q := &fakeQuerier{values: map[string]any{"p": 1}}
		obs := &countingObserver{}
		sys := cdom.New(cdom.WithQuerier(q), cdom.WithObserver(obs))
		sys.BindStructural(map[string]any{"$": "p"}, nil, func(any) {})

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sys.NotifyExternalChange()
			}()
		}
		wg.Wait()
		sys.Drain()
		assert.Equal(t, 1, obs.batches)
		assert.Equal(t, 1, obs.lastBatch)
	})

	t.Run("passes run in registration order and skip dead subscribers", func(t *testing.T) {
		q := &fakeQuerier{values: map[string]any{"a": 1, "b": 2}}
		sys := cdom.New(cdom.WithQuerier(q))

		var order []string
		first := sys.BindStructural(map[string]any{"$": "a"}, nil, func(any) { order = append(order, "a") })
		sys.BindStructural(map[string]any{"$": "b"}, nil, func(any) { order = append(order, "b") })
		order = nil

		q.values["a"], q.values["b"] = 10, 20
		sys.NotifyExternalChange()
		sys.Drain()
		assert.Equal(t, []string{"a", "b"}, order)

		first.Dispose()
		q.values["a"], q.values["b"] = 11, 21
		order = nil
		sys.NotifyExternalChange()
		sys.Drain()
		assert.Equal(t, []string{"b"}, order)
	})

	t.Run("cell writes stay synchronous", func(t *testing.T) {
		sys := cdom.New()
		n, _ := sys.Signal(1, cdom.WithName("n"))
		var got any
		sys.BindStructural(map[string]any{"=": "/n"}, nil, func(v any) { got = v })
		require.NoError(t, n.Set(2))
		assert.Equal(t, 2.0, got)
		assert.Equal(t, 0, sys.Drain())
	})
}

func TestMount(t *testing.T) {
	r := &fakeRenderer{}
	q := &fakeQuerier{values: map[string]any{"#title": "Hi"}}
	sys := cdom.New(cdom.WithRenderer(r), cdom.WithQuerier(q))
	count, _ := sys.Signal(1, cdom.WithName("count"))

	sub, err := sys.Mount("Count: =(/count) in #(#title)", nil)
	require.NoError(t, err)
	require.Len(t, r.handles, 1)
	h := r.handles[0]
	assert.Equal(t, "Count: 1 in Hi", h.value)

	require.NoError(t, count.Set(2))
	assert.Equal(t, "Count: 2 in Hi", h.value)
	assert.Equal(t, 1, h.updates)
	assert.Same(t, h, sub.Handle())

	t.Run("detached targets are pruned", func(t *testing.T) {
		h.live = false
		require.NoError(t, count.Set(3))
		assert.Equal(t, "Count: 2 in Hi", h.value)
		assert.Equal(t, 0, sys.Subscribers("count"))
	})

	t.Run("attributes interpolate", func(t *testing.T) {
		sub, err := sys.MountAttr("title", "n=_(/count)", nil)
		require.NoError(t, err)
		assert.Equal(t, "n=3", sub.Value())
	})

	t.Run("descriptors mount their value", func(t *testing.T) {
		sub, err := sys.Mount(map[string]any{"=": "/count * 2"}, nil)
		require.NoError(t, err)
		assert.Equal(t, 6.0, sub.Value())
	})

	t.Run("mount needs a renderer", func(t *testing.T) {
		_, err := cdom.New().Mount("x", nil)
		assert.ErrorIs(t, err, cdom.ErrNoRenderer)
	})
}

// plainRenderer cannot bind attributes.
type plainRenderer struct{ materialized int }

func (r *plainRenderer) Materialize(v any, ctx *cdom.Context) cdom.Handle {
	r.materialized++
	return r
}
func (r *plainRenderer) Update(h cdom.Handle, v any) {}
func (r *plainRenderer) IsLive(h cdom.Handle) bool  { return true }

// lazyAttrRenderer defers attribute handles, returning none.
type lazyAttrRenderer struct{ fakeRenderer }

func (r *lazyAttrRenderer) MaterializeAttr(name, value string, ctx *cdom.Context) cdom.Handle {
	return nil
}

func TestDeliveryWithoutTarget(t *testing.T) {
	t.Run("removed renderer logs instead of panicking", func(t *testing.T) {
		var logs bytes.Buffer
		r := &fakeRenderer{}
		sys := cdom.New(cdom.WithRenderer(r), cdom.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
		count, err := sys.Signal(1, cdom.WithName("count"))
		require.NoError(t, err)
		_, err = sys.Mount("=(/count)", nil)
		require.NoError(t, err)

		sys.SetRenderer(nil)
		require.NotPanics(t, func() { require.NoError(t, count.Set(2)) })
		assert.Contains(t, logs.String(), "no renderer")
		require.Len(t, r.handles, 1)
		assert.Equal(t, 0, r.handles[0].updates)
	})

	t.Run("attribute values are not dropped silently", func(t *testing.T) {
		var logs bytes.Buffer
		sys := cdom.New(cdom.WithRenderer(&lazyAttrRenderer{}), cdom.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
		count, err := sys.Signal(1, cdom.WithName("count"))
		require.NoError(t, err)
		_, err = sys.MountAttr("title", "n=_(/count)", nil)
		require.NoError(t, err)

		plain := &plainRenderer{}
		sys.SetRenderer(plain)
		require.NoError(t, count.Set(2))
		assert.Equal(t, 0, plain.materialized)
		assert.Contains(t, logs.String(), "renderer cannot bind attributes")
		assert.Contains(t, logs.String(), "attr=title")
	})
}
