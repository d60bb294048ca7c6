package cdom_test

import (
	"errors"
	"testing"

	"github.com/delaneyj/cdom/cdom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStructuralSystem(t *testing.T) (*cdom.System, *cdom.State) {
	sys := cdom.New()
	sys.Helper("add", func(c *cdom.Call, args []any) (any, error) {
		total := 0.0
		for _, a := range args {
			total += cdom.ToNumber(a)
		}
		return total, nil
	})
	sys.Helper("double", double())
	sys.Helper("increment", func(c *cdom.Call, args []any) (any, error) {
		target, ok := args[0].(cdom.Cell)
		if !ok {
			return nil, errors.New("not a cell")
		}
		by := 1.0
		if len(args) > 1 {
			by = cdom.ToNumber(args[1])
		}
		next := cdom.ToNumber(target.Get()) + by
		return next, target.Set(next)
	}, cdom.HelperMutates())
	sys.Helper("greet", func(c *cdom.Call, args []any) (any, error) {
		return "hello " + cdom.Stringify(c.Named["name"]), nil
	})
	sys.Helper("quote", func(c *cdom.Call, args []any) (any, error) {
		return args[0], nil
	}, cdom.HelperSkipResolution())
	sys.Helper("boom", func(c *cdom.Call, args []any) (any, error) {
		return nil, errors.New("kaboom")
	})
	sys.Helper("panics", func(c *cdom.Call, args []any) (any, error) {
		panic("unreachable state")
	})

	app, err := sys.State(map[string]any{
		"count": 1,
		"user":  map[string]any{"name": "Ada"},
	}, cdom.WithName("app"))
	require.NoError(t, err)
	return sys, app
}

func TestEvaluateStructural(t *testing.T) {
	sys, app := newStructuralSystem(t)

	t.Run("scalars and arrays", func(t *testing.T) {
		assert.Equal(t, "plain", sys.EvaluateStructural("plain", nil, nil))
		assert.Equal(t, 3.0, sys.EvaluateStructural(3.0, nil, nil))
		assert.Equal(t, []any{2.0, "x"}, sys.EvaluateStructural([]any{
			map[string]any{"=": "1 + 1"}, "x",
		}, nil, nil))
	})

	t.Run("macro strings resolve", func(t *testing.T) {
		ctx := &cdom.Context{Macro: map[string]any{"price": 3, "item": map[string]any{"qty": 2}}}
		assert.Equal(t, 3.0, sys.EvaluateStructural("@price", ctx, nil))
		assert.Equal(t, 2.0, sys.EvaluateStructural("@item/qty", ctx, nil))
	})

	t.Run("cells unwrap", func(t *testing.T) {
		name, _ := sys.Signal("Grace")
		assert.Equal(t, "Grace", sys.EvaluateStructural(name, nil, nil))
	})

	t.Run("expression key", func(t *testing.T) {
		assert.Equal(t, 2.0, sys.EvaluateStructural(map[string]any{"=": "/app/count + 1"}, nil, nil))
	})

	t.Run("operator alias", func(t *testing.T) {
		assert.Equal(t, 6.0, sys.EvaluateStructural(map[string]any{"+": []any{1, 2, 3}}, nil, nil))
		assert.Equal(t, 3.0, sys.EvaluateStructural(map[string]any{"+": []any{"/app/count", 2}}, nil, nil))
	})

	t.Run("named helper with single argument", func(t *testing.T) {
		assert.Equal(t, 8.0, sys.EvaluateStructural(map[string]any{"=double": 4}, nil, nil))
	})

	t.Run("nested descriptors evaluate", func(t *testing.T) {
		desc := map[string]any{"=double": []any{map[string]any{"+": []any{2, 3}}}}
		assert.Equal(t, 10.0, sys.EvaluateStructural(desc, nil, nil))
		assert.Equal(t, 10.0, sys.EvaluateStructural(map[string]any{"=double": map[string]any{"=": "2 + 3"}}, nil, nil))
	})

	t.Run("named arguments", func(t *testing.T) {
		desc := map[string]any{"=greet": map[string]any{"name": "/app/user/name", "unused": 1}}
		assert.Equal(t, "hello Ada", sys.EvaluateStructural(desc, nil, nil))
	})

	t.Run("skip resolution passes the raw descriptor", func(t *testing.T) {
		raw := map[string]any{"=": "1 + 1"}
		assert.Equal(t, raw, sys.EvaluateStructural(map[string]any{"=quote": raw}, nil, nil))
	})

	t.Run("mutating helpers receive live handles", func(t *testing.T) {
		out := sys.EvaluateStructural(map[string]any{"=increment": []any{"/app/count", 5}}, nil, nil)
		assert.Equal(t, 6.0, out)
		count, _ := app.GetPath("count")
		assert.Equal(t, 6.0, count)
	})

	t.Run("increment operator passes handles", func(t *testing.T) {
		sys.EvaluateStructural(map[string]any{"++": "/app/count"}, nil, nil)
		count, _ := app.GetPath("count")
		assert.Equal(t, 7.0, count)
	})

	t.Run("context references", func(t *testing.T) {
		ctx := &cdom.Context{This: map[string]any{"n": 4}}
		assert.Equal(t, 8.0, sys.EvaluateStructural(map[string]any{"=double": "$this/n"}, ctx, nil))
		assert.Equal(t, 2.0, sys.EvaluateStructural(map[string]any{"=double": "$event/n"}, ctx, map[string]any{"n": 1}))
	})

	t.Run("template objects resolve every property", func(t *testing.T) {
		desc := map[string]any{
			"total": map[string]any{"+": []any{1, 1}},
			"name":  "/app/user/name",
			"label": "fixed",
		}
		assert.Equal(t, map[string]any{"total": 2.0, "name": "Ada", "label": "fixed"},
			sys.EvaluateStructural(desc, nil, nil))
	})

	t.Run("failures are markers", func(t *testing.T) {
		assert.Equal(t, cdom.UndefinedMarker("nope"), sys.EvaluateStructural(map[string]any{"=nope": []any{1}}, nil, nil))
		assert.Equal(t, cdom.Marker("[boom error: kaboom]"), sys.EvaluateStructural(map[string]any{"=boom": []any{}}, nil, nil))
		assert.Equal(t, cdom.Marker("[panics error: unreachable state]"), sys.EvaluateStructural(map[string]any{"=panics": []any{}}, nil, nil))
		out := sys.EvaluateStructural(map[string]any{"who": "/ghost", "n": 1}, nil, nil)
		assert.Equal(t, cdom.UnknownMarker("ghost"), out.(map[string]any)["who"])
	})

	t.Run("structural binding follows state", func(t *testing.T) {
		var got any
		sys.BindStructural(map[string]any{"=double": "/app/count"}, nil, func(v any) { got = v })
		require.NoError(t, app.SetPath("count", 10))
		assert.Equal(t, 20.0, got)
	})
}

func TestAliasesAreConfigurable(t *testing.T) {
	sys := cdom.New(cdom.WithAliases(map[string]string{"x": "double"}))
	sys.Helper("double", double())
	name, ok := sys.Alias("x")
	assert.True(t, ok)
	assert.Equal(t, "double", name)
	assert.Equal(t, 4.0, sys.EvaluateStructural(map[string]any{"x": 2}, nil, nil))
}
