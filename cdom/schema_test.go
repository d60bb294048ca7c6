package cdom_test

import (
	"testing"

	"github.com/delaneyj/cdom/cdom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	sys := cdom.New()
	sc, err := cdom.ParseSchema(map[string]any{
		"type":     "object",
		"required": []any{"name", "age"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "minLength": 2, "pattern": "^[A-Z]"},
			"age":  map[string]any{"type": "integer", "minimum": 0, "maximum": 150},
			"tags": map[string]any{
				"type":     "array",
				"maxItems": 2,
				"items":    map[string]any{"enum": []any{"a", "b"}},
			},
			"kind": map[string]any{"const": "person"},
		},
	})
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		v := map[string]any{"name": "Ada", "age": 36, "tags": []any{"a"}, "kind": "person"}
		assert.Empty(t, sys.Validate(v, sc))
	})

	t.Run("violations carry paths", func(t *testing.T) {
		v := map[string]any{"name": "a", "age": 36.5, "tags": []any{"a", "c", "b"}, "kind": "robot"}
		got := sys.Validate(v, sc)
		paths := make([]string, len(got))
		for i, vi := range got {
			paths[i] = vi.String()
		}
		assert.ElementsMatch(t, []string{
			"name: failed minLength",
			"name: failed pattern",
			"age: failed type (Expected integer, got number)",
			"tags: failed maxItems",
			"tags[1]: failed enum",
			"kind: failed const",
		}, paths)
	})

	t.Run("missing required", func(t *testing.T) {
		got := sys.Validate(map[string]any{"name": "Ada"}, sc)
		require.Len(t, got, 1)
		assert.Equal(t, "age: failed required", got[0].String())
	})

	t.Run("root type", func(t *testing.T) {
		got := sys.Validate("nope", sc)
		require.Len(t, got, 1)
		assert.Equal(t, "root: failed type (Expected object, got string)", got[0].String())
	})

	t.Run("strings count runes", func(t *testing.T) {
		short, err := cdom.ParseSchema(map[string]any{"type": "string", "maxLength": 2})
		require.NoError(t, err)
		assert.Empty(t, sys.Validate("éé", short))
	})

	t.Run("named references", func(t *testing.T) {
		require.NoError(t, sys.DefineSchemaMap("Positive", map[string]any{"type": "number", "minimum": 1}))
		ref := &cdom.Schema{Ref: "Positive"}
		assert.Empty(t, sys.Validate(3, ref))
		assert.Len(t, sys.Validate(0, ref), 1)
		assert.Empty(t, sys.Validate(0, &cdom.Schema{Ref: "Missing"}))
	})

	t.Run("bad definitions", func(t *testing.T) {
		_, err := cdom.ParseSchema(map[string]any{"pattern": "("})
		assert.Error(t, err)
		_, err = cdom.ParseSchema(map[string]any{"type": 3})
		assert.Error(t, err)
		_, err = cdom.ParseSchema(map[string]any{"properties": map[string]any{"x": 1}})
		assert.Error(t, err)
	})
}
