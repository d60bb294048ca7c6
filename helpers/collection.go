package helpers

import (
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/delaneyj/cdom/cdom"
)

func init() {
	length := func(c *cdom.Call, args []any) (any, error) {
		switch x := arg(args, 0).(type) {
		case []any:
			return float64(len(x)), nil
		case string:
			return float64(utf8.RuneCountInString(x)), nil
		case map[string]any:
			return float64(len(x)), nil
		}
		return 0.0, nil
	}
	add("length", length)
	add("len", length)

	add("includes", func(c *cdom.Call, args []any) (any, error) {
		from, _ := cdom.ToInt(argOr(args, 2, 0.0))
		switch x := arg(args, 0).(type) {
		case []any:
			start, _ := bounds(len(x), from, len(x))
			return slices.ContainsFunc(x[start:], func(v any) bool {
				return cdom.StrictEqual(v, arg(args, 1))
			}), nil
		case string:
			runes := []rune(x)
			start, _ := bounds(len(runes), from, len(runes))
			return strings.Contains(string(runes[start:]), cdom.Stringify(arg(args, 1))), nil
		}
		return false, nil
	})
	add("slice", func(c *cdom.Call, args []any) (any, error) {
		v := arg(args, 0)
		n := 0
		switch x := v.(type) {
		case []any:
			n = len(x)
		case string:
			n = utf8.RuneCountInString(x)
		default:
			return v, nil
		}
		from, _ := cdom.ToInt(argOr(args, 1, 0.0))
		to, _ := cdom.ToInt(argOr(args, 2, float64(n)))
		start, end := bounds(n, from, to)
		if x, ok := v.([]any); ok {
			return slices.Clone(x[start:end]), nil
		}
		return string([]rune(v.(string))[start:end]), nil
	})
	add("keys", func(c *cdom.Call, args []any) (any, error) {
		switch x := arg(args, 0).(type) {
		case map[string]any:
			keys := cdom.SortedKeys(x)
			out := make([]any, len(keys))
			for i, k := range keys {
				out[i] = k
			}
			return out, nil
		case []any:
			out := make([]any, len(x))
			for i := range x {
				out[i] = strconv.Itoa(i)
			}
			return out, nil
		}
		return []any{}, nil
	})
	add("index", func(c *cdom.Call, args []any) (any, error) {
		switch x := arg(args, 0).(type) {
		case []any:
			i, ok := cdom.ToInt(arg(args, 1))
			if !ok || i < 0 || i >= len(x) {
				return nil, nil
			}
			return x[i], nil
		case map[string]any:
			return x[cdom.Stringify(arg(args, 1))], nil
		}
		return nil, nil
	})
	add("isempty", func(c *cdom.Call, args []any) (any, error) {
		switch x := arg(args, 0).(type) {
		case []any:
			return len(x) == 0, nil
		case map[string]any:
			return len(x) == 0, nil
		default:
			return !cdom.Truthy(x), nil
		}
	})
	add("unique", func(c *cdom.Call, args []any) (any, error) {
		list, ok := arg(args, 0).([]any)
		if !ok {
			return []any{arg(args, 0)}, nil
		}
		seen := mapset.NewThreadUnsafeSet[any]()
		out := make([]any, 0, len(list))
		for _, v := range list {
			switch v.(type) {
			case []any, map[string]any:
				out = append(out, v)
				continue
			}
			if seen.Add(v) {
				out = append(out, v)
			}
		}
		return out, nil
	})
	add("flat", func(c *cdom.Call, args []any) (any, error) {
		list, ok := arg(args, 0).([]any)
		if !ok {
			return []any{arg(args, 0)}, nil
		}
		depth, _ := cdom.ToInt(argOr(args, 1, 1.0))
		return flatDepth(list, depth), nil
	})
	add("sort", func(c *cdom.Call, args []any) (any, error) {
		list, ok := arg(args, 0).([]any)
		if !ok {
			return []any{}, nil
		}
		out := slices.Clone(list)
		fn := arg(args, 1)
		if fn == nil {
			slices.SortStableFunc(out, func(a, b any) int {
				return strings.Compare(cdom.Stringify(a), cdom.Stringify(b))
			})
			return out, nil
		}
		fn = callable(c, fn)
		var err error
		slices.SortStableFunc(out, func(a, b any) int {
			if err != nil {
				return 0
			}
			var r any
			r, err = c.Apply(fn, a, b)
			switch n := cdom.ToNumber(r); {
			case n < 0:
				return -1
			case n > 0:
				return 1
			}
			return 0
		})
		return out, err
	})
	add("filter", func(c *cdom.Call, args []any) (any, error) {
		out := []any{}
		err := each(c, args, func(v, r any) bool {
			if cdom.Truthy(r) {
				out = append(out, v)
			}
			return true
		})
		return out, err
	})
	add("map", func(c *cdom.Call, args []any) (any, error) {
		out := []any{}
		err := each(c, args, func(v, r any) bool {
			out = append(out, r)
			return true
		})
		return out, err
	})
	add("find", func(c *cdom.Call, args []any) (any, error) {
		var found any
		err := each(c, args, func(v, r any) bool {
			if cdom.Truthy(r) {
				found = v
				return false
			}
			return true
		})
		return found, err
	})
	add("some", func(c *cdom.Call, args []any) (any, error) {
		hit := false
		err := each(c, args, func(v, r any) bool {
			hit = cdom.Truthy(r)
			return !hit
		})
		return hit, err
	})
	add("every", func(c *cdom.Call, args []any) (any, error) {
		if _, ok := arg(args, 0).([]any); !ok {
			return false, nil
		}
		all := true
		err := each(c, args, func(v, r any) bool {
			all = cdom.Truthy(r)
			return all
		})
		return all, err
	})
	add("xlookup", func(c *cdom.Call, args []any) (any, error) {
		keys, ok1 := arg(args, 1).([]any)
		values, ok2 := arg(args, 2).([]any)
		notFound := arg(args, 3)
		if !ok1 || !ok2 {
			return notFound, nil
		}
		i := slices.IndexFunc(keys, func(k any) bool { return cdom.StrictEqual(k, arg(args, 0)) })
		if i < 0 || i >= len(values) {
			return notFound, nil
		}
		return values[i], nil
	})
}

// each applies the callback helper in args[1] to every element of the array
// in args[0] with (value, index). visit stops the walk by returning false.
func each(c *cdom.Call, args []any, visit func(v, result any) bool) error {
	list, ok := arg(args, 0).([]any)
	if !ok {
		return nil
	}
	fn := callable(c, arg(args, 1))
	for i, v := range list {
		r, err := c.Apply(fn, v, float64(i))
		if err != nil {
			return err
		}
		if !visit(v, r) {
			return nil
		}
	}
	return nil
}

// bounds resolves slice-style start and end, counting negatives from the end.
func bounds(n, from, to int) (int, int) {
	clamp := func(i int) int {
		if i < 0 {
			i += n
		}
		return min(max(i, 0), n)
	}
	start, end := clamp(from), clamp(to)
	if end < start {
		end = start
	}
	return start, end
}

func flatDepth(list []any, depth int) []any {
	out := make([]any, 0, len(list))
	for _, v := range list {
		if inner, ok := v.([]any); ok && depth > 0 {
			out = append(out, flatDepth(inner, depth-1)...)
			continue
		}
		out = append(out, v)
	}
	return out
}
