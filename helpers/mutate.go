package helpers

import (
	"maps"
	"slices"

	"github.com/delaneyj/cdom/cdom"
)

// Mutators receive the target as a cdom.Cell when it was written as a path.
// Any other target is read as empty and left untouched.

func init() {
	add("set", func(c *cdom.Call, args []any) (any, error) {
		v := arg(args, 1)
		return v, assign(args, v)
	}, cdom.HelperMutates())
	add("assign", func(c *cdom.Call, args []any) (any, error) {
		next := map[string]any{}
		if cur, ok := current(args).(map[string]any); ok {
			maps.Copy(next, cur)
		}
		if patch, ok := arg(args, 1).(map[string]any); ok {
			maps.Copy(next, patch)
		}
		return next, assign(args, next)
	}, cdom.HelperMutates())
	add("increment", func(c *cdom.Call, args []any) (any, error) {
		next := numberOf(current(args)) + cdom.ToNumber(argOr(args, 1, 1.0))
		return next, assign(args, next)
	}, cdom.HelperMutates())
	add("decrement", func(c *cdom.Call, args []any) (any, error) {
		next := numberOf(current(args)) - cdom.ToNumber(argOr(args, 1, 1.0))
		return next, assign(args, next)
	}, cdom.HelperMutates())
	add("toggle", func(c *cdom.Call, args []any) (any, error) {
		next := !cdom.Truthy(current(args))
		return next, assign(args, next)
	}, cdom.HelperMutates())
	add("clear", func(c *cdom.Call, args []any) (any, error) {
		var next any
		switch current(args).(type) {
		case []any:
			next = []any{}
		case map[string]any:
			next = map[string]any{}
		}
		return next, assign(args, next)
	}, cdom.HelperMutates())
	add("push", func(c *cdom.Call, args []any) (any, error) {
		cur := current(args)
		list, ok := cur.([]any)
		if !ok {
			if cur != nil {
				return cur, nil
			}
			list = []any{}
		}
		next := append(slices.Clone(list), arg(args, 1))
		return next, assign(args, next)
	}, cdom.HelperMutates())
	// pop hands back the array as it was before the removal.
	add("pop", func(c *cdom.Call, args []any) (any, error) {
		list, ok := current(args).([]any)
		if !ok || len(list) == 0 {
			return current(args), nil
		}
		return list, assign(args, slices.Clone(list[:len(list)-1]))
	}, cdom.HelperMutates())
}

func target(args []any) (cdom.Cell, bool) {
	if len(args) == 0 {
		return nil, false
	}
	cell, ok := args[0].(cdom.Cell)
	return cell, ok
}

func current(args []any) any {
	if cell, ok := target(args); ok {
		return cdom.Normalize(cell.Get())
	}
	return nil
}

func assign(args []any, v any) error {
	if cell, ok := target(args); ok {
		return cell.Set(v)
	}
	return nil
}

func numberOf(v any) float64 {
	if v == nil {
		return 0
	}
	return cdom.ToNumber(v)
}
