package helpers

import "github.com/delaneyj/cdom/cdom"

func init() {
	add("eq", func(c *cdom.Call, args []any) (any, error) {
		return cdom.LooseEqual(arg(args, 0), arg(args, 1)), nil
	})
	add("neq", func(c *cdom.Call, args []any) (any, error) {
		return !cdom.LooseEqual(arg(args, 0), arg(args, 1)), nil
	})
	for name, op := range map[string]string{"lt": "<", "gt": ">", "lte": "<=", "gte": ">="} {
		op := op
		add(name, func(c *cdom.Call, args []any) (any, error) {
			return cdom.Compare(op, arg(args, 0), arg(args, 1)), nil
		})
	}
	// and/or return the deciding operand.
	add("and", func(c *cdom.Call, args []any) (any, error) {
		var last any = true
		for i := range args {
			last = arg(args, i)
			if !cdom.Truthy(last) {
				return last, nil
			}
		}
		return last, nil
	})
	add("or", func(c *cdom.Call, args []any) (any, error) {
		var last any = false
		for i := range args {
			last = arg(args, i)
			if cdom.Truthy(last) {
				return last, nil
			}
		}
		return last, nil
	})
	add("not", func(c *cdom.Call, args []any) (any, error) {
		return !cdom.Truthy(arg(args, 0)), nil
	})
	add("if", func(c *cdom.Call, args []any) (any, error) {
		if cdom.Truthy(arg(args, 0)) {
			return arg(args, 1), nil
		}
		return arg(args, 2), nil
	})
	add("coalesce", func(c *cdom.Call, args []any) (any, error) {
		for i := range args {
			if v := arg(args, i); v != nil {
				return v, nil
			}
		}
		return nil, nil
	})
	// switch(value, case1, result1, ..., default)
	add("switch", func(c *cdom.Call, args []any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		v, rest := arg(args, 0), args[1:]
		for i := 0; i+1 < len(rest); i += 2 {
			if cdom.StrictEqual(v, cdom.Unwrap(rest[i])) {
				return cdom.Unwrap(rest[i+1]), nil
			}
		}
		if len(rest)%2 == 1 {
			return cdom.Unwrap(rest[len(rest)-1]), nil
		}
		return nil, nil
	})
}
