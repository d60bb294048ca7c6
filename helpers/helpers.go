// Package helpers is the built-in helper library: operator helpers the
// structural aliases resolve to plus spreadsheet-style functions.
package helpers

import (
	"math"
	"slices"

	"github.com/delaneyj/cdom/cdom"
)

type def struct {
	name string
	fn   cdom.HelperFunc
	opts []cdom.HelperOption
}

var library []def

func add(name string, fn cdom.HelperFunc, opts ...cdom.HelperOption) {
	library = append(library, def{name: name, fn: fn, opts: opts})
}

// Register installs every built-in helper on sys. Helpers already present
// under the same name are replaced.
func Register(sys *cdom.System) {
	for _, d := range library {
		sys.Helper(d.name, d.fn, d.opts...)
	}
}

// Names lists the built-in helper names in sorted order.
func Names() []string {
	names := make([]string, len(library))
	for i, d := range library {
		names[i] = d.name
	}
	slices.Sort(names)
	return names
}

func arg(args []any, i int) any {
	if i < len(args) {
		return cdom.Unwrap(args[i])
	}
	return nil
}

func argOr(args []any, i int, fallback any) any {
	if i < len(args) && args[i] != nil {
		return cdom.Unwrap(args[i])
	}
	return fallback
}

// flatten spreads nested arrays into one list.
func flatten(args []any) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		switch x := cdom.Unwrap(a).(type) {
		case []any:
			out = append(out, flatten(x)...)
		default:
			out = append(out, x)
		}
	}
	return out
}

func numberOrZero(v any) float64 {
	f := cdom.ToNumber(v)
	if math.IsNaN(f) {
		return 0
	}
	return f
}

// callable resolves fn to a helper. Strings name a registered helper.
func callable(c *cdom.Call, fn any) any {
	if name, ok := fn.(string); ok {
		if h, status := c.Sys.GetHelper(name); status == cdom.HelperReady {
			return h
		}
	}
	return fn
}
