// Package loader resolves helpers on demand from directories, HTTP and S3.
// A loaded helper is a macro: a descriptor evaluated with its arguments
// bound under @name.
package loader

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/delaneyj/cdom/cdom"
)

// Macro is the document a loaded helper is defined by.
type Macro struct {
	Params  []string `json:"params"`
	Mutates bool     `json:"mutates"`
	Body    any      `json:"body"`
}

// Path maps a helper name to its document path: lower-case with dots as
// directory separators, e.g. "Math.Clamp" -> "math/clamp.json".
func Path(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), ".", "/") + ".json"
}

// ParseMacro decodes a macro document into a helper named name.
func ParseMacro(name string, data []byte) (*cdom.Helper, error) {
	var m Macro
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("macro %s: %w", name, err)
	}
	if m.Body == nil {
		return nil, fmt.Errorf("macro %s: missing body", name)
	}
	return m.Helper(name), nil
}

// Helper turns the macro into a callable helper. Positional arguments bind
// to Params in order; a single named-argument object binds its keys.
func (m Macro) Helper(name string) *cdom.Helper {
	body := cdom.Normalize(m.Body)
	return &cdom.Helper{
		Name:    name,
		Mutates: m.Mutates,
		Fn: func(c *cdom.Call, args []any) (any, error) {
			bound := make(map[string]any, len(m.Params))
			if c.Named != nil {
				for k, v := range c.Named {
					bound[k] = v
				}
			} else {
				for i, p := range m.Params {
					if i < len(args) {
						bound[p] = args[i]
					} else {
						bound[p] = nil
					}
				}
			}
			ctx := &cdom.Context{Macro: bound}
			if c.Ctx != nil {
				ctx.Node, ctx.This = c.Ctx.Node, c.Ctx.This
			}
			return c.Sys.EvaluateStructural(body, ctx, c.Event), nil
		},
	}
}
