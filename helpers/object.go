package helpers

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/delaneyj/cdom/cdom"
)

func init() {
	add("object", func(c *cdom.Call, args []any) (any, error) {
		switch x := arg(args, 0).(type) {
		case map[string]any, []any:
			return x, nil
		case string:
			v, err := ParseLiteral(x)
			if err != nil {
				c.Sys.Logger().Warn("object: unparseable literal", "text", x, "err", err)
				return map[string]any{}, nil
			}
			return v, nil
		}
		return map[string]any{}, nil
	})
}

// ParseLiteral reads strict JSON, falling back to YAML flow syntax so
// unquoted keys and single-quoted strings are accepted: {name: 'Ada', n: 1}.
func ParseLiteral(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}
	if err := yaml.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("parse literal: %w", err)
	}
	return cdom.Normalize(v), nil
}
