package cdom

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Schema is the JSON-schema subset cells validate against. Ref names a
// schema registered with DefineSchema.
type Schema struct {
	Ref        string
	Type       string
	MinLength  *int
	MaxLength  *int
	Pattern    *regexp.Regexp
	Minimum    *float64
	Maximum    *float64
	Required   []string
	Properties map[string]*Schema
	Items      *Schema
	MinItems   *int
	MaxItems   *int
	Enum       []any
	Const      any
	HasConst   bool
}

// ParseSchema reads a schema from its JSON-shaped definition.
func ParseSchema(def map[string]any) (*Schema, error) {
	sc := &Schema{}
	for k, raw := range def {
		v := Normalize(raw)
		switch k {
		case "$ref":
			sc.Ref, _ = v.(string)
		case "type":
			t, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("schema type: expected string, got %s", TypeName(v))
			}
			sc.Type = t
		case "minLength":
			sc.MinLength = intPtr(v)
		case "maxLength":
			sc.MaxLength = intPtr(v)
		case "minItems":
			sc.MinItems = intPtr(v)
		case "maxItems":
			sc.MaxItems = intPtr(v)
		case "minimum":
			f := ToNumber(v)
			sc.Minimum = &f
		case "maximum":
			f := ToNumber(v)
			sc.Maximum = &f
		case "pattern":
			p, _ := v.(string)
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("schema pattern %q: %w", p, err)
			}
			sc.Pattern = re
		case "required":
			list, _ := v.([]any)
			for _, r := range list {
				sc.Required = append(sc.Required, Stringify(r))
			}
		case "properties":
			props, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("schema properties: expected object")
			}
			sc.Properties = make(map[string]*Schema, len(props))
			for name, p := range props {
				pm, ok := p.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("schema property %q: expected object", name)
				}
				child, err := ParseSchema(pm)
				if err != nil {
					return nil, fmt.Errorf("schema property %q: %w", name, err)
				}
				sc.Properties[name] = child
			}
		case "items":
			im, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("schema items: expected object")
			}
			child, err := ParseSchema(im)
			if err != nil {
				return nil, fmt.Errorf("schema items: %w", err)
			}
			sc.Items = child
		case "enum":
			sc.Enum, _ = v.([]any)
		case "const":
			sc.Const, sc.HasConst = v, true
		}
	}
	return sc, nil
}

func intPtr(v any) *int {
	i, ok := ToInt(v)
	if !ok {
		return nil
	}
	return &i
}

// DefineSchema registers a named schema.
func (s *System) DefineSchema(name string, sc *Schema) {
	s.schemas[name] = sc
}

// DefineSchemaMap parses and registers a named schema.
func (s *System) DefineSchemaMap(name string, def map[string]any) error {
	sc, err := ParseSchema(def)
	if err != nil {
		return fmt.Errorf("schema %q: %w", name, err)
	}
	s.DefineSchema(name, sc)
	return nil
}

// Validate checks v against sc, resolving named references through the
// System. Unknown references validate.
func (s *System) Validate(v any, sc *Schema) []Violation {
	var out []Violation
	s.validate(Normalize(v), sc, "", &out, 0)
	return out
}

func (s *System) validate(v any, sc *Schema, path string, out *[]Violation, depth int) {
	if sc == nil || depth > 64 {
		return
	}
	if sc.Ref != "" {
		ref, ok := s.schemas[sc.Ref]
		if !ok {
			return
		}
		s.validate(v, ref, path, out, depth+1)
		return
	}
	add := func(p, keyword, msg string) {
		*out = append(*out, Violation{Path: p, Keyword: keyword, Message: msg})
	}

	actual := TypeName(v)
	if sc.Type != "" && sc.Type != actual {
		f, isNum := v.(float64)
		switch {
		case sc.Type == "integer" && isNum && f == math.Trunc(f) && !math.IsInf(f, 0):
		default:
			add(path, "type", fmt.Sprintf("Expected %s, got %s", sc.Type, actual))
		}
	}

	switch x := v.(type) {
	case string:
		n := len([]rune(x))
		if sc.MinLength != nil && n < *sc.MinLength {
			add(path, "minLength", "")
		}
		if sc.MaxLength != nil && n > *sc.MaxLength {
			add(path, "maxLength", "")
		}
		if sc.Pattern != nil && !sc.Pattern.MatchString(x) {
			add(path, "pattern", "")
		}
	case float64:
		if sc.Minimum != nil && x < *sc.Minimum {
			add(path, "minimum", "")
		}
		if sc.Maximum != nil && x > *sc.Maximum {
			add(path, "maximum", "")
		}
	case map[string]any:
		for _, key := range sc.Required {
			if _, ok := x[key]; !ok {
				add(joinKey(path, key), "required", "")
			}
		}
		for key, child := range sc.Properties {
			if e, ok := x[key]; ok {
				s.validate(e, child, joinKey(path, key), out, depth+1)
			}
		}
	case []any:
		if sc.MinItems != nil && len(x) < *sc.MinItems {
			add(path, "minItems", "")
		}
		if sc.MaxItems != nil && len(x) > *sc.MaxItems {
			add(path, "maxItems", "")
		}
		if sc.Items != nil {
			for i, e := range x {
				s.validate(e, sc.Items, path+"["+strconv.Itoa(i)+"]", out, depth+1)
			}
		}
	}

	if sc.Enum != nil {
		found := false
		for _, e := range sc.Enum {
			if StrictEqual(e, v) {
				found = true
				break
			}
		}
		if !found {
			add(path, "enum", "")
		}
	}
	if sc.HasConst && !StrictEqual(sc.Const, v) {
		add(path, "const", "")
	}
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
