package cdom

import (
	"fmt"
	"strconv"
	"strings"
)

// Path addresses a location inside a container. Segments are map keys or
// decimal array indexes.
type Path []string

// ParsePath splits on '/' and '.', accepting a leading '/' or './'. Any '..'
// is rejected: names bubble up the scope chain implicitly, never explicitly.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "..") {
		return nil, fmt.Errorf("path %q: %w", s, ErrParentNavigation)
	}
	s = strings.TrimPrefix(s, "./")
	s = strings.TrimPrefix(s, "/")
	return strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '.' }), nil
}

// MustParsePath panics on an invalid path.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

func (p Path) dotted(prefix string) string {
	s := prefix
	for _, seg := range p {
		if _, err := strconv.Atoi(seg); err == nil {
			s += "[" + seg + "]"
			continue
		}
		if s != "" {
			s += "."
		}
		s += seg
	}
	return s
}

func lookupKey(v any, key string) (any, bool) {
	switch x := v.(type) {
	case map[string]any:
		e, ok := x[key]
		return e, ok
	case []any:
		if key == "length" {
			return float64(len(x)), true
		}
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(x) {
			return nil, false
		}
		return x[i], true
	case string:
		if key == "length" {
			return float64(len([]rune(x))), true
		}
		r := []rune(x)
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(r) {
			return nil, false
		}
		return string(r[i]), true
	}
	return nil, false
}

func getIn(root any, p Path) (any, bool) {
	cur := root
	for _, seg := range p {
		next, ok := lookupKey(Unwrap(cur), seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// setIn assigns v at p inside root, creating intermediate objects. It mutates
// root in place and returns the (possibly reallocated) root.
func setIn(root any, p Path, v any) (any, error) {
	if len(p) == 0 {
		return v, nil
	}
	key := p[0]
	switch c := root.(type) {
	case map[string]any:
		child := c[key]
		if len(p) > 1 && child == nil {
			child = map[string]any{}
		}
		nv, err := setIn(child, p[1:], v)
		if err != nil {
			return root, err
		}
		c[key] = nv
		return c, nil
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i > len(c) {
			return root, fmt.Errorf("%s: %w", key, ErrIndexOutOfRange)
		}
		if i == len(c) {
			c = append(c, nil)
		}
		child := c[i]
		if len(p) > 1 && child == nil {
			child = map[string]any{}
		}
		nv, err := setIn(child, p[1:], v)
		if err != nil {
			return root, err
		}
		c[i] = nv
		return c, nil
	}
	return root, fmt.Errorf("%s: %w", key, ErrNotContainer)
}

// deleteIn removes the location at p. Array slots are truncated only when
// they are the last element so indexes stay stable.
func deleteIn(root any, p Path) any {
	if len(p) == 0 {
		return nil
	}
	if len(p) > 1 {
		child, ok := lookupKey(root, p[0])
		if !ok {
			return root
		}
		nv := deleteIn(child, p[1:])
		out, _ := setIn(root, p[:1], nv)
		return out
	}
	switch c := root.(type) {
	case map[string]any:
		delete(c, p[0])
		return c
	case []any:
		i, err := strconv.Atoi(p[0])
		if err == nil && i == len(c)-1 {
			return c[:i]
		}
	}
	return root
}
