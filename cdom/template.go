package cdom

import (
	"regexp"
	"strings"
)

// Segment is one embedded expression inside template text. Sigil is '_' for
// state expressions (written _( or =( ) and '$' for queries ($( or #( ).
type Segment struct {
	Sigil byte
	Expr  string
	Start int
	End   int
}

func (seg Segment) Full(text string) string { return text[seg.Start:seg.End] }

// ExtractExpressions finds every balanced sigil( ... ) group in text.
// Unbalanced groups are left as literal text.
func ExtractExpressions(text string) []Segment {
	var out []Segment
	for i := 0; i+1 < len(text); {
		c := text[i]
		if (c != '$' && c != '_' && c != '#' && c != '=') || text[i+1] != '(' {
			i++
			continue
		}
		sigil := c
		switch c {
		case '#':
			sigil = '$'
		case '=':
			sigil = '_'
		}
		start := i
		depth := 1
		j := i + 2
		for ; j < len(text) && depth > 0; j++ {
			switch text[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
		}
		if depth != 0 {
			i++
			continue
		}
		out = append(out, Segment{Sigil: sigil, Expr: text[i+2 : j-1], Start: start, End: j})
		i = j
	}
	return out
}

// HasExpressions is a cheap check for any sigil group.
func HasExpressions(text string) bool {
	for _, sigil := range []string{"_(", "=(", "$(", "#("} {
		if strings.Contains(text, sigil) {
			return true
		}
	}
	return false
}

var helperCallPattern = regexp.MustCompile(`\b([A-Za-z_][\w.]*)\s*\(`)

var notHelpers = map[string]bool{
	"_": true, "$": true, "if": true, "else": true, "for": true, "while": true,
	"switch": true, "typeof": true, "instanceof": true,
}

// segments caches extraction per System and starts loading the helpers a
// state expression calls so they are ready by first evaluation.
func (s *System) segments(text string) []Segment {
	if segs, ok := s.templateCache[text]; ok {
		return segs
	}
	segs := ExtractExpressions(text)
	for _, seg := range segs {
		if seg.Sigil != '_' {
			continue
		}
		for _, m := range helperCallPattern.FindAllStringSubmatch(seg.Expr, -1) {
			if !notHelpers[m[1]] {
				if _, found := s.FindInScope(0, m[1]); !found {
					s.GetHelper(m[1])
				}
			}
		}
	}
	s.templateCache[text] = segs
	return segs
}

// Interpolate replaces every sigil group in text with its value. Text that
// is exactly one group yields the raw value instead of a string.
func (s *System) Interpolate(text string, ctx *Context, event any) any {
	segs := s.segments(text)
	if len(segs) == 0 {
		return text
	}
	if len(segs) == 1 && segs[0].Start == 0 && segs[0].End == len(text) {
		return s.segmentValue(segs[0], ctx, event)
	}
	var sb strings.Builder
	last := 0
	for _, seg := range segs {
		sb.WriteString(text[last:seg.Start])
		sb.WriteString(Stringify(s.segmentValue(seg, ctx, event)))
		last = seg.End
	}
	sb.WriteString(text[last:])
	return sb.String()
}

func (s *System) segmentValue(seg Segment, ctx *Context, event any) any {
	if seg.Sigil == '$' {
		return s.query(seg.Expr, ctx)
	}
	return s.Eval(seg.Expr, ctx, event)
}
