package helpers

import (
	"regexp"
	"strings"

	"github.com/delaneyj/cdom/cdom"
)

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[\s_-]+`)
)

func init() {
	add("upper", func(c *cdom.Call, args []any) (any, error) {
		return strings.ToUpper(cdom.Stringify(arg(args, 0))), nil
	})
	add("lower", func(c *cdom.Call, args []any) (any, error) {
		return strings.ToLower(cdom.Stringify(arg(args, 0))), nil
	})
	add("trim", func(c *cdom.Call, args []any) (any, error) {
		return strings.TrimSpace(cdom.Stringify(arg(args, 0))), nil
	})
	add("left", func(c *cdom.Call, args []any) (any, error) {
		text := []rune(cdom.Stringify(arg(args, 0)))
		n, _ := cdom.ToInt(argOr(args, 1, 1.0))
		return substring(text, 0, n), nil
	})
	add("right", func(c *cdom.Call, args []any) (any, error) {
		text := []rune(cdom.Stringify(arg(args, 0)))
		n, _ := cdom.ToInt(argOr(args, 1, 1.0))
		return substring(text, len(text)-n, len(text)), nil
	})
	// mid is 1-indexed.
	add("mid", func(c *cdom.Call, args []any) (any, error) {
		text := []rune(cdom.Stringify(arg(args, 0)))
		start, _ := cdom.ToInt(arg(args, 1))
		n, _ := cdom.ToInt(arg(args, 2))
		return substring(text, start-1, start-1+n), nil
	})
	add("join", func(c *cdom.Call, args []any) (any, error) {
		sep := cdom.Stringify(argOr(args, 1, ","))
		list, ok := arg(args, 0).([]any)
		if !ok {
			return cdom.Stringify(arg(args, 0)), nil
		}
		return joinValues(list, sep), nil
	})
	add("textjoin", func(c *cdom.Call, args []any) (any, error) {
		sep := cdom.Stringify(arg(args, 0))
		ignoreEmpty := cdom.Truthy(arg(args, 1))
		var items []any
		if len(args) > 2 {
			for _, v := range flatten(args[2:]) {
				if ignoreEmpty && (v == nil || v == "") {
					continue
				}
				items = append(items, v)
			}
		}
		return joinValues(items, sep), nil
	})
	add("toslugcase", func(c *cdom.Call, args []any) (any, error) {
		s := strings.ToLower(cdom.Stringify(arg(args, 0)))
		s = slugStrip.ReplaceAllString(s, "")
		s = slugCollapse.ReplaceAllString(s, "-")
		return strings.Trim(s, "-"), nil
	})
}

// substring clamps both bounds into the text and swaps them when reversed.
func substring(text []rune, from, to int) string {
	from = min(max(from, 0), len(text))
	to = min(max(to, 0), len(text))
	if from > to {
		from, to = to, from
	}
	return string(text[from:to])
}

func joinValues(list []any, sep string) string {
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = cdom.Stringify(v)
	}
	return strings.Join(parts, sep)
}
