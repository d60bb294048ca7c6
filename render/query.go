package render

import (
	"fmt"
	"strings"

	"github.com/delaneyj/cdom/cdom"
)

// Selectors are a CSS subset: tag, *, #id, .class, [attr], [attr=value],
// descendant (space) and child (>) combinators, and comma-separated groups.

type attrTest struct {
	name   string
	value  string
	exists bool
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrTest
	// child is true when this compound must be the direct parent of the
	// next one.
	child bool
}

type selector []compound

func (c compound) matches(n *Node) bool {
	if n.Kind != ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && !strings.EqualFold(c.tag, n.Tag) {
		return false
	}
	if c.id != "" {
		if id, _ := n.Attr("id"); id != c.id {
			return false
		}
	}
	for _, cls := range c.classes {
		found := false
		for _, have := range n.Classes() {
			if have == cls {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := n.Attr(a.name)
		if !ok || (!a.exists && v != a.value) {
			return false
		}
	}
	return true
}

// matches checks the last compound against n and walks ancestors for the
// rest, backtracking across descendant combinators.
func (s selector) matches(n *Node) bool {
	return s.matchAt(n, len(s)-1)
}

func (s selector) matchAt(n *Node, i int) bool {
	if !s[i].matches(n) {
		return false
	}
	if i == 0 {
		return true
	}
	if s[i-1].child {
		p := n.Parent
		for p != nil && p.Kind == FragmentNode {
			p = p.Parent
		}
		return p != nil && s.matchAt(p, i-1)
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if s.matchAt(p, i-1) {
			return true
		}
	}
	return false
}

func parseSelectors(src string) ([]selector, error) {
	var out []selector
	for _, group := range strings.Split(src, ",") {
		sel, err := parseSelector(group)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

func parseSelector(src string) (selector, error) {
	var sel selector
	i := 0
	skip := func() {
		for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n') {
			i++
		}
	}
	skip()
	for i < len(src) {
		if src[i] == '>' {
			if len(sel) == 0 {
				return nil, fmt.Errorf("combinator without a left side")
			}
			sel[len(sel)-1].child = true
			i++
			skip()
			continue
		}
		c, next, err := parseCompound(src, i)
		if err != nil {
			return nil, err
		}
		sel = append(sel, c)
		i = next
		skip()
	}
	if len(sel) == 0 {
		return nil, fmt.Errorf("empty selector")
	}
	if sel[len(sel)-1].child {
		return nil, fmt.Errorf("dangling combinator")
	}
	return sel, nil
}

func isNameChar(c byte) bool {
	return c == '-' || c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func parseCompound(src string, i int) (compound, int, error) {
	var c compound
	name := func() string {
		start := i
		for i < len(src) && isNameChar(src[i]) {
			i++
		}
		return src[start:i]
	}
	start := i
	if i < len(src) && src[i] == '*' {
		c.tag = "*"
		i++
	} else {
		c.tag = name()
	}
	for i < len(src) {
		switch src[i] {
		case '#':
			i++
			if c.id = name(); c.id == "" {
				return c, i, fmt.Errorf("empty id at %d", i)
			}
		case '.':
			i++
			cls := name()
			if cls == "" {
				return c, i, fmt.Errorf("empty class at %d", i)
			}
			c.classes = append(c.classes, cls)
		case '[':
			end := strings.IndexByte(src[i:], ']')
			if end < 0 {
				return c, i, fmt.Errorf("unterminated attribute test")
			}
			body := src[i+1 : i+end]
			i += end + 1
			test := attrTest{exists: true}
			if k, v, ok := strings.Cut(body, "="); ok {
				test.exists = false
				test.name = strings.TrimSpace(k)
				test.value = strings.Trim(strings.TrimSpace(v), `"'`)
			} else {
				test.name = strings.TrimSpace(body)
			}
			if test.name == "" {
				return c, i, fmt.Errorf("empty attribute name")
			}
			c.attrs = append(c.attrs, test)
		case ' ', '\t', '\n', '>':
			return c, i, nil
		default:
			return c, i, fmt.Errorf("unexpected %q at %d", src[i], i)
		}
	}
	if i == start {
		return c, i, fmt.Errorf("empty compound at %d", i)
	}
	return c, i, nil
}

// Find returns the elements under root matching src, in document order.
func (t *Tree) Find(root *Node, src string) ([]*Node, error) {
	sels, err := parseSelectors(src)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", src, err)
	}
	var out []*Node
	root.walk(func(n *Node) bool {
		for _, s := range sels {
			if s.matches(n) {
				out = append(out, n)
				break
			}
		}
		return true
	})
	return out, nil
}

// Query runs a selector against the whole tree. A scalar answer is the
// comma-joined text of every match; nothing matched is the empty string.
func (t *Tree) Query(expr string, ctx *cdom.Context, multiple bool) cdom.QueryResult {
	nodes, err := t.Find(t.Root, expr)
	if err != nil {
		return cdom.QueryResult{Kind: cdom.QueryScalar, Value: "[CSS Error: " + expr + "]"}
	}
	if len(nodes) == 0 {
		return cdom.QueryResult{Kind: cdom.QueryScalar, Value: ""}
	}
	if multiple {
		return cdom.QueryResult{Kind: cdom.QueryCollection, Value: nodes}
	}
	texts := make([]string, len(nodes))
	for i, n := range nodes {
		texts[i] = n.TextContent()
	}
	return cdom.QueryResult{Kind: cdom.QueryScalar, Value: strings.Join(texts, ", ")}
}
