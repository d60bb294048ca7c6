package render

import (
	"strings"

	"github.com/delaneyj/cdom/cdom"
)

// build appends the nodes desc describes to parent.
//
//	"text"                      text node, live when it embeds expressions
//	[a, b]                      each item in turn
//	{"=": ...}, {"=sum": ...}   live binding on the evaluated value
//	{"p": "hi"}                 element with content
//	{"a": {"href": ..., "children": [...]}}   element with properties
func (t *Tree) build(parent *Node, desc any) {
	switch x := desc.(type) {
	case nil:
	case string:
		if cdom.HasExpressions(x) {
			t.bind(parent, x)
			return
		}
		n := t.newNode(TextNode, parent.ID)
		n.Text = x
		t.appendChild(parent, n)
	case []any:
		for _, el := range x {
			t.build(parent, el)
		}
	case map[string]any:
		if t.sys.IsDescriptor(x) {
			t.bind(parent, x)
			return
		}
		if len(x) != 1 {
			n := t.newNode(TextNode, parent.ID)
			n.Text = cdom.Stringify(x)
			t.appendChild(parent, n)
			return
		}
		for tag, content := range x {
			el := t.newNode(ElementNode, parent.ID)
			el.Tag = tag
			t.content(el, content)
			t.appendChild(parent, el)
		}
	case []*Node:
		for _, n := range x {
			t.appendChild(parent, n.clone(t, parent.ID))
		}
	case *Node:
		t.appendChild(parent, x.clone(t, parent.ID))
	default:
		n := t.newNode(TextNode, parent.ID)
		n.Text = cdom.Stringify(x)
		t.appendChild(parent, n)
	}
}

// bind mounts desc as a live subtree under parent.
func (t *Tree) bind(parent *Node, desc any) {
	sub, err := t.sys.Mount(desc, &cdom.Context{Node: parent.ID})
	if err != nil {
		t.sys.Logger().Error("bind", "err", err)
		return
	}
	n := sub.Handle().(*Node)
	n.sub = sub
	t.appendChild(parent, n)
}

// content fills el from the value under its tag: a property object or
// direct children.
func (t *Tree) content(el *Node, content any) {
	props, ok := content.(map[string]any)
	if !ok || t.sys.IsDescriptor(props) {
		t.build(el, content)
		return
	}
	ctx := &cdom.Context{Node: el.ID}
	for _, key := range cdom.SortedKeys(props) {
		val := props[key]
		switch {
		case key == "children":
			t.build(el, val)
		case key == "style":
			if styles, ok := val.(map[string]any); ok {
				var sb strings.Builder
				for i, k := range cdom.SortedKeys(styles) {
					if i > 0 {
						sb.WriteByte(' ')
					}
					sb.WriteString(k + ": " + cdom.Stringify(styles[k]) + ";")
				}
				el.setAttr("style", sb.String())
				continue
			}
			t.attr(el, key, val, ctx)
		case key == "oncreate":
			t.run(el, val, nil)
		case strings.HasPrefix(key, "on"):
			if el.handlers == nil {
				el.handlers = map[string]any{}
			}
			el.handlers[strings.TrimPrefix(key, "on")] = val
		default:
			t.attr(el, key, val, ctx)
		}
	}
}

func (t *Tree) attr(el *Node, name string, val any, ctx *cdom.Context) {
	str, ok := val.(string)
	if !ok {
		if t.sys.IsDescriptor(val) {
			el.setAttr(name, cdom.Stringify(t.sys.EvaluateStructural(val, ctx, nil)))
			return
		}
		el.setAttr(name, cdom.Stringify(val))
		return
	}
	if !cdom.HasExpressions(str) {
		el.setAttr(name, str)
		return
	}
	sub, err := t.sys.MountAttr(name, str, ctx)
	if err != nil {
		t.sys.Logger().Error("bind attribute", "attr", name, "err", err)
		el.setAttr(name, str)
		return
	}
	el.attrSubs = append(el.attrSubs, sub)
}

// mounted runs onmount handlers across a freshly attached subtree.
func (t *Tree) mounted(n *Node) {
	if h, ok := n.handlers["mount"]; ok {
		t.run(n, h, nil)
	}
	for _, c := range n.Children {
		t.mounted(c)
	}
}

// Dispatch fires the handler registered for event on n. Handlers are
// expression strings, written _( ... ) or =( ... ), or descriptors.
func (t *Tree) Dispatch(n *Node, event string, payload any) (any, bool) {
	h, ok := n.handlers[event]
	if !ok {
		return nil, false
	}
	return t.run(n, h, payload), true
}

func (t *Tree) run(n *Node, handler, payload any) any {
	ctx := &cdom.Context{Node: n.ID, This: n.props()}
	switch h := handler.(type) {
	case string:
		src := strings.TrimSuffix(strings.TrimSpace(h), ";")
		if (strings.HasPrefix(src, "_(") || strings.HasPrefix(src, "=(")) && strings.HasSuffix(src, ")") {
			return t.sys.Eval(src[2:len(src)-1], ctx, payload)
		}
		return t.sys.Eval(src, ctx, payload)
	case map[string]any, []any:
		return t.sys.EvaluateStructural(h, ctx, payload)
	}
	return nil
}

// Handlers lists the events n listens for.
func (n *Node) Handlers() []string {
	return cdom.SortedKeys(n.handlers)
}
