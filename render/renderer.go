package render

import (
	"github.com/delaneyj/cdom/cdom"
)

type attrHandle struct {
	owner *Node
	name  string
}

func (t *Tree) Materialize(v any, ctx *cdom.Context) cdom.Handle {
	var parent cdom.NodeID
	if ctx != nil {
		parent = ctx.Node
	}
	n := t.newNode(TextNode, parent)
	t.fill(n, v)
	return n
}

func (t *Tree) Update(h cdom.Handle, v any) {
	switch x := h.(type) {
	case *Node:
		if x.Kind == TextNode && len(x.Children) == 0 && isScalar(v) {
			x.Text = cdom.Stringify(v)
			return
		}
		t.clear(x)
		t.fill(x, v)
	case *attrHandle:
		x.owner.setAttr(x.name, cdom.Stringify(v))
	}
}

func (t *Tree) IsLive(h cdom.Handle) bool {
	switch x := h.(type) {
	case *Node:
		return t.attached(x)
	case *attrHandle:
		return t.attached(x.owner)
	}
	return false
}

func (t *Tree) MaterializeAttr(name, value string, ctx *cdom.Context) cdom.Handle {
	owner, ok := t.byID[ctx.Node]
	if !ok {
		return nil
	}
	owner.setAttr(name, value)
	return &attrHandle{owner: owner, name: name}
}

// fill turns n into the node that shows v. Element-shaped values become
// elements, lists become fragments and everything else is text.
func (t *Tree) fill(n *Node, v any) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 && !t.sys.IsDescriptor(x) {
			for tag, content := range x {
				n.Kind, n.Tag = ElementNode, tag
				t.content(n, content)
			}
			return
		}
	case []any, []*Node:
		n.Kind = FragmentNode
		t.build(n, x)
		return
	}
	n.Kind = TextNode
	n.Text = cdom.Stringify(v)
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any, []*Node:
		return false
	}
	return true
}
