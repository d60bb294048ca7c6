// Package render is an in-memory presentation tree for cdom. It implements
// the Renderer, AttrRenderer and Querier collaborators, builds element trees
// from descriptors and writes them out as HTML.
package render

import (
	"slices"
	"strings"

	"github.com/delaneyj/cdom/cdom"
)

type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
	// FragmentNode groups children without an element of its own.
	FragmentNode
)

func (k NodeKind) String() string {
	switch k {
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case FragmentNode:
		return "fragment"
	}
	return "unknown"
}

type Attr struct {
	Name  string
	Value string
}

// Node shares its ID with the System's scope arena, so cells declared on a
// node are visible to bindings beneath it.
type Node struct {
	ID       cdom.NodeID
	Kind     NodeKind
	Tag      string
	Text     string
	Parent   *Node
	Children []*Node

	attrs    []Attr
	handlers map[string]any
	sub      *cdom.Subscriber
	attrSubs []*cdom.Subscriber
}

func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

func (n *Node) Attrs() []Attr { return slices.Clone(n.attrs) }

func (n *Node) setAttr(name, value string) {
	for i, a := range n.attrs {
		if a.Name == name {
			n.attrs[i].Value = value
			return
		}
	}
	n.attrs = append(n.attrs, Attr{Name: name, Value: value})
}

func (n *Node) removeAttr(name string) {
	n.attrs = slices.DeleteFunc(n.attrs, func(a Attr) bool { return a.Name == name })
}

func (n *Node) Classes() []string {
	v, _ := n.Attr("class")
	return strings.Fields(v)
}

// TextContent concatenates the text of every descendant.
func (n *Node) TextContent() string {
	if n.Kind == TextNode {
		return n.Text
	}
	var sb strings.Builder
	n.walk(func(c *Node) bool {
		if c.Kind == TextNode {
			sb.WriteString(c.Text)
		}
		return true
	})
	return sb.String()
}

// walk visits descendants in document order. visit returns false to skip a
// subtree.
func (n *Node) walk(visit func(*Node) bool) {
	for _, c := range n.Children {
		if visit(c) {
			c.walk(visit)
		}
	}
}

// element reports the nearest element at or above n.
func (n *Node) element() *Node {
	for c := n; c != nil; c = c.Parent {
		if c.Kind == ElementNode {
			return c
		}
	}
	return nil
}

// props is the view of a node event handlers see as $this.
func (n *Node) props() map[string]any {
	p := map[string]any{
		"tagName":     strings.ToUpper(n.Tag),
		"textContent": n.TextContent(),
	}
	for _, a := range n.attrs {
		p[a.Name] = a.Value
	}
	return p
}

func (n *Node) clone(t *Tree, parent cdom.NodeID) *Node {
	c := t.newNode(n.Kind, parent)
	c.Tag, c.Text = n.Tag, n.Text
	c.attrs = slices.Clone(n.attrs)
	for _, child := range n.Children {
		t.appendChild(c, child.clone(t, c.ID))
	}
	return c
}
