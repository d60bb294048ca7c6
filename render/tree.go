package render

import (
	"errors"

	"github.com/delaneyj/cdom/cdom"
)

var ErrNotInTree = errors.New("render: node is not attached")

var (
	_ cdom.Renderer     = (*Tree)(nil)
	_ cdom.AttrRenderer = (*Tree)(nil)
	_ cdom.Querier      = (*Tree)(nil)
)

// Tree owns every node it builds. It is not safe for concurrent use; drive
// it from the System's thread.
type Tree struct {
	sys  *cdom.System
	Root *Node
	byID map[cdom.NodeID]*Node
}

// New creates an empty tree and installs it as sys's renderer and querier.
func New(sys *cdom.System) *Tree {
	t := &Tree{sys: sys, byID: map[cdom.NodeID]*Node{}}
	t.Root = t.newNode(FragmentNode, 0)
	sys.SetRenderer(t)
	sys.SetQuerier(t)
	return t
}

func (t *Tree) System() *cdom.System { return t.sys }

// ByID finds a live or detached node the tree still owns.
func (t *Tree) ByID(id cdom.NodeID) *Node { return t.byID[id] }

func (t *Tree) newNode(kind NodeKind, parent cdom.NodeID) *Node {
	n := &Node{ID: t.sys.NewNode(), Kind: kind}
	if parent != 0 {
		t.sys.SetParent(n.ID, parent)
	}
	t.byID[n.ID] = n
	return n
}

func (t *Tree) appendChild(parent, child *Node) {
	if child.Parent != nil {
		t.detach(child)
	}
	child.Parent = parent
	parent.Children = append(parent.Children, child)
	t.sys.SetParent(child.ID, parent.ID)
}

func (t *Tree) detach(n *Node) {
	p := n.Parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c == n {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			break
		}
	}
	n.Parent = nil
}

// attached reports whether n hangs off Root.
func (t *Tree) attached(n *Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == t.Root {
			return true
		}
	}
	return false
}

// release disposes every binding in n's subtree and forgets its nodes.
func (t *Tree) release(n *Node) {
	if n.sub != nil {
		n.sub.Dispose()
	}
	for _, s := range n.attrSubs {
		s.Dispose()
	}
	for _, c := range n.Children {
		t.release(c)
	}
	delete(t.byID, n.ID)
	t.sys.ReleaseNode(n.ID)
}

// clear empties n in place, keeping its identity and ID.
func (t *Tree) clear(n *Node) {
	for _, c := range n.Children {
		c.Parent = nil
		t.release(c)
	}
	for _, s := range n.attrSubs {
		s.Dispose()
	}
	n.Children, n.attrs, n.attrSubs, n.handlers = nil, nil, nil, nil
	n.Tag, n.Text = "", ""
}

// Mount builds desc beneath parent. Strings with embedded expressions and
// descriptors become live bindings.
func (t *Tree) Mount(parent *Node, desc any) error {
	if !t.attached(parent) {
		return ErrNotInTree
	}
	before := len(parent.Children)
	t.build(parent, cdom.Normalize(desc))
	for _, c := range parent.Children[before:] {
		t.mounted(c)
	}
	return nil
}

// Render replaces the whole tree with desc.
func (t *Tree) Render(desc any) error {
	t.clear(t.Root)
	return t.Mount(t.Root, desc)
}

// Append is Mount as an outside mutation: structural bindings re-run.
func (t *Tree) Append(parent *Node, desc any) error {
	if err := t.Mount(parent, desc); err != nil {
		return err
	}
	t.sys.NotifyExternalChange()
	return nil
}

func (t *Tree) Remove(n *Node) error {
	if n == t.Root || !t.attached(n) {
		return ErrNotInTree
	}
	t.detach(n)
	t.release(n)
	t.sys.NotifyExternalChange()
	return nil
}

func (t *Tree) SetAttr(n *Node, name, value string) {
	n.setAttr(name, value)
	t.sys.NotifyExternalChange()
}

func (t *Tree) RemoveAttr(n *Node, name string) {
	n.removeAttr(name)
	t.sys.NotifyExternalChange()
}

// SetText replaces an element's children with a single text node.
func (t *Tree) SetText(n *Node, text string) {
	if n.Kind == TextNode {
		n.Text = text
	} else {
		for _, c := range n.Children {
			c.Parent = nil
			t.release(c)
		}
		n.Children = nil
		tn := t.newNode(TextNode, n.ID)
		tn.Text = text
		t.appendChild(n, tn)
	}
	t.sys.NotifyExternalChange()
}
