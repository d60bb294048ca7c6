package render

import (
	"bytes"
	"io"

	"github.com/valyala/quicktemplate"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

// WriteHTML serializes n and its subtree. Text and attribute values are
// escaped; fragments contribute only their children.
func (n *Node) WriteHTML(w io.Writer) {
	qw := quicktemplate.AcquireWriter(w)
	defer quicktemplate.ReleaseWriter(qw)
	n.streamHTML(qw)
}

func (n *Node) streamHTML(qw *quicktemplate.Writer) {
	switch n.Kind {
	case TextNode:
		qw.E().S(n.Text)
	case FragmentNode:
		for _, c := range n.Children {
			c.streamHTML(qw)
		}
	case ElementNode:
		qw.N().S("<" + n.Tag)
		for _, a := range n.attrs {
			qw.N().S(" " + a.Name + `="`)
			qw.E().S(a.Value)
			qw.N().S(`"`)
		}
		qw.N().S(">")
		if voidElements[n.Tag] {
			return
		}
		for _, c := range n.Children {
			c.streamHTML(qw)
		}
		qw.N().S("</" + n.Tag + ">")
	}
}

func (n *Node) HTML() string {
	var buf bytes.Buffer
	n.WriteHTML(&buf)
	return buf.String()
}

// HTML serializes the whole tree.
func (t *Tree) HTML() string { return t.Root.HTML() }
