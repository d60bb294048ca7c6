package cdom

// NodeID identifies a context node. Zero is the global scope.
type NodeID uint64

// Context is what an evaluation runs against: the node names resolve from,
// the value $this refers to, and macro arguments for @ references.
type Context struct {
	Node  NodeID
	This  any
	Macro map[string]any
}

func (c *Context) node() NodeID {
	if c == nil {
		return 0
	}
	return c.Node
}

// NewNode allocates a fresh context node.
func (s *System) NewNode() NodeID {
	s.nextNode++
	return s.nextNode
}

// SetParent records the logical parent of child. The logical parent may
// differ from wherever the node is rendered.
func (s *System) SetParent(child, parent NodeID) {
	if child == 0 {
		return
	}
	if parent == 0 {
		delete(s.parents, child)
		return
	}
	s.parents[child] = parent
}

func (s *System) Parent(node NodeID) (NodeID, bool) {
	p, ok := s.parents[node]
	return p, ok
}

// Declare binds name on node. Node zero declares a global.
func (s *System) Declare(node NodeID, name string, v any) {
	if name == "" {
		return
	}
	if node == 0 {
		s.globals[name] = v
		return
	}
	m, ok := s.locals[node]
	if !ok {
		m = map[string]any{}
		s.locals[node] = m
	}
	m[name] = v
}

// ReleaseNode forgets a node's declarations and parent link.
func (s *System) ReleaseNode(node NodeID) {
	delete(s.locals, node)
	delete(s.parents, node)
}

// FindInScope walks node and its logical ancestors for a local binding of
// name, then falls back to the globals.
func (s *System) FindInScope(node NodeID, name string) (any, bool) {
	steps := 0
	for cur := node; cur != 0; {
		if m, ok := s.locals[cur]; ok {
			if v, ok := m[name]; ok {
				return v, true
			}
		}
		next, ok := s.parents[cur]
		if !ok {
			break
		}
		cur = next
		steps++
		if steps > len(s.parents) {
			s.logger.Warn("scope cycle", "node", node, "name", name)
			break
		}
	}
	v, ok := s.globals[name]
	return v, ok
}

// Global returns a process-wide declaration.
func (s *System) Global(name string) (any, bool) {
	v, ok := s.globals[name]
	return v, ok
}
