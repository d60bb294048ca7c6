package cdom

import (
	"encoding/json"
	"fmt"
	"reflect"
)

type cellSlot struct {
	id              int
	name            string
	value           any
	container       bool
	storage         Storage
	codec           Codec
	schema          *Schema
	schemaName      string
	transform       func(any) any
	transformHelper string
}

type cellConfig struct {
	name            string
	scope           NodeID
	storage         Storage
	codec           Codec
	schema          *Schema
	schemaName      string
	transform       func(any) any
	transformHelper string
}

type CellOption func(*cellConfig)

func WithName(name string) CellOption {
	return func(c *cellConfig) { c.name = name }
}

// WithScope declares the cell on node instead of globally.
func WithScope(node NodeID) CellOption {
	return func(c *cellConfig) { c.scope = node }
}

func WithStorage(st Storage) CellOption {
	return func(c *cellConfig) { c.storage = st }
}

func WithCodec(codec Codec) CellOption {
	return func(c *cellConfig) { c.codec = codec }
}

func WithSchema(sc *Schema) CellOption {
	return func(c *cellConfig) { c.schema = sc }
}

// WithSchemaName validates against a schema registered by name, resolved at
// write time.
func WithSchemaName(name string) CellOption {
	return func(c *cellConfig) { c.schemaName = name }
}

func WithTransform(fn func(any) any) CellOption {
	return func(c *cellConfig) { c.transform = fn }
}

// WithTransformHelper transforms through a registered helper such as
// "Integer" or "Number".
func WithTransformHelper(name string) CellOption {
	return func(c *cellConfig) { c.transformHelper = name }
}

// JSONCodec is the default storage codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}

func (JSONCodec) Unmarshal(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return v, nil
}

func (s *System) newCell(initial any, container bool, opts []CellOption) (*cellSlot, error) {
	cfg := cellConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &cellSlot{
		id:              len(s.cells),
		name:            cfg.name,
		container:       container,
		storage:         cfg.storage,
		codec:           cfg.codec,
		schema:          cfg.schema,
		schemaName:      cfg.schemaName,
		transform:       cfg.transform,
		transformHelper: cfg.transformHelper,
	}
	if c.codec == nil {
		c.codec = JSONCodec{}
	}
	c.value = s.applyTransform(c, Normalize(deepCopy(Normalize(initial))))

	s.refresh(c)
	s.cells = append(s.cells, c)
	return c, nil
}

func (s *System) applyTransform(c *cellSlot, v any) any {
	switch {
	case c.transform != nil:
		return Normalize(c.transform(v))
	case c.transformHelper != "":
		h, status := s.GetHelper(c.transformHelper)
		if status != HelperReady {
			return v
		}
		out, err := h.Fn(&Call{Sys: s, Ctx: &Context{}}, []any{v})
		if err != nil {
			s.logger.Warn("transform failed", "cell", c.name, "helper", c.transformHelper, "err", err)
			return v
		}
		return Normalize(out)
	}
	return v
}

// readStorage fetches and decodes the stored value of a named cell.
func (s *System) readStorage(c *cellSlot) (any, bool) {
	if c.name == "" || c.storage == nil {
		return nil, false
	}
	raw, ok, err := c.storage.GetItem(c.name)
	if err != nil {
		s.logger.Warn("storage read failed", "cell", c.name, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	v, err := c.codec.Unmarshal(raw)
	if err != nil {
		s.logger.Warn("storage decode failed", "cell", c.name, "err", err)
		return nil, false
	}
	return s.applyTransform(c, Normalize(v)), true
}

// refresh treats storage as the source of truth. Containers overlay the
// stored keys onto the in-memory object.
func (s *System) refresh(c *cellSlot) {
	v, ok := s.readStorage(c)
	if !ok {
		return
	}
	if c.container {
		dst, dstOK := c.value.(map[string]any)
		src, srcOK := v.(map[string]any)
		if dstOK && srcOK {
			overlay(dst, src)
			return
		}
	}
	if !reflect.DeepEqual(v, c.value) {
		c.value = v
	}
}

func overlay(dst, src map[string]any) {
	for k, v := range src {
		dm, dOK := dst[k].(map[string]any)
		sm, sOK := v.(map[string]any)
		if dOK && sOK {
			overlay(dm, sm)
			continue
		}
		dst[k] = v
	}
}

func (s *System) persist(c *cellSlot) error {
	if c.name == "" || c.storage == nil {
		return nil
	}
	raw, err := c.codec.Marshal(c.value)
	if err != nil {
		return fmt.Errorf("persist %s: %w", c.name, err)
	}
	if err := c.storage.SetItem(c.name, raw); err != nil {
		return fmt.Errorf("persist %s: %w", c.name, err)
	}
	return nil
}

func (s *System) validateCell(c *cellSlot, v any) error {
	sc := c.schema
	if sc == nil && c.schemaName != "" {
		sc = s.schemas[c.schemaName]
	}
	if sc == nil {
		return nil
	}
	if violations := s.Validate(v, sc); len(violations) > 0 {
		return &ValidationError{Cell: c.name, Violations: violations}
	}
	return nil
}

func (s *System) readCell(c *cellSlot, p Path, track bool) any {
	s.refresh(c)
	if track {
		s.register(c.name)
	}
	v, ok := getIn(c.value, p)
	if !ok {
		return nil
	}
	return deepCopy(v)
}

func (s *System) writeCell(c *cellSlot, v any) error {
	s.refresh(c)
	v = s.applyTransform(c, Normalize(deepCopy(Normalize(v))))
	if err := s.validateCell(c, v); err != nil {
		return err
	}
	c.value = v
	err := s.persist(c)
	if err != nil {
		s.logger.Error("persist failed", "cell", c.name, "err", err)
	}
	s.notify(c.name)
	return err
}

// writePath assigns inside the cell's value, validating the whole root and
// restoring only the written location when validation fails.
func (s *System) writePath(c *cellSlot, p Path, v any) error {
	if len(p) == 0 {
		return s.writeCell(c, v)
	}
	s.refresh(c)
	v = s.applyTransform(c, Normalize(deepCopy(Normalize(v))))
	old, existed := getIn(c.value, p)
	old = deepCopy(old)

	root, err := setIn(c.value, p, v)
	if err != nil {
		return fmt.Errorf("set %s%s: %w", c.name, p, err)
	}
	if err := s.validateCell(c, root); err != nil {
		if existed {
			c.value, _ = setIn(root, p, old)
		} else {
			c.value = deleteIn(root, p)
		}
		return err
	}
	c.value = root
	perr := s.persist(c)
	if perr != nil {
		s.logger.Error("persist failed", "cell", c.name, "err", perr)
	}
	s.notify(c.name)
	return perr
}

func (s *System) declareCell(c *cellSlot, scope NodeID, handle any) {
	if c.name == "" {
		return
	}
	s.Declare(scope, c.name, handle)
}

// Signal is a single reactive value.
type Signal struct {
	sys *System
	id  int
}

// Signal creates a reactive value. Named signals are declared on their scope
// node, or globally when none is given.
func (s *System) Signal(initial any, opts ...CellOption) (*Signal, error) {
	c, err := s.newCell(initial, false, opts)
	if err != nil {
		return nil, err
	}
	sig := &Signal{sys: s, id: c.id}
	s.declareCell(c, scopeOf(opts), sig)
	return sig, nil
}

func scopeOf(opts []CellOption) NodeID {
	cfg := cellConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.scope
}

func (sig *Signal) slot() *cellSlot { return sig.sys.cells[sig.id] }

func (sig *Signal) Name() string { return sig.slot().name }

// Get reads the value, registering a dependency when an evaluation is active.
func (sig *Signal) Get() any { return sig.sys.readCell(sig.slot(), nil, true) }

// Peek reads without registering a dependency.
func (sig *Signal) Peek() any { return sig.sys.readCell(sig.slot(), nil, false) }

func (sig *Signal) Set(v any) error { return sig.sys.writeCell(sig.slot(), v) }

func (sig *Signal) String() string { return Stringify(sig.Peek()) }

// State is a reactive container addressable by path. Reading any location
// depends on the root name; writing any location notifies it.
type State struct {
	sys *System
	id  int
}

// State creates a reactive container. Stored keys are merged into an object
// initial value.
func (s *System) State(initial any, opts ...CellOption) (*State, error) {
	initial = Normalize(initial)
	c, err := s.newCell(initial, isContainer(initial), opts)
	if err != nil {
		return nil, err
	}
	st := &State{sys: s, id: c.id}
	s.declareCell(c, scopeOf(opts), st)
	return st, nil
}

func (st *State) slot() *cellSlot { return st.sys.cells[st.id] }

func (st *State) Name() string { return st.slot().name }

func (st *State) Get() any { return st.sys.readCell(st.slot(), nil, true) }

func (st *State) Peek() any { return st.sys.readCell(st.slot(), nil, false) }

func (st *State) Set(v any) error { return st.sys.writeCell(st.slot(), v) }

func (st *State) String() string { return Stringify(st.Peek()) }

// GetPath reads a nested location.
func (st *State) GetPath(path string) (any, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return st.sys.readCell(st.slot(), p, true), nil
}

// SetPath writes a nested location.
func (st *State) SetPath(path string, v any) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	return st.sys.writePath(st.slot(), p, v)
}

// At returns a live handle on a nested location.
func (st *State) At(path string) (*Ref, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return &Ref{sys: st.sys, cell: st.id, path: p}, nil
}

// Ref is a live read/write handle on a location inside a cell or a plain
// container.
type Ref struct {
	sys  *System
	cell int
	base any
	name string
	path Path
}

func (r *Ref) Path() Path { return r.path }

func (r *Ref) Get() any {
	if r.base == nil {
		return r.sys.readCell(r.sys.cells[r.cell], r.path, true)
	}
	r.sys.register(r.name)
	v, _ := getIn(r.base, r.path)
	return v
}

func (r *Ref) Set(v any) error {
	if r.base == nil {
		return r.sys.writePath(r.sys.cells[r.cell], r.path, v)
	}
	if _, err := setIn(r.base, r.path, Normalize(v)); err != nil {
		return fmt.Errorf("set %s: %w", r.path, err)
	}
	r.sys.notify(r.name)
	return nil
}

func (r *Ref) String() string { return Stringify(r.Get()) }

func cellID(v any) (int, bool) {
	switch c := v.(type) {
	case *Signal:
		return c.id, true
	case *State:
		return c.id, true
	}
	return 0, false
}

// refTo builds a handle on path under root. Roots that are neither cells nor
// containers have nothing to address.
func (s *System) refTo(root any, name string, p Path) *Ref {
	if id, ok := cellID(root); ok {
		return &Ref{sys: s, cell: id, path: p}
	}
	if r, ok := root.(*Ref); ok {
		return &Ref{sys: s, cell: r.cell, base: r.base, name: r.name, path: append(append(Path{}, r.path...), p...)}
	}
	if isContainer(root) {
		return &Ref{sys: s, base: root, name: name, path: p}
	}
	return nil
}
