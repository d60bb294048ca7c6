package cdom

import (
	"fmt"
	"math"
)

// env is what one evaluation of a compiled closure tree runs against.
type env struct {
	sys   *System
	ctx   *Context
	event any
}

type evalFn func(e *env) any

type parser struct {
	sys  *System
	src  string
	toks []token
	pos  int
}

type parseFailure struct {
	err *CompileError
}

func compileExpression(s *System, src string) (fn evalFn, cerr *CompileError) {
	toks, lerr := lex(src)
	if lerr != nil {
		return nil, lerr
	}
	p := &parser{sys: s, src: src, toks: toks}
	defer func() {
		if r := recover(); r != nil {
			pf, ok := r.(parseFailure)
			if !ok {
				panic(r)
			}
			fn, cerr = nil, pf.err
		}
	}()
	if p.peek().kind == tkEOF {
		p.fail("empty expression", nil)
	}
	fn = p.ternary()
	if t := p.peek(); t.kind != tkEOF {
		p.fail(fmt.Sprintf("unexpected %s %q", t.kind, t.text), nil)
	}
	return fn, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}

func (p *parser) fail(msg string, err error) {
	panic(parseFailure{err: &CompileError{Source: p.src, Pos: p.peek().pos, Msg: msg, Err: err}})
}

func (p *parser) isOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tkOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			return op, true
		}
	}
	return "", false
}

func (p *parser) acceptOp(op string) bool {
	if _, ok := p.isOp(op); ok {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectOp(op string) {
	if !p.acceptOp(op) {
		t := p.peek()
		p.fail(fmt.Sprintf("expected %q, got %s %q", op, t.kind, t.text), nil)
	}
}

func (p *parser) ternary() evalFn {
	cond := p.or()
	if !p.acceptOp("?") {
		return cond
	}
	yes := p.ternary()
	p.expectOp(":")
	no := p.ternary()
	return func(e *env) any {
		if Truthy(cond(e)) {
			return yes(e)
		}
		return no(e)
	}
}

func (p *parser) or() evalFn {
	left := p.and()
	for p.acceptOp("||") {
		l, r := left, p.and()
		left = func(e *env) any {
			if v := Unwrap(l(e)); Truthy(v) {
				return v
			}
			return Unwrap(r(e))
		}
	}
	return left
}

func (p *parser) and() evalFn {
	left := p.equality()
	for p.acceptOp("&&") {
		l, r := left, p.equality()
		left = func(e *env) any {
			if v := Unwrap(l(e)); !Truthy(v) {
				return v
			}
			return Unwrap(r(e))
		}
	}
	return left
}

func (p *parser) equality() evalFn {
	left := p.relational()
	for {
		op, ok := p.isOp("==", "!=", "===", "!==")
		if !ok {
			return left
		}
		p.pos++
		l, r := left, p.relational()
		switch op {
		case "==":
			left = func(e *env) any { return LooseEqual(l(e), r(e)) }
		case "!=":
			left = func(e *env) any { return !LooseEqual(l(e), r(e)) }
		case "===":
			left = func(e *env) any { return StrictEqual(Unwrap(l(e)), Unwrap(r(e))) }
		case "!==":
			left = func(e *env) any { return !StrictEqual(Unwrap(l(e)), Unwrap(r(e))) }
		}
	}
}

// relational associates to the right: a < b < c is a < (b < c).
func (p *parser) relational() evalFn {
	left := p.additive()
	op, ok := p.isOp("<", ">", "<=", ">=")
	if !ok {
		return left
	}
	p.pos++
	right := p.relational()
	return func(e *env) any { return Compare(op, left(e), right(e)) }
}

func (p *parser) additive() evalFn {
	left := p.multiplicative()
	for {
		op, ok := p.isOp("+", "-")
		if !ok {
			return left
		}
		p.pos++
		l, r := left, p.multiplicative()
		if op == "+" {
			left = func(e *env) any { return Add(l(e), r(e)) }
		} else {
			left = func(e *env) any { return Arith("-", l(e), r(e)) }
		}
	}
}

func (p *parser) multiplicative() evalFn {
	left := p.unary()
	for {
		op, ok := p.isOp("*", "/", "%")
		if !ok {
			return left
		}
		p.pos++
		l, r := left, p.unary()
		left = func(e *env) any { return Arith(op, l(e), r(e)) }
	}
}

func (p *parser) unary() evalFn {
	op, ok := p.isOp("!", "-", "+")
	if !ok {
		return p.postfix()
	}
	p.pos++
	operand := p.unary()
	switch op {
	case "!":
		return func(e *env) any { return !Truthy(operand(e)) }
	case "-":
		return func(e *env) any { return -ToNumber(operand(e)) }
	default:
		return func(e *env) any { return ToNumber(operand(e)) }
	}
}

func (p *parser) postfix() evalFn {
	var target evalFn
	if t := p.peek(); t.kind == tkIdent {
		p.pos++
		if p.acceptOp("(") {
			target = p.helperCall(t.text, p.arguments(")"))
		} else {
			target = p.bareword(t.text)
		}
	} else {
		target = p.primary()
	}

	for {
		switch {
		case p.acceptOp("."):
			t := p.advance()
			if t.kind != tkIdent {
				p.fail("expected property name", nil)
			}
			obj, key := target, t.text
			target = func(e *env) any { return member(obj(e), key) }
		case p.acceptOp("["):
			obj, idx := target, p.ternary()
			p.expectOp("]")
			target = func(e *env) any { return index(obj(e), idx(e)) }
		case p.acceptOp("("):
			callee, args := target, p.arguments(")")
			target = func(e *env) any {
				h, ok := Unwrap(callee(e)).(*Helper)
				if !ok {
					throw("%w", ErrNotCallable)
				}
				return e.invoke(h, args)
			}
		default:
			return target
		}
	}
}

func (p *parser) arguments(closer string) []evalFn {
	var args []evalFn
	if p.acceptOp(closer) {
		return args
	}
	for {
		args = append(args, p.ternary())
		if p.acceptOp(closer) {
			return args
		}
		p.expectOp(",")
		if p.acceptOp(closer) {
			return args
		}
	}
}

func (p *parser) primary() evalFn {
	start := p.pos
	t := p.advance()
	switch t.kind {
	case tkNumber:
		n := t.num
		return func(*env) any { return n }
	case tkString:
		str := t.text
		return func(*env) any { return str }
	case tkPath:
		return p.statePath(t)
	case tkContext:
		return p.contextRef(t)
	case tkMacro:
		return p.macroRef(t)
	case tkOp:
		switch t.text {
		case "(":
			inner := p.ternary()
			p.expectOp(")")
			return inner
		case "[":
			items := p.arguments("]")
			return func(e *env) any {
				out := make([]any, len(items))
				for i, item := range items {
					out[i] = Unwrap(item(e))
				}
				return out
			}
		case "{":
			return p.object()
		}
	}
	p.pos = start
	p.fail(fmt.Sprintf("unexpected %s %q", t.kind, t.text), nil)
	return nil
}

func (p *parser) object() evalFn {
	type entry struct {
		key string
		val evalFn
	}
	var entries []entry
	for !p.acceptOp("}") {
		start := p.pos
		t := p.advance()
		var key string
		switch t.kind {
		case tkIdent, tkString:
			key = t.text
		case tkNumber:
			key = FormatNumber(t.num)
		default:
			p.pos = start
			p.fail("expected object key", nil)
		}
		p.expectOp(":")
		entries = append(entries, entry{key: key, val: p.ternary()})
		if !p.acceptOp(",") {
			p.expectOp("}")
			break
		}
	}
	return func(e *env) any {
		out := make(map[string]any, len(entries))
		for _, en := range entries {
			out[en.key] = Unwrap(en.val(e))
		}
		return out
	}
}

func (p *parser) bareword(name string) evalFn {
	switch name {
	case "true":
		return func(*env) any { return true }
	case "false":
		return func(*env) any { return false }
	case "null", "undefined":
		return func(*env) any { return nil }
	case "NaN":
		return func(*env) any { return math.NaN() }
	case "Infinity":
		return func(*env) any { return math.Inf(1) }
	}
	return func(e *env) any {
		if v, ok := e.sys.FindInScope(e.ctx.node(), name); ok {
			return v
		}
		h, status := e.sys.GetHelper(name)
		switch status {
		case HelperReady:
			return h
		case HelperLoading:
			e.sys.suspend(name)
		}
		return nil
	}
}

func (p *parser) helperCall(name string, args []evalFn) evalFn {
	return func(e *env) any {
		if v, ok := e.sys.FindInScope(e.ctx.node(), name); ok {
			h, ok := Unwrap(v).(*Helper)
			if !ok {
				throw("%s: %w", name, ErrNotCallable)
			}
			return e.invoke(h, args)
		}
		h, status := e.sys.GetHelper(name)
		switch status {
		case HelperLoading:
			e.sys.suspend(name)
			return Pending
		case HelperAbsent:
			return UndefinedMarker(name)
		}
		return e.invoke(h, args)
	}
}

func (p *parser) statePath(t token) evalFn {
	path, err := ParsePath(t.text)
	if err != nil {
		p.fail("invalid path", err)
	}
	if len(path) == 0 {
		p.fail("empty path", nil)
	}
	name, rest := path[0], path[1:]
	return func(e *env) any {
		return e.sys.resolveStatePath(e.ctx.node(), name, rest)
	}
}

func (p *parser) contextRef(t token) evalFn {
	path, err := ParsePath(t.suffix)
	if err != nil {
		p.fail("invalid path", err)
	}
	isEvent := t.text == "event"
	return func(e *env) any {
		root := e.ctx.This
		if isEvent {
			root = e.event
		}
		return e.sys.descend(Normalize(root), "", path)
	}
}

func (p *parser) macroRef(t token) evalFn {
	path, err := ParsePath(t.text)
	if err != nil {
		p.fail("invalid path", err)
	}
	if len(path) == 0 {
		p.fail("empty macro reference", nil)
	}
	name, rest := path[0], path[1:]
	return func(e *env) any {
		if e.ctx == nil || e.ctx.Macro == nil {
			return nil
		}
		return e.sys.descend(Normalize(e.ctx.Macro[name]), "", rest)
	}
}

// resolveStatePath finds name through the scope chain. An unknown name is a
// visible marker; a known one yields the cell itself or a live handle below
// it.
func (s *System) resolveStatePath(node NodeID, name string, rest Path) any {
	root, ok := s.FindInScope(node, name)
	if !ok || root == nil {
		return UnknownMarker(name)
	}
	return s.descend(root, name, rest)
}

func (s *System) descend(root any, name string, rest Path) any {
	if len(rest) == 0 {
		return root
	}
	if ref := s.refTo(root, name, rest); ref != nil {
		return ref
	}
	v, _ := getIn(root, rest)
	return v
}

// invoke calls h with evaluated arguments. Mutating helpers receive cells
// and handles as-is so they can write through them.
func (e *env) invoke(h *Helper, argFns []evalFn) any {
	args := make([]any, len(argFns))
	for i, fn := range argFns {
		v := fn(e)
		if _, isCell := v.(Cell); isCell && h.Mutates {
			args[i] = v
			continue
		}
		args[i] = Unwrap(v)
	}
	out, err := h.Fn(&Call{Sys: e.sys, Ctx: e.ctx, Event: e.event}, args)
	if err != nil {
		throw("%s: %w", h.Name, err)
	}
	return Normalize(out)
}

func member(obj any, key string) any {
	obj = Unwrap(obj)
	if obj == nil {
		throw("%w: %s", ErrNilAccess, key)
	}
	v, _ := lookupKey(obj, key)
	return v
}

func index(obj, idx any) any {
	obj, idx = Unwrap(obj), Unwrap(idx)
	if obj == nil {
		throw("%w: %s", ErrNilAccess, Stringify(idx))
	}
	key := Stringify(idx)
	v, _ := lookupKey(obj, key)
	return v
}
