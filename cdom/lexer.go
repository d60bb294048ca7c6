package cdom

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkNumber
	tkString
	tkIdent
	tkPath
	tkContext
	tkMacro
	tkOp
)

func (k tokenKind) String() string {
	switch k {
	case tkEOF:
		return "end of input"
	case tkNumber:
		return "number"
	case tkString:
		return "string"
	case tkIdent:
		return "identifier"
	case tkPath:
		return "path"
	case tkContext:
		return "context reference"
	case tkMacro:
		return "macro reference"
	case tkOp:
		return "operator"
	}
	return "token"
}

type token struct {
	kind tokenKind
	text string
	num  float64
	// suffix holds the path following $this or $event.
	suffix string
	pos    int
}

type lexer struct {
	src     string
	pos     int
	toks    []token
	operand bool
}

var twoCharOps = []string{"===", "!==", "==", "!=", "<=", ">=", "&&", "||"}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// lex tokenizes src. A '/' in operand position opens a state path, anywhere
// else it divides.
func lex(src string) ([]token, *CompileError) {
	l := &lexer{src: src}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			l.toks = append(l.toks, token{kind: tkEOF, pos: l.pos})
			return l.toks, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) fail(pos int, msg string, err error) *CompileError {
	return &CompileError{Source: l.src, Pos: pos, Msg: msg, Err: err}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && strings.IndexByte(" \t\r\n", l.src[l.pos]) >= 0 {
		l.pos++
	}
}

func (l *lexer) emit(t token) {
	l.toks = append(l.toks, t)
	switch t.kind {
	case tkOp:
		l.operand = t.text == ")" || t.text == "]" || t.text == "}"
	default:
		l.operand = true
	}
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) next() *CompileError {
	start := l.pos
	c := l.src[l.pos]
	switch {
	case isDigit(c) || (c == '.' && isDigit(l.peekByte(1)) && !l.operand):
		return l.number()
	case c == '\'' || c == '"':
		return l.str(c)
	case c == '/' && !l.operand:
		l.pos++
		return l.path(start, tkPath)
	case c == '.' && !l.operand:
		switch l.peekByte(1) {
		case '/':
			l.pos += 2
			return l.path(start, tkPath)
		case '.':
			return l.fail(start, "invalid path", ErrParentNavigation)
		}
		return l.fail(start, "unexpected '.'", nil)
	case c == '@':
		l.pos++
		return l.path(start, tkMacro)
	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
			l.pos++
		}
		word := l.src[start:l.pos]
		if word == "$this" || word == "$event" {
			t := token{kind: tkContext, text: word[1:], pos: start}
			// $this/2 divides; a suffix path must start with a name or '.'.
			if l.peekByte(0) == '/' && (isIdentStart(l.peekByte(1)) || l.peekByte(1) == '.') {
				l.pos++
				p, err := l.readPath(start)
				if err != nil {
					return err
				}
				t.suffix = p
			}
			l.emit(t)
			return nil
		}
		l.emit(token{kind: tkIdent, text: word, pos: start})
		return nil
	}

	for _, op := range twoCharOps {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += len(op)
			l.emit(token{kind: tkOp, text: op, pos: start})
			return nil
		}
	}
	if strings.IndexByte("+-*/%<>!?:()[]{},.", c) >= 0 {
		l.pos++
		l.emit(token{kind: tkOp, text: string(c), pos: start})
		return nil
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return l.fail(start, "unexpected character "+strconv.QuoteRune(r), nil)
}

func (l *lexer) number() *CompileError {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if c := l.peekByte(0); c == 'e' || c == 'E' {
		save := l.pos
		l.pos++
		if c := l.peekByte(0); c == '+' || c == '-' {
			l.pos++
		}
		if !isDigit(l.peekByte(0)) {
			l.pos = save
		}
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	f, err := strconv.ParseFloat(l.src[start:l.pos], 64)
	if err != nil {
		return l.fail(start, "invalid number", err)
	}
	l.emit(token{kind: tkNumber, num: f, text: l.src[start:l.pos], pos: start})
	return nil
}

func (l *lexer) str(quote byte) *CompileError {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case quote:
			l.pos++
			l.emit(token{kind: tkString, text: sb.String(), pos: start})
			return nil
		case '\\':
			l.pos++
			if l.pos >= len(l.src) {
				return l.fail(start, "unterminated string", nil)
			}
			esc := l.src[l.pos]
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'u':
				if l.pos+4 >= len(l.src) {
					return l.fail(l.pos, "invalid unicode escape", nil)
				}
				n, err := strconv.ParseUint(l.src[l.pos+1:l.pos+5], 16, 32)
				if err != nil {
					return l.fail(l.pos, "invalid unicode escape", err)
				}
				sb.WriteRune(rune(n))
				l.pos += 4
			default:
				sb.WriteByte(esc)
			}
			l.pos++
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return l.fail(start, "unterminated string", nil)
}

func (l *lexer) readPath(start int) (string, *CompileError) {
	from := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isIdentChar(c) || c == '/' {
			l.pos++
			continue
		}
		if c == '.' && (isIdentChar(l.peekByte(1)) || l.peekByte(1) == '.' || l.peekByte(1) == '/') {
			l.pos++
			continue
		}
		break
	}
	p := l.src[from:l.pos]
	if strings.Contains(p, "..") {
		return "", l.fail(start, "invalid path", ErrParentNavigation)
	}
	return p, nil
}

func (l *lexer) path(start int, kind tokenKind) *CompileError {
	if kind == tkPath && l.peekByte(0) == '.' && l.peekByte(1) == '.' {
		return l.fail(start, "invalid path", ErrParentNavigation)
	}
	p, err := l.readPath(start)
	if err != nil {
		return err
	}
	if p == "" {
		return l.fail(start, "empty path", nil)
	}
	l.emit(token{kind: kind, text: p, pos: start})
	return nil
}
