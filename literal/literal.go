// Package literal decodes string-encoded attribute values stored in the graph.
//
// Some edge attributes (notably `linehoverdisplay`) are written by the loading
// pipeline as the textual repr of a list or mapping, e.g.
//
//	[{'title': 'PMID', 'value': '1234'}, ('score', 0.8)]
//
// Parse accepts that literal syntax and nothing else: strings, numbers,
// True/False/None (and their JSON spellings), lists, tuples, sets and dicts.
// No names, calls or operators are evaluated.
package literal

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxDepth bounds container nesting.
const MaxDepth = 64

// SyntaxError describes malformed literal input.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("literal: %s at offset %d", e.Msg, e.Offset)
}

// Parse decodes s into native Go values:
//
//	string         -> string
//	integer        -> int64
//	float          -> float64
//	True/False     -> bool
//	None           -> nil
//	list/tuple/set -> []any
//	dict           -> map[string]any (non-string keys are formatted with %v)
func Parse(s string) (any, error) {
	p := &parser{src: s}
	p.skipSpace()
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input %q", p.rest(10))
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) rest(n int) string {
	r := p.src[p.pos:]
	if len(r) > n {
		r = r[:n]
	}
	return r
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) value(depth int) (any, error) {
	if depth > MaxDepth {
		return nil, p.errorf("nesting deeper than %d", MaxDepth)
	}
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	case c == '[':
		return p.sequence(depth, ']')
	case c == '(':
		return p.sequence(depth, ')')
	case c == '{':
		return p.braced(depth)
	case c == '\'' || c == '"':
		return p.str()
	case c == 'u' || c == 'U':
		if q := p.peekAt(1); q == '\'' || q == '"' {
			p.pos++
			return p.str()
		}
		return p.keyword()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return p.keyword()
	}
}

func (p *parser) peekAt(off int) byte {
	if p.pos+off >= len(p.src) {
		return 0
	}
	return p.src[p.pos+off]
}

func (p *parser) keyword() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && isIdent(p.src[p.pos]) {
		p.pos++
	}
	switch word := p.src[start:p.pos]; word {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null":
		return nil, nil
	case "":
		return nil, p.errorf("unexpected character %q", p.src[p.pos])
	default:
		p.pos = start
		return nil, p.errorf("unsupported name %q", word)
	}
}

func isIdent(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// sequence parses a list or tuple body. A one-element tuple needs its trailing comma
// in Python; without it the parentheses only group, so the bare element is returned.
func (p *parser) sequence(depth int, closing byte) (any, error) {
	p.pos++ // opening bracket
	out := make([]any, 0)
	sawComma := false
	for {
		p.skipSpace()
		if p.peek() == closing {
			p.pos++
			if closing == ')' && len(out) == 1 && !sawComma {
				return out[0], nil
			}
			return out, nil
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			sawComma = true
		case closing:
		default:
			return nil, p.errorf("expected ',' or %q", closing)
		}
	}
}

// braced parses a dict or a set; the first separator decides which.
func (p *parser) braced(depth int) (any, error) {
	p.pos++ // '{'
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return map[string]any{}, nil
	}
	first, err := p.value(depth + 1)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() != ':' {
		return p.setTail(depth, first)
	}
	out := make(map[string]any)
	key := first
	for {
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' after dict key")
		}
		p.pos++
		p.skipSpace()
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		out[keyString(key)] = v
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			p.skipSpace()
			if p.peek() == '}' {
				p.pos++
				return out, nil
			}
			if key, err = p.value(depth + 1); err != nil {
				return nil, err
			}
			p.skipSpace()
		case '}':
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *parser) setTail(depth int, first any) (any, error) {
	out := []any{first}
	for {
		p.skipSpace()
		switch p.peek() {
		case '}':
			p.pos++
			return out, nil
		case ',':
			p.pos++
			p.skipSpace()
			if p.peek() == '}' {
				continue
			}
			v, err := p.value(depth + 1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func keyString(k any) string {
	switch v := k.(type) {
	case string:
		return v
	case nil:
		return "None"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (p *parser) number() (any, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	isFloat := false
scan:
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c >= '0' && c <= '9', c == '_':
		case c == '.', c == 'e', c == 'E':
			isFloat = true
		case (c == '-' || c == '+') && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E'):
		default:
			break scan
		}
		p.pos++
	}
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.pos = start
		return nil, p.errorf("invalid number %q", text)
	}
	return f, nil
}

func (p *parser) str() (any, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\n':
			return nil, p.errorf("newline in string")
		case c == '\\':
			if err := p.escape(&b); err != nil {
				return nil, err
			}
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
}

func (p *parser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return p.errorf("unterminated escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '\\', '\'', '"':
		b.WriteByte(c)
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case '0':
		b.WriteByte(0)
	case '\n':
		// line continuation
	case 'x':
		return p.hexRune(b, 2)
	case 'u':
		return p.hexRune(b, 4)
	case 'U':
		return p.hexRune(b, 8)
	default:
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *parser) hexRune(b *strings.Builder, n int) error {
	if p.pos+n > len(p.src) {
		return p.errorf("truncated \\x/\\u escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+n], 16, 32)
	if err != nil {
		return p.errorf("invalid hex escape %q", p.src[p.pos:p.pos+n])
	}
	p.pos += n
	b.WriteRune(rune(v))
	return nil
}
