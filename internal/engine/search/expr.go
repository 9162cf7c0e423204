package search

import (
	"fmt"
	"strings"
	"unicode"
)

// Expr is a parsed filter expression evaluated against a listing's
// attributes.
type Expr interface {
	Match(attrs map[string][]string) bool
	String() string
}

type matchAll struct{}

func (matchAll) Match(map[string][]string) bool { return true }
func (matchAll) String() string                 { return "" }

type term struct {
	attr, value string
}

func (t term) Match(attrs map[string][]string) bool {
	for _, v := range attrs[t.attr] {
		if strings.EqualFold(v, t.value) {
			return true
		}
	}
	return false
}

func (t term) String() string { return fmt.Sprintf("%s:%q", t.attr, t.value) }

type not struct{ x Expr }

func (n not) Match(attrs map[string][]string) bool { return !n.x.Match(attrs) }
func (n not) String() string                       { return "NOT " + n.x.String() }

type and []Expr

func (a and) Match(attrs map[string][]string) bool {
	for _, x := range a {
		if !x.Match(attrs) {
			return false
		}
	}
	return true
}

func (a and) String() string { return join(a, " AND ") }

type or []Expr

func (o or) Match(attrs map[string][]string) bool {
	for _, x := range o {
		if x.Match(attrs) {
			return true
		}
	}
	return false
}

func (o or) String() string { return join(o, " OR ") }

func join(xs []Expr, sep string) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = x.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// ParseFilter parses the backend filter syntax: attr:'value' or attr:value
// terms combined with AND, OR, NOT and parentheses. AND binds tighter than
// OR. An empty string matches everything.
func ParseFilter(s string) (Expr, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return matchAll{}, nil
	}
	p := &parser{toks: toks}
	x, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("filter: unexpected %q at offset %d", p.toks[p.pos].text, p.toks[p.pos].off)
	}
	return x, nil
}

type tokKind int

const (
	tokWord tokKind = iota
	tokString
	tokColon
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	off  int
}

func lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == ':':
			toks = append(toks, token{tokColon, ":", i})
			i++
		case c == '\'' || c == '"':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(s) {
				if s[i] == '\\' && i+1 < len(s) {
					b.WriteByte(s[i+1])
					i += 2
					continue
				}
				if s[i] == c {
					closed = true
					i++
					break
				}
				b.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("filter: unterminated string at offset %d", start)
			}
			toks = append(toks, token{tokString, b.String(), start})
		default:
			start := i
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			if i == start {
				return nil, fmt.Errorf("filter: unexpected character %q at offset %d", c, i)
			}
			toks = append(toks, token{tokWord, s[start:i], start})
		}
	}
	return toks, nil
}

func isWordByte(c byte) bool {
	return c >= 0x80 || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) ||
		c == '_' || c == '-' || c == '.'
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) keyword(kw string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokWord && t.text == kw {
		p.pos++
		return true
	}
	return false
}

func (p *parser) or() (Expr, error) {
	x, err := p.and()
	if err != nil {
		return nil, err
	}
	xs := or{x}
	for p.keyword("OR") {
		y, err := p.and()
		if err != nil {
			return nil, err
		}
		xs = append(xs, y)
	}
	if len(xs) == 1 {
		return x, nil
	}
	return xs, nil
}

func (p *parser) and() (Expr, error) {
	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	xs := and{x}
	for p.keyword("AND") {
		y, err := p.unary()
		if err != nil {
			return nil, err
		}
		xs = append(xs, y)
	}
	if len(xs) == 1 {
		return x, nil
	}
	return xs, nil
}

func (p *parser) unary() (Expr, error) {
	if p.keyword("NOT") {
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return not{x}, nil
	}
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("filter: unexpected end of expression")
	}
	if t.kind == tokLParen {
		p.pos++
		x, err := p.or()
		if err != nil {
			return nil, err
		}
		if r, ok := p.peek(); !ok || r.kind != tokRParen {
			return nil, fmt.Errorf("filter: missing ) for ( at offset %d", t.off)
		}
		p.pos++
		return x, nil
	}
	return p.term()
}

func (p *parser) term() (Expr, error) {
	attr, ok := p.peek()
	if !ok || (attr.kind != tokWord && attr.kind != tokString) {
		return nil, fmt.Errorf("filter: expected attribute at offset %d", attr.off)
	}
	p.pos++
	if c, ok := p.peek(); !ok || c.kind != tokColon {
		return nil, fmt.Errorf("filter: expected : after %q", attr.text)
	}
	p.pos++
	val, ok := p.peek()
	if !ok || (val.kind != tokWord && val.kind != tokString) {
		return nil, fmt.Errorf("filter: expected value for %q", attr.text)
	}
	p.pos++
	return term{attr: attr.text, value: val.text}, nil
}
