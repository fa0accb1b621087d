package regex

import (
	"fmt"
)

// SyntaxError reports a malformed pattern.
type SyntaxError struct {
	Pattern string
	Pos     int
	Msg     string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("regex %q: %s at offset %d", e.Pattern, e.Msg, e.Pos)
}

// Parse converts a textual pattern into the algebra. Supported syntax is
// character classes with ranges and escapes ([a-z], [\-x]), parenthesized
// groups, alternation with |, and the postfix operators * and +. Every other
// byte, including '.', is a literal. Single-element choices and sequences are
// collapsed.
func Parse(pattern string) (Regex, error) {
	p := &parser{src: pattern}
	r, err := p.alternation()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, p.errorf("unbalanced ')'")
	}
	return r, nil
}

// MustParse is like Parse but panics on error.
func MustParse(pattern string) Regex {
	r, err := Parse(pattern)
	if err != nil {
		panic(err)
	}
	return r
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Pattern: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) alternation() (Regex, error) {
	var alts []Regex
	for {
		s, err := p.sequence()
		if err != nil {
			return nil, err
		}
		alts = append(alts, s)
		if p.eof() || p.peek() != '|' {
			break
		}
		p.pos++
	}
	return NewChoice(alts...), nil
}

func (p *parser) sequence() (Regex, error) {
	var parts []Regex
	for !p.eof() {
		c := p.peek()
		if c == '|' || c == ')' {
			break
		}
		atom, err := p.atom()
		if err != nil {
			return nil, err
		}
		for !p.eof() && (p.peek() == '*' || p.peek() == '+') {
			if p.peek() == '*' {
				atom = NewStar(atom)
			} else {
				atom = Plus(atom)
			}
			p.pos++
		}
		parts = append(parts, atom)
	}
	return NewSeq(parts...), nil
}

func (p *parser) atom() (Regex, error) {
	c := p.peek()
	switch c {
	case '(':
		p.pos++
		inner, err := p.alternation()
		if err != nil {
			return nil, err
		}
		if p.eof() || p.peek() != ')' {
			return nil, p.errorf("missing ')'")
		}
		p.pos++
		return inner, nil
	case '[':
		return p.class()
	case '*', '+':
		return nil, p.errorf("missing operand for %q", c)
	case '\\':
		p.pos++
		if p.eof() {
			return nil, p.errorf("trailing backslash")
		}
		c = p.peek()
	}
	p.pos++
	return Chars(c, c), nil
}

func (p *parser) class() (Regex, error) {
	start := p.pos
	p.pos++ // '['
	var opts []Regex
	for {
		if p.eof() {
			p.pos = start
			return nil, p.errorf("missing ']'")
		}
		if p.peek() == ']' {
			p.pos++
			break
		}
		lo, err := p.classChar()
		if err != nil {
			return nil, err
		}
		hi := lo
		if p.pos+1 < len(p.src) && p.peek() == '-' && p.src[p.pos+1] != ']' {
			p.pos++
			if hi, err = p.classChar(); err != nil {
				return nil, err
			}
			if hi < lo {
				return nil, p.errorf("invalid range %c-%c", lo, hi)
			}
		}
		opts = append(opts, Chars(lo, hi))
	}
	if len(opts) == 0 {
		p.pos = start
		return nil, p.errorf("empty character class")
	}
	return NewChoice(opts...), nil
}

func (p *parser) classChar() (byte, error) {
	c := p.peek()
	p.pos++
	if c != '\\' {
		return c, nil
	}
	if p.eof() {
		return 0, p.errorf("trailing backslash")
	}
	c = p.peek()
	p.pos++
	return c, nil
}
