// Package regex implements the small regular expression algebra used by
// preconditions and regex modules: character ranges, choice, sequence and
// Kleene star. Values can be parsed from text, matched in Go, and compiled into
// a literal C AST for the continuation-passing matcher runtime.
package regex

import (
	"strings"
)

// Regex is a node of the regular expression algebra. The set of variants is
// closed: Empty, CharRange, Choice, Seq and Star.
type Regex interface {
	String() string
	isRegex()
}

// Empty matches the empty string.
type Empty struct{}

// CharRange matches one byte in [Lo, Hi].
type CharRange struct {
	Lo byte
	Hi byte
}

// Choice matches any of its alternatives, tried in order.
type Choice struct {
	Alts []Regex
}

// Seq matches its parts one after another.
type Seq struct {
	Parts []Regex
}

// Star matches zero or more repetitions of Body.
type Star struct {
	Body Regex
}

func (Empty) isRegex()     {}
func (CharRange) isRegex() {}
func (Choice) isRegex()    {}
func (Seq) isRegex()       {}
func (Star) isRegex()      {}

func (Empty) String() string { return "" }

func (r CharRange) String() string {
	if r.Lo == r.Hi {
		return quote(r.Lo)
	}
	return "[" + quoteClass(r.Lo) + "-" + quoteClass(r.Hi) + "]"
}

func (r Choice) String() string {
	parts := make([]string, len(r.Alts))
	for i, a := range r.Alts {
		parts[i] = a.String()
	}
	return "(" + strings.Join(parts, "|") + ")"
}

func (r Seq) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range r.Parts {
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (r Star) String() string {
	switch r.Body.(type) {
	case Choice, Seq:
		return r.Body.String() + "*"
	}
	return "(" + r.Body.String() + ")*"
}

const special = `()[]|*+\`

func quote(c byte) string {
	if strings.IndexByte(special, c) >= 0 {
		return `\` + string(c)
	}
	return string(c)
}

func quoteClass(c byte) string {
	if c == ']' || c == '\\' || c == '-' {
		return `\` + string(c)
	}
	return string(c)
}

// Epsilon returns the regex matching only the empty string.
func Epsilon() Regex { return Empty{} }

// Chars matches a single byte in [lo, hi].
func Chars(lo, hi byte) Regex {
	return CharRange{Lo: lo, Hi: hi}
}

// Text matches s exactly.
func Text(s string) Regex {
	switch len(s) {
	case 0:
		return Empty{}
	case 1:
		return Chars(s[0], s[0])
	}
	parts := make([]Regex, len(s))
	for i := 0; i < len(s); i++ {
		parts[i] = Chars(s[i], s[i])
	}
	return Seq{Parts: parts}
}

// NewChoice builds a choice. A single alternative is returned as is and no
// alternatives yield Empty.
func NewChoice(alts ...Regex) Regex {
	switch len(alts) {
	case 0:
		return Empty{}
	case 1:
		return alts[0]
	}
	return Choice{Alts: append([]Regex(nil), alts...)}
}

// NewSeq builds a sequence with the same collapsing rules as NewChoice.
func NewSeq(parts ...Regex) Regex {
	switch len(parts) {
	case 0:
		return Empty{}
	case 1:
		return parts[0]
	}
	return Seq{Parts: append([]Regex(nil), parts...)}
}

// NewStar builds r*. Nested stars collapse since (r*)* == r*.
func NewStar(r Regex) Regex {
	if s, ok := r.(Star); ok {
		return s
	}
	return Star{Body: r}
}

// Plus matches one or more repetitions of r.
func Plus(r Regex) Regex {
	return NewSeq(r, NewStar(r))
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Regex) bool {
	switch a := a.(type) {
	case Empty:
		_, ok := b.(Empty)
		return ok
	case CharRange:
		o, ok := b.(CharRange)
		return ok && a == o
	case Choice:
		o, ok := b.(Choice)
		return ok && equalAll(a.Alts, o.Alts)
	case Seq:
		o, ok := b.(Seq)
		return ok && equalAll(a.Parts, o.Parts)
	case Star:
		o, ok := b.(Star)
		return ok && Equal(a.Body, o.Body)
	}
	return false
}

func equalAll(a, b []Regex) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
