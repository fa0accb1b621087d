package regex

import (
	"fmt"
	"strings"
)

// RuntimeMarker is the first declaration of Runtime. Its presence in a
// program means the runtime has already been inserted.
const RuntimeMarker = "typedef enum { OR, SEQ, STAR, RANGE } RegexOp;"

// Runtime is the fixed C matcher that interprets ASTs emitted by Encoder.
// OR tries both sides, SEQ matches the left side with the right side pushed
// onto the continuation, STAR either runs the continuation or unrolls one more
// iteration, RANGE consumes one character.
const Runtime = `
// Regular expression node kinds.
` + RuntimeMarker + `

typedef struct Regex Regex;
struct Regex {
    RegexOp op;
    int clo;
    int chi;
    Regex* left;
    Regex* right;
};

// Pending regexes still to be matched after the current one.
typedef struct RegexCont RegexCont;
struct RegexCont {
    Regex* regex;
    RegexCont* next;
};

static int match_cont(Regex* regex, RegexCont* cont, char *text) {
  if (regex == NULL) {
    return *text == '\0';
  }
  if (regex->op == OR) {
    return match_cont(regex->left, cont, text) || match_cont(regex->right, cont, text);
  }
  if (regex->op == SEQ) {
    RegexCont c;
    c.next = cont;
    c.regex = regex->right;
    return match_cont(regex->left, &c, text);
  }
  if (regex->op == STAR) {
    Regex r;
    r.op = SEQ;
    r.left = regex->left;
    r.right = regex;
    return match_cont(cont->regex, cont->next, text) || (*text != '\0' && match_cont(&r, cont, text));
  }
  if (regex->op == RANGE) {
    char c = *text++;
    return c != '\0' && c >= regex->clo && c <= regex->chi && match_cont(cont->regex, cont->next, text);
  }
  return 0;
}

static int match(Regex* regex, char *text) {
    RegexCont cont;
    cont.next = NULL;
    cont.regex = NULL;
    return match_cont(regex, &cont, text);
}
`

// Encoder emits C declarations building a Regex AST on the stack. Names are
// drawn from a counter shared by every Encode call on the same Encoder, so
// several patterns can live in one function body.
type Encoder struct {
	next  int
	lines []string
}

// NewEncoder returns an encoder whose first node is r0.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode appends the declarations for r and returns an expression usable as
// the first argument of match(): "&rN", or "NULL" when r is Empty.
func (e *Encoder) Encode(r Regex) string {
	if _, ok := r.(Empty); ok {
		return "NULL"
	}
	return "&" + e.node(r)
}

// Lines returns and clears the declarations emitted so far.
func (e *Encoder) Lines() []string {
	lines := e.lines
	e.lines = nil
	return lines
}

// Count is the number of nodes allocated so far.
func (e *Encoder) Count() int { return e.next }

func (e *Encoder) name() string {
	n := fmt.Sprintf("r%d", e.next)
	e.next++
	return n
}

func (e *Encoder) emit(format string, args ...interface{}) {
	e.lines = append(e.lines, fmt.Sprintf(format, args...))
}

func (e *Encoder) rangeNode(lo, hi int) string {
	v := e.name()
	e.emit("Regex %s;", v)
	e.emit("%s.op = RANGE;", v)
	e.emit("%s.clo = %d;", v, lo)
	e.emit("%s.chi = %d;", v, hi)
	return v
}

func (e *Encoder) binop(op string, rs []Regex) string {
	acc := e.node(rs[0])
	for _, r := range rs[1:] {
		right := e.node(r)
		v := e.name()
		e.emit("Regex %s;", v)
		e.emit("%s.op = %s;", v, op)
		e.emit("%s.left = &%s;", v, acc)
		e.emit("%s.right = &%s;", v, right)
		acc = v
	}
	return acc
}

func (e *Encoder) star(body string) string {
	v := e.name()
	e.emit("Regex %s;", v)
	e.emit("%s.op = STAR;", v)
	e.emit("%s.left = &%s;", v, body)
	return v
}

func (e *Encoder) node(r Regex) string {
	switch r := r.(type) {
	case Empty:
		// Inside a compound node the empty string is a star over a range
		// no character satisfies.
		return e.star(e.rangeNode(1, 0))
	case CharRange:
		return e.rangeNode(int(r.Lo), int(r.Hi))
	case Choice:
		return e.binop("OR", r.Alts)
	case Seq:
		return e.binop("SEQ", r.Parts)
	case Star:
		if inner, ok := r.Body.(Star); ok {
			return e.node(inner)
		}
		return e.star(e.node(r.Body))
	}
	panic(fmt.Sprintf("regex: unknown node %T", r))
}

// MatcherBody returns the statements of a C predicate that reports whether
// input matches r.
func MatcherBody(r Regex, input string) []string {
	e := NewEncoder()
	ref := e.Encode(r)
	lines := e.Lines()
	return append(lines, fmt.Sprintf("return match(%s, %s);", ref, input))
}

// HasRuntime reports whether program already contains Runtime.
func HasRuntime(program string) bool {
	return strings.Contains(program, RuntimeMarker)
}
