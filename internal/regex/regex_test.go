package regex

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDottedIdentifier(t *testing.T) {
	got, err := Parse(`[a-z](\.[a-z])*`)
	require.NoError(t, err)

	want := NewSeq(Chars('a', 'z'), NewStar(NewSeq(Text("."), Chars('a', 'z'))))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parse mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, Equal(want, got))
}

func TestParse(t *testing.T) {
	tests := []struct {
		pattern string
		want    Regex
	}{
		{"", Empty{}},
		{"a", Chars('a', 'a')},
		{"ab", Text("ab")},
		{"[abc]", NewChoice(Chars('a', 'a'), Chars('b', 'b'), Chars('c', 'c'))},
		{`[\-a-c]`, NewChoice(Chars('-', '-'), Chars('a', 'c'))},
		{`[\]-a]`, Chars(']', 'a')},
		{"[a-]", NewChoice(Chars('a', 'a'), Chars('-', '-'))},
		{"a|b|c", NewChoice(Chars('a', 'a'), Chars('b', 'b'), Chars('c', 'c'))},
		{"ab|c", NewChoice(Text("ab"), Chars('c', 'c'))},
		{"a(b|c)d", NewSeq(Chars('a', 'a'), NewChoice(Chars('b', 'b'), Chars('c', 'c')), Chars('d', 'd'))},
		{"a*", NewStar(Chars('a', 'a'))},
		{"a**", NewStar(Chars('a', 'a'))},
		{"a+", Plus(Chars('a', 'a'))},
		{"((a))", Chars('a', 'a')},
		{"a|", NewChoice(Chars('a', 'a'), Empty{})},
		{`\*`, Chars('*', '*')},
		{".", Chars('.', '.')},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := Parse(tt.pattern)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.pattern, diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, pattern := range []string{"(a", "a)", "[a-z", "[]", "*a", `a\`, "[z-a]", "(|*)"} {
		t.Run(pattern, func(t *testing.T) {
			_, err := Parse(pattern)
			require.Error(t, err)
			var se *SyntaxError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestMatches(t *testing.T) {
	dotted := MustParse(`[a-z](\.[a-z])*`)
	assert.True(t, Matches(dotted, "a"))
	assert.True(t, Matches(dotted, "a.b.c"))
	assert.False(t, Matches(dotted, "ab.c.d"))
	assert.False(t, Matches(dotted, "ab..c"))
	assert.False(t, Matches(dotted, "A.b"))
	assert.False(t, Matches(dotted, ""))

	labels := MustParse(`[a-z]+(\.[a-z]+)*`)
	assert.True(t, Matches(labels, "ab.c.d"))
	assert.False(t, Matches(labels, "ab..c"))
	assert.False(t, Matches(labels, "A.b"))
	assert.False(t, Matches(labels, "ab."))

	assert.True(t, Matches(Empty{}, ""))
	assert.False(t, Matches(Empty{}, "a"))
	assert.True(t, Matches(MustParse("a|"), ""))
	assert.True(t, Matches(MustParse("(a|b)*c"), "ababc"))
}

func TestMatchesNullableStarTerminates(t *testing.T) {
	r := Star{Body: NewChoice(Empty{}, Chars('a', 'a'))}
	assert.True(t, Matches(r, "aaa"))
	assert.False(t, Matches(r, "aab"))
}

func TestEncoderNumbering(t *testing.T) {
	e := NewEncoder()
	ref := e.Encode(Text("ab"))
	assert.Equal(t, "&r2", ref)
	assert.Equal(t, []string{
		"Regex r0;", "r0.op = RANGE;", "r0.clo = 97;", "r0.chi = 97;",
		"Regex r1;", "r1.op = RANGE;", "r1.clo = 98;", "r1.chi = 98;",
		"Regex r2;", "r2.op = SEQ;", "r2.left = &r0;", "r2.right = &r1;",
	}, e.Lines())

	// The counter is shared across patterns.
	ref = e.Encode(NewStar(Chars('0', '9')))
	assert.Equal(t, "&r4", ref)
	assert.Equal(t, []string{
		"Regex r3;", "r3.op = RANGE;", "r3.clo = 48;", "r3.chi = 57;",
		"Regex r4;", "r4.op = STAR;", "r4.left = &r3;",
	}, e.Lines())
	assert.Equal(t, 5, e.Count())
}

func TestEncoderChoiceIsLeftAssociative(t *testing.T) {
	e := NewEncoder()
	ref := e.Encode(NewChoice(Chars('a', 'a'), Chars('b', 'b'), Chars('c', 'c')))
	assert.Equal(t, "&r4", ref)
	lines := strings.Join(e.Lines(), "\n")
	assert.Contains(t, lines, "r2.left = &r0;\nr2.right = &r1;")
	assert.Contains(t, lines, "r4.left = &r2;\nr4.right = &r3;")
}

func TestEncoderEmpty(t *testing.T) {
	e := NewEncoder()
	assert.Equal(t, "NULL", e.Encode(Empty{}))
	assert.Empty(t, e.Lines())

	ref := e.Encode(NewChoice(Chars('a', 'a'), Empty{}))
	assert.Equal(t, "&r3", ref)
	lines := e.Lines()
	assert.Contains(t, lines, "r1.clo = 1;")
	assert.Contains(t, lines, "r1.chi = 0;")
	assert.Contains(t, lines, "r2.op = STAR;")
}

func TestMatcherBody(t *testing.T) {
	body := MatcherBody(Chars('a', 'z'), "input")
	require.NotEmpty(t, body)
	assert.Equal(t, "return match(&r0, input);", body[len(body)-1])

	body = MatcherBody(Empty{}, "s")
	assert.Equal(t, []string{"return match(NULL, s);"}, body)
}

func TestRuntime(t *testing.T) {
	assert.True(t, HasRuntime(Runtime))
	assert.False(t, HasRuntime("int main() { return 0; }"))
	assert.Contains(t, Runtime, "static int match(Regex* regex, char *text)")
}

func TestString(t *testing.T) {
	assert.Equal(t, `([a-z](.[a-z])*)`, MustParse(`[a-z](\.[a-z])*`).String())
	assert.Equal(t, `(a)*`, NewStar(Chars('a', 'a')).String())
	assert.Equal(t, "(a|b)", MustParse("a|b").String())
}
