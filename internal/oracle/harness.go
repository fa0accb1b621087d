package oracle

import (
	"fmt"
	"strings"

	"modelsynth/internal/ir"
	"modelsynth/internal/regex"
	"modelsynth/internal/types"
)

// builder accumulates the statements of a KLEE main function. Every
// allocated object, symbolic or not, takes the next xN name, which is the
// order the decoder walks.
type builder struct {
	lines []string
	next  int
	regex *regex.Encoder
}

func newBuilder() *builder {
	return &builder{regex: regex.NewEncoder()}
}

func (b *builder) name() string {
	n := fmt.Sprintf("x%d", b.next)
	b.next++
	return n
}

func (b *builder) emit(format string, args ...interface{}) {
	b.lines = append(b.lines, fmt.Sprintf(format, args...))
}

func (b *builder) makeSymbolic(v string) {
	b.emit(`klee_make_symbolic(&%s, sizeof(%s), "%s");`, v, v, v)
}

// assign stores src into dst, copying when the value is an array.
func (b *builder) assign(t ir.Type, dst, src string) {
	if _, ok := ir.Resolve(t).(ir.Array); ok {
		b.emit("memcpy(%s, %s, sizeof(%s));", dst, src, src)
		return
	}
	b.emit("%s = %s;", dst, src)
}

// symbolic allocates a fully symbolic value of type t and returns the
// variable holding it.
func (b *builder) symbolic(t ir.Type) string {
	switch t := ir.Resolve(t).(type) {
	case ir.Bool, ir.Char:
		v := b.name()
		b.emit("%s;", declare(t, v))
		b.makeSymbolic(v)
		return v
	case ir.Int:
		v := b.name()
		b.emit("%s;", declare(t, v))
		b.makeSymbolic(v)
		if !standardWidth(t.Width) {
			b.emit("klee_assume(%s <= %d);", v, uint64(1)<<uint(t.Width)-1)
		}
		return v
	case ir.Enum:
		v := b.name()
		b.emit("%s;", declare(t, v))
		b.makeSymbolic(v)
		b.emit("klee_assume(%s >= 0);", v)
		b.emit("klee_assume(%s < %d);", v, len(t.Values))
		return v
	case ir.String:
		v := b.name()
		b.emit("char %s[%d];", v, t.MaxLen+1)
		for i := 0; i < t.MaxLen; i++ {
			c := b.symbolic(ir.Char{})
			b.emit("%s[%d] = %s;", v, i, c)
		}
		b.emit(`%s[%d] = '\0';`, v, t.MaxLen)
		return v
	case ir.Array:
		v := b.name()
		b.emit("%s;", declare(t, v))
		for i := 0; i < t.Len; i++ {
			e := b.symbolic(t.Elem)
			b.assign(t.Elem, fmt.Sprintf("%s[%d]", v, i), e)
		}
		return v
	case ir.Struct:
		v := b.name()
		b.emit("%s %s;", t.StructName, v)
		for _, f := range t.Fields {
			fv := b.symbolic(f.Type)
			b.assign(f.Type, v+"."+f.Name, fv)
		}
		return v
	}
	panic(fmt.Sprintf("oracle: cannot allocate %T", t))
}

// plain declares an ordinary, overwritable variable of type t. Strings get
// a writable buffer.
func (b *builder) plain(t ir.Type) string {
	v := b.name()
	if s, ok := ir.Resolve(t).(ir.String); ok {
		b.emit("char %s[%d];", v, s.MaxLen+1)
		return v
	}
	b.emit("%s;", declare(ir.Resolve(t), v))
	return v
}

// sentinel emits statements setting lv to the zero value of t. buffer is set
// when lv is a char array rather than a char pointer.
func (b *builder) sentinel(t ir.Type, lv string, buffer bool) {
	switch t := ir.Resolve(t).(type) {
	case ir.Bool:
		b.emit("%s = false;", lv)
	case ir.Char, ir.Int, ir.Enum:
		b.emit("%s = 0;", lv)
	case ir.String:
		if buffer {
			b.emit(`%s[0] = '\0';`, lv)
		} else {
			b.emit(`%s = "";`, lv)
		}
	case ir.Array:
		for i := 0; i < t.Len; i++ {
			b.sentinel(t.Elem, fmt.Sprintf("%s[%d]", lv, i), false)
		}
	case ir.Struct:
		for _, f := range t.Fields {
			b.sentinel(f.Type, lv+"."+f.Name, false)
		}
	}
}

// equality builds a C condition comparing a and b structurally.
func equality(t ir.Type, a, b string) string {
	switch t := ir.Resolve(t).(type) {
	case ir.Void:
		return "true"
	case ir.String:
		return fmt.Sprintf("strcmp(%s, %s) == 0", a, b)
	case ir.Array:
		conds := make([]string, t.Len)
		for i := range conds {
			ext := fmt.Sprintf("[%d]", i)
			conds[i] = "(" + equality(t.Elem, a+ext, b+ext) + ")"
		}
		return "(" + strings.Join(conds, " & ") + ")"
	case ir.Struct:
		conds := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			conds[i] = "(" + equality(f.Type, a+"."+f.Name, b+"."+f.Name) + ")"
		}
		return "(" + strings.Join(conds, " & ") + ")"
	}
	return fmt.Sprintf("%s == %s", a, b)
}

// frame holds the variables allocated for the function's parameters.
type frame struct {
	names map[string]string // parameter name to harness variable
	args  []string          // call arguments
	// actual is compared against expected after the call: result_tmp, or
	// the plain out-parameter of a void function.
	actual   string
	expected string
}

// allocate declares the symbolic inputs followed by either the plain and
// expected out-parameter pair or the expected result. The precondition sees
// the expected value under the out-parameter's name.
func (b *builder) allocate(fn *ir.Function) *frame {
	fr := &frame{names: make(map[string]string)}
	inputs := fn.Inputs
	out, void := fn.OutParam()
	if void {
		inputs = inputs[:len(inputs)-1]
	}
	for _, p := range inputs {
		v := b.symbolic(p.Type)
		fr.names[p.Name] = v
		fr.args = append(fr.args, v)
	}
	if void {
		fr.actual = b.plain(out.Type)
		if byReference(out.Type) {
			fr.args = append(fr.args, "&"+fr.actual)
		} else {
			fr.args = append(fr.args, fr.actual)
		}
		fr.expected = b.symbolic(out.Type)
		fr.names[out.Name] = fr.expected
		return fr
	}
	fr.expected = b.symbolic(fn.Result.Type)
	fr.names[fn.Result.Name] = fr.expected
	fr.actual = "result_tmp"
	return fr
}

// assume translates the precondition, if any, into a klee_assume.
func (b *builder) assume(fn *ir.Function, fr *frame) error {
	if fn.Precondition == nil {
		return nil
	}
	cond, err := translate(fn.Precondition, fr.names, b.regex)
	if err != nil {
		return err
	}
	b.lines = append(b.lines, b.regex.Lines()...)
	b.emit("klee_assume(%s);", cond)
	return nil
}

func (b *builder) program() string {
	var sb strings.Builder
	sb.WriteString("int main() {\n")
	for _, line := range b.lines {
		sb.WriteString("    " + line + "\n")
	}
	sb.WriteString("    return 0;\n}")
	return sb.String()
}

// testHarness builds main for fn: symbolic inputs and expected output, the
// precondition, the call and the equality assumption tying the actual
// output to the expected one.
func testHarness(fn *ir.Function) (string, error) {
	b := newBuilder()
	fr := b.allocate(fn)
	if err := b.assume(fn, fr); err != nil {
		return "", err
	}
	call := fmt.Sprintf("%s(%s)", fn.Name, strings.Join(fr.args, ", "))
	if fn.ReturnsVoid() {
		b.emit("%s;", call)
		b.emit("klee_assume(%s);", equality(mustOut(fn).Type, fr.actual, fr.expected))
	} else {
		b.emit("%s = %s;", declare(fn.Result.Type, fr.actual), call)
		b.emit("klee_assume(%s);", equality(fn.Result.Type, fr.actual, fr.expected))
	}
	return b.program(), nil
}

// filterHarness guards the call behind the filters. A symbolic bit tied to
// bad_input makes both the accepting and the rejecting path feasible; on the
// rejecting path the output is forced to its zero value.
func filterHarness(fn *ir.Function, filters []*ir.Function) (string, error) {
	b := newBuilder()
	fr := b.allocate(fn)

	guards := make([]string, len(filters))
	k := 0
	for i, f := range filters {
		n := len(f.Inputs)
		if k+n > len(fr.args) {
			return "", types.NewConstructionError("Harness",
				"filter %s needs %d arguments, only %d of %s remain", f.Name, n, len(fr.args)-k, fn.Name)
		}
		guards[i] = fmt.Sprintf("%s(%s)", f.Name, strings.Join(fr.args[k:k+n], ", "))
		k += n
	}

	b.emit("bool bad_input;")
	void := fn.ReturnsVoid()
	if !void {
		b.emit("%s;", declare(fn.Result.Type, fr.actual))
	}
	bit := b.name()
	b.emit("bool %s;", bit)
	b.makeSymbolic(bit)
	if err := b.assume(fn, fr); err != nil {
		return "", err
	}

	call := fmt.Sprintf("%s(%s)", fn.Name, strings.Join(fr.args, ", "))
	b.emit("if (%s) {", strings.Join(guards, " && "))
	b.emit("    bad_input = false;")
	if void {
		b.emit("    %s;", call)
	} else {
		b.emit("    %s = %s;", fr.actual, call)
	}
	b.emit("} else {")
	b.emit("    bad_input = true;")
	sentinel := newBuilder()
	outType := fn.Result.Type
	if void {
		outType = mustOut(fn).Type
	}
	sentinel.sentinel(outType, fr.actual, void)
	for _, line := range sentinel.lines {
		b.emit("    %s", line)
	}
	b.emit("}")
	b.emit("klee_assume(%s);", equality(outType, fr.actual, fr.expected))
	b.emit("klee_assume(bad_input == %s);", bit)
	return b.program(), nil
}

func mustOut(fn *ir.Function) ir.Parameter {
	p, _ := fn.OutParam()
	return p
}
