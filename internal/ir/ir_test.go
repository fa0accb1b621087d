package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsynth/internal/regex"
	"modelsynth/internal/types"
)

func wrapAliases(t Type, n int) Type {
	for i := 0; i < n; i++ {
		t = Alias{AliasName: "layer" + string(rune('a'+i)), Inner: t}
	}
	return t
}

func TestAliasTransparency(t *testing.T) {
	point := Must(NewStruct("point", Field{"x", Uint32}, Field{"y", Uint32}))
	list := Must(NewArray(Uint8, 3))

	for n := 0; n <= 4; n++ {
		st := wrapAliases(point, n)
		assert.True(t, Equal(st, point), "struct under %d aliases", n)
		_, err := NewField(NewVar("p", st), "x")
		assert.NoError(t, err, "field under %d aliases", n)
		_, err = NewFieldAs(NewVar("p", st), "y", wrapAliases(Uint32, n))
		assert.NoError(t, err)

		arr := wrapAliases(list, n)
		_, err = NewForall(NewVar("a", arr), func(e Expr) (Expr, error) {
			return NewBinop(OpLt, e, Uint(10))
		})
		assert.NoError(t, err, "forall under %d aliases", n)
	}
}

func TestConstructionErrors(t *testing.T) {
	_, err := NewString(-1)
	assert.True(t, types.IsConstruction(err))

	_, err = NewField(NewVar("x", Uint32), "f")
	assert.True(t, types.IsConstruction(err))

	point := Must(NewStruct("point", Field{"x", Uint32}))
	_, err = NewFieldAs(NewVar("p", point), "x", Uint8)
	assert.True(t, types.IsConstruction(err))
	_, err = NewField(NewVar("p", point), "z")
	assert.True(t, types.IsConstruction(err))

	_, err = NewNot(NewVar("x", Uint32))
	assert.True(t, types.IsConstruction(err))

	_, err = NewMatch(NewVar("x", Uint32), regex.Text("a"))
	assert.True(t, types.IsConstruction(err))

	_, err = NewForall(NewVar("x", Uint32), func(e Expr) (Expr, error) { return e, nil })
	assert.True(t, types.IsConstruction(err))

	_, err = NewForall(NewVar("a", Must(NewArray(Uint8, 2))), func(e Expr) (Expr, error) { return e, nil })
	assert.True(t, types.IsConstruction(err), "non-bool forall body")

	_, err = NewStruct("s", Field{"a", Bool{}}, Field{"a", Char{}})
	assert.True(t, types.IsConstruction(err))

	_, err = NewEnum("color")
	assert.True(t, types.IsConstruction(err))

	_, err = NewConst(Uint8, StringValue("x"))
	assert.True(t, types.IsConstruction(err))

	_, err = NewConst(Uint8, IntValue(256))
	assert.True(t, types.IsConstruction(err))

	_, err = NewBinop(OpAdd, NewVar("s", String{MaxLen: 3}), Uint(1))
	assert.True(t, types.IsConstruction(err))
}

func TestFunctionParameters(t *testing.T) {
	_, err := NewFunction("f", "", []Parameter{
		{Name: "x", Type: Uint32},
		{Name: "x", Type: Uint32},
	}, nil)
	require.Error(t, err)
	assert.True(t, types.IsConstruction(err))

	params := []Parameter{
		{Name: "a", Type: Uint32},
		{Name: "b", Type: Bool{}},
		{Name: "c", Type: Char{}},
		{Name: "result", Type: Uint32},
	}
	f, err := NewFunction("f", "doc", params, nil)
	require.NoError(t, err)
	assert.Len(t, f.Inputs, len(params)-1)
	assert.Equal(t, "result", f.Result.Name)
	assert.False(t, f.ReturnsVoid())
	assert.Len(t, f.Outputs(), len(params))
}

func TestFunctionVoidResult(t *testing.T) {
	_, err := NewFunction("f", "", []Parameter{{Name: "r", Type: Void{}}}, nil)
	assert.True(t, types.IsConstruction(err))

	f, err := NewFunction("fill", "", []Parameter{
		{Name: "n", Type: Uint8},
		{Name: "out", Type: Must(NewArray(Uint8, 4))},
		{Name: "r", Type: Void{}},
	}, nil)
	require.NoError(t, err)
	assert.True(t, f.ReturnsVoid())
	out, ok := f.OutParam()
	require.True(t, ok)
	assert.Equal(t, "out", out.Name)
	assert.Len(t, f.Outputs(), 2)
}

func TestFunctionRejectsArrayResult(t *testing.T) {
	_, err := NewFunction("f", "", []Parameter{
		{Name: "x", Type: Uint8},
		{Name: "r", Type: Must(NewArray(Uint8, 2))},
	}, nil)
	assert.True(t, types.IsConstruction(err))
}

func TestFunctionPreconditionChecks(t *testing.T) {
	x := Parameter{Name: "x", Type: Uint32}
	pre := Must(NewBinop(OpLt, NewVar("y", Uint32), Uint(3)))
	_, err := NewFunction("f", "", []Parameter{x, {Name: "r", Type: Uint32}}, pre)
	assert.True(t, types.IsConstruction(err), "unknown variable")

	_, err = NewFunction("f", "", []Parameter{x, {Name: "r", Type: Uint32}}, Uint(1))
	assert.True(t, types.IsConstruction(err), "non-bool precondition")
}

func TestRegexModule(t *testing.T) {
	f, err := NewRegexModule("is_word", "[a-z]*", Parameter{Name: "s", Type: String{MaxLen: 4}})
	require.NoError(t, err)
	assert.True(t, f.IsRegexModule())
	assert.Equal(t, "result", f.Result.Name)
	assert.Equal(t, ModuleDocPrefix+"[a-z]*", f.Doc)

	_, err = NewRegexModule("bad", "(a", Parameter{Name: "s", Type: String{MaxLen: 4}})
	assert.True(t, types.IsConstruction(err))
	_, err = NewRegexModule("bad", "a", Parameter{Name: "s", Type: Uint8})
	assert.True(t, types.IsConstruction(err))
}

func TestDependenciesOrder(t *testing.T) {
	color := Must(NewEnum("color", "RED", "GREEN"))
	name := Must(NewAlias("name_t", String{MaxLen: 3}, "A short name."))
	pixel := Must(NewStruct("pixel", Field{"c", color}, Field{"n", name}))
	arr := Must(NewArray(pixel, 2))

	deps := Dependencies(arr)
	var names []string
	for _, d := range deps {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"color", "string3", "name_t", "pixel", "pixel[2]"}, names)

	var pre []string
	Walk(arr, func(t Type) { pre = append(pre, t.Name()) })
	assert.Equal(t, []string{"pixel[2]", "pixel", "color", "name_t", "string3"}, pre)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Array{Elem: String{MaxLen: 2}, Len: 3}))
	assert.Error(t, Validate(Array{Elem: String{MaxLen: -2}, Len: 3}))
	assert.Error(t, Validate(Struct{StructName: "s"}))
	assert.Error(t, Validate(Int{Width: 0}))
}

func TestHasMatch(t *testing.T) {
	s := NewVar("s", String{MaxLen: 3})
	m := Must(NewMatch(s, regex.Text("ab")))
	assert.True(t, HasMatch(m))
	assert.False(t, HasMatch(Must(NewBinop(OpEq, s, Str("x")))))

	words := NewVar("w", Must(NewArray(String{MaxLen: 2}, 2)))
	all := Must(NewForall(words, func(e Expr) (Expr, error) {
		return NewMatch(e, regex.Chars('a', 'z'))
	}))
	assert.True(t, HasMatch(all))
	inner := Must(Implies(BoolConst(true), all))
	assert.True(t, HasMatch(inner))
}

func TestEval(t *testing.T) {
	point := Must(NewStruct("point", Field{"x", Uint8}, Field{"y", Uint8}))
	p := NewVar("p", point)
	xs := NewVar("xs", Must(NewArray(Uint8, 3)))
	s := NewVar("s", String{MaxLen: 4})

	env := Env{
		"p":  StructValue{{"x", IntValue(3)}, {"y", IntValue(250)}},
		"xs": ArrayValue{IntValue(1), IntValue(2), IntValue(3)},
		"s":  StringValue("ab.c"),
	}

	px := Must(NewField(p, "x"))
	py := Must(NewField(p, "y"))
	sum := Must(NewBinop(OpAdd, py, Uint(10)))
	v, err := Eval(sum, env)
	require.NoError(t, err)
	assert.Equal(t, IntValue(4), v, "uint8 arithmetic wraps")

	lt := Must(NewBinop(OpLt, px, py))
	ok, err := Holds(lt, env)
	require.NoError(t, err)
	assert.True(t, ok)

	bounded := Must(NewForall(xs, func(e Expr) (Expr, error) {
		return NewBinop(OpLe, e, Uint(3))
	}))
	ok, err = Holds(bounded, env)
	require.NoError(t, err)
	assert.True(t, ok)

	strict := Must(NewForall(xs, func(e Expr) (Expr, error) {
		return NewBinop(OpLt, e, Uint(3))
	}))
	ok, err = Holds(strict, env)
	require.NoError(t, err)
	assert.False(t, ok)

	dotted := Must(NewMatch(s, regex.MustParse(`[a-z]+(\.[a-z]+)*`)))
	ok, err = Holds(dotted, env)
	require.NoError(t, err)
	assert.True(t, ok)

	eq := Must(NewBinop(OpEq, s, Str("ab.c")))
	ok, err = Holds(eq, env)
	require.NoError(t, err)
	assert.True(t, ok)

	imp := Must(Implies(Must(NewNot(eq)), BoolConst(false)))
	ok, err = Holds(imp, env)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalAbsent(t *testing.T) {
	x := NewVar("x", Uint8)
	_, err := Holds(Must(NewBinop(OpEq, x, Uint(1))), Env{"x": Absent{}})
	assert.ErrorIs(t, err, ErrAbsent)

	_, err = Holds(Must(NewBinop(OpEq, x, Uint(1))), Env{})
	assert.Error(t, err)
}

func TestValueKeys(t *testing.T) {
	a := Tuple{StructValue{{"n", StringValue("ab")}, {"k", EnumValue{"RED", 0}}}, IntValue(7)}
	b := Tuple{StructValue{{"n", StringValue("ab")}, {"k", EnumValue{"RED", 0}}}, IntValue(7)}
	c := Tuple{StructValue{{"n", StringValue("ab")}, {"k", EnumValue{"GREEN", 1}}}, IntValue(7)}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, `({n: "ab", k: RED}, 7)`, a.String())

	assert.NotEqual(t, StringValue("1").Key(), IntValue(1).Key())
	assert.True(t, IsAbsent(ArrayValue{IntValue(1), Absent{}}))
	assert.False(t, IsAbsent(a[0]))
}

func TestZeroValueConforms(t *testing.T) {
	color := Must(NewEnum("color", "RED", "GREEN"))
	rec := Must(NewStruct("rec", Field{"c", color}, Field{"s", String{MaxLen: 2}}, Field{"a", Must(NewArray(Bool{}, 2))}))
	z := ZeroValue(rec)
	assert.True(t, Conforms(z, rec))
	assert.Equal(t, `{c: RED, s: "", a: [false, false]}`, z.String())
}

func TestNamedConst(t *testing.T) {
	_, err := NewNamedConst("LIMIT", Uint32, IntValue(5))
	require.NoError(t, err)
	_, err = NewNamedConst("WORDS", Must(NewArray(String{MaxLen: 3}, 2)), ArrayValue{StringValue("a"), StringValue("bc")})
	require.NoError(t, err)
	_, err = NewNamedConst("P", Must(NewStruct("p", Field{"x", Uint8})), StructValue{{"x", IntValue(1)}})
	assert.True(t, types.IsConstruction(err))
}
