package ir

import (
	"fmt"

	"github.com/google/uuid"

	"modelsynth/internal/regex"
	"modelsynth/internal/types"
)

// Expr is a precondition or constraint expression: Var, Const, Not, Match,
// Binop, Field or Forall. Nodes are built through constructors, which type
// check their operands.
type Expr interface {
	// Type is the static type of the expression.
	Type() Type
	isExpr()
}

// Var refers to a function parameter or a Forall-bound element.
type Var struct {
	Name string
	typ  Type
}

// Const is a literal.
type Const struct {
	Value Value
	typ   Type
}

// Not is boolean negation.
type Not struct {
	X Expr
}

// Match tests a string against a regex.
type Match struct {
	X     Expr
	Regex regex.Regex
}

// Op is a binary operator.
type Op string

// Binary operators. And and Or are logical on booleans and bitwise on
// integers, as in C.
const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLe  Op = "<="
	OpGt  Op = ">"
	OpGe  Op = ">="
	OpAdd Op = "+"
	OpSub Op = "-"
	OpAnd Op = "&"
	OpOr  Op = "|"
)

// IsComparison reports whether op yields a Bool.
func (op Op) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Binop is a binary operation.
type Binop struct {
	Op    Op
	Left  Expr
	Right Expr
	typ   Type
}

// FieldExpr projects a struct field.
type FieldExpr struct {
	X     Expr
	Field string
	typ   Type
}

// Forall holds when Body holds for every slot of the fixed-size array X.
// Body is invoked once per slot with a fresh element variable.
type Forall struct {
	X    Expr
	Body func(elem Expr) (Expr, error)
	elem Type
	n    int
}

func (*Var) isExpr()       {}
func (*Const) isExpr()     {}
func (*Not) isExpr()       {}
func (*Match) isExpr()     {}
func (*Binop) isExpr()     {}
func (*FieldExpr) isExpr() {}
func (*Forall) isExpr()    {}

func (e *Var) Type() Type       { return e.typ }
func (e *Const) Type() Type     { return e.typ }
func (*Not) Type() Type         { return Bool{} }
func (*Match) Type() Type       { return Bool{} }
func (e *Binop) Type() Type     { return e.typ }
func (e *FieldExpr) Type() Type { return e.typ }
func (*Forall) Type() Type      { return Bool{} }

// NewVar references a variable of type t.
func NewVar(name string, t Type) *Var {
	return &Var{Name: name, typ: t}
}

// NewConst builds a literal of type t, checking that v conforms to it.
func NewConst(t Type, v Value) (*Const, error) {
	if !Conforms(v, t) {
		return nil, types.NewConstructionError("Const", "value %s does not conform to %s", v, t.Name())
	}
	return &Const{Value: v, typ: t}, nil
}

// Uint is a 32-bit integer literal.
func Uint(n uint64) *Const {
	return &Const{Value: IntValue(n), typ: Uint32}
}

// Str is a string literal.
func Str(s string) *Const {
	return &Const{Value: StringValue(s), typ: String{MaxLen: len(s)}}
}

// BoolConst is a boolean literal.
func BoolConst(b bool) *Const {
	return &Const{Value: BoolValue(b), typ: Bool{}}
}

// EnumConst is the literal label of enum t.
func EnumConst(t Enum, label string) (*Const, error) {
	i := t.Index(label)
	if i < 0 {
		return nil, types.NewConstructionError("Const", "%s has no value %q", t.EnumName, label)
	}
	return &Const{Value: EnumValue{Label: label, Index: i}, typ: t}, nil
}

// NewNot negates a boolean expression.
func NewNot(x Expr) (*Not, error) {
	if _, ok := Resolve(x.Type()).(Bool); !ok {
		return nil, types.NewConstructionError("Not", "operand has type %s, want bool", x.Type().Name())
	}
	return &Not{X: x}, nil
}

// NewMatch tests a string expression against r.
func NewMatch(x Expr, r regex.Regex) (*Match, error) {
	if _, ok := Resolve(x.Type()).(String); !ok {
		return nil, types.NewConstructionError("Match", "operand has type %s, want string", x.Type().Name())
	}
	if r == nil {
		return nil, types.NewConstructionError("Match", "nil regex")
	}
	return &Match{X: x, Regex: r}, nil
}

type kind int

const (
	kindOther kind = iota
	kindBool
	kindNumeric
	kindString
)

func kindOf(t Type) kind {
	switch Resolve(t).(type) {
	case Bool:
		return kindBool
	case Int, Char, Enum:
		return kindNumeric
	case String:
		return kindString
	}
	return kindOther
}

// NewBinop builds a binary operation. Comparisons yield Bool; arithmetic
// yields the left operand's type.
func NewBinop(op Op, left, right Expr) (*Binop, error) {
	lk, rk := kindOf(left.Type()), kindOf(right.Type())
	fail := func(why string) (*Binop, error) {
		return nil, types.NewConstructionError("Binop", "%s %s %s: %s",
			left.Type().Name(), op, right.Type().Name(), why)
	}
	var t Type
	switch op {
	case OpEq, OpNe:
		if lk == kindOther || rk == kindOther {
			return fail("operands are not comparable")
		}
		if lk != rk && !(lk == kindBool && rk == kindNumeric) && !(lk == kindNumeric && rk == kindBool) {
			return fail("mismatched operand kinds")
		}
		t = Bool{}
	case OpLt, OpLe, OpGt, OpGe:
		if lk != rk || (lk != kindNumeric && lk != kindString) {
			return fail("operands are not ordered")
		}
		t = Bool{}
	case OpAdd, OpSub:
		if lk != kindNumeric || rk != kindNumeric {
			return fail("arithmetic needs numeric operands")
		}
		t = left.Type()
	case OpAnd, OpOr:
		switch {
		case lk == kindBool && rk == kindBool:
			t = Bool{}
		case lk == kindNumeric && rk == kindNumeric:
			t = left.Type()
		default:
			return fail("operands must both be bool or both numeric")
		}
	default:
		return fail("unknown operator")
	}
	return &Binop{Op: op, Left: left, Right: right, typ: t}, nil
}

// NewField projects field name out of a struct-typed expression.
func NewField(x Expr, name string) (*FieldExpr, error) {
	s, ok := Resolve(x.Type()).(Struct)
	if !ok {
		return nil, types.NewConstructionError("Field", "operand has type %s, want struct", x.Type().Name())
	}
	f, ok := s.Field(name)
	if !ok {
		return nil, types.NewConstructionError("Field", "%s has no field %q", s.StructName, name)
	}
	return &FieldExpr{X: x, Field: name, typ: f.Type}, nil
}

// NewFieldAs is NewField that additionally requires the field to have type want.
func NewFieldAs(x Expr, name string, want Type) (*FieldExpr, error) {
	f, err := NewField(x, name)
	if err != nil {
		return nil, err
	}
	if !Equal(f.typ, want) {
		return nil, types.NewConstructionError("Field", "field %q has type %s, want %s", name, f.typ.Name(), want.Name())
	}
	return f, nil
}

// NewForall quantifies body over every element of an array expression. The
// body is checked once against a probe variable.
func NewForall(x Expr, body func(Expr) (Expr, error)) (*Forall, error) {
	a, ok := Resolve(x.Type()).(Array)
	if !ok {
		return nil, types.NewConstructionError("Forall", "operand has type %s, want array", x.Type().Name())
	}
	f := &Forall{X: x, Body: body, elem: a.Elem, n: a.Len}
	probe, err := f.Instantiate()
	if err != nil {
		return nil, err
	}
	if _, ok := Resolve(probe.Body.Type()).(Bool); !ok {
		return nil, types.NewConstructionError("Forall", "body has type %s, want bool", probe.Body.Type().Name())
	}
	return f, nil
}

// Len is the number of array slots the quantifier ranges over.
func (f *Forall) Len() int { return f.n }

// Elem is the element type of the quantified array.
func (f *Forall) Elem() Type { return f.elem }

// Binding is one instantiation of a Forall body.
type Binding struct {
	Var  *Var
	Body Expr
}

// Instantiate applies the body to a fresh, uniquely named element variable.
func (f *Forall) Instantiate() (Binding, error) {
	v := NewVar("elem_"+uuid.NewString(), Resolve(f.elem))
	body, err := f.Body(v)
	if err != nil {
		return Binding{}, err
	}
	if body == nil {
		return Binding{}, types.NewConstructionError("Forall", "body returned nil")
	}
	return Binding{Var: v, Body: body}, nil
}

// Implies builds !a | b.
func Implies(a, b Expr) (Expr, error) {
	na, err := NewNot(a)
	if err != nil {
		return nil, err
	}
	return NewBinop(OpOr, na, b)
}

// And folds operands with &.
func And(first Expr, rest ...Expr) (Expr, error) {
	return fold(OpAnd, first, rest)
}

// Or folds operands with |.
func Or(first Expr, rest ...Expr) (Expr, error) {
	return fold(OpOr, first, rest)
}

func fold(op Op, acc Expr, rest []Expr) (Expr, error) {
	for _, e := range rest {
		b, err := NewBinop(op, acc, e)
		if err != nil {
			return nil, err
		}
		acc = b
	}
	return acc, nil
}

// HasMatch reports whether e contains a Match node anywhere, including inside
// Forall bodies.
func HasMatch(e Expr) bool {
	found := false
	_ = Inspect(e, func(e Expr) bool {
		if _, ok := e.(*Match); ok {
			found = true
		}
		return !found
	})
	return found
}

// Inspect visits e and its children in pre-order until fn returns false.
// Forall bodies are visited through one fresh instantiation.
func Inspect(e Expr, fn func(Expr) bool) error {
	if !fn(e) {
		return nil
	}
	switch e := e.(type) {
	case *Var, *Const:
	case *Not:
		return Inspect(e.X, fn)
	case *Match:
		return Inspect(e.X, fn)
	case *Binop:
		if err := Inspect(e.Left, fn); err != nil {
			return err
		}
		return Inspect(e.Right, fn)
	case *FieldExpr:
		return Inspect(e.X, fn)
	case *Forall:
		if err := Inspect(e.X, fn); err != nil {
			return err
		}
		b, err := e.Instantiate()
		if err != nil {
			return err
		}
		return Inspect(b.Body, fn)
	default:
		return fmt.Errorf("ir: unknown expression %T", e)
	}
	return nil
}

// FreeVars lists the variables e refers to that are not bound by a Forall.
func FreeVars(e Expr) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	var walk func(Expr, map[string]bool) error
	walk = func(e Expr, bound map[string]bool) error {
		switch e := e.(type) {
		case *Var:
			if !bound[e.Name] && !seen[e.Name] {
				seen[e.Name] = true
				out = append(out, e.Name)
			}
		case *Const:
		case *Not:
			return walk(e.X, bound)
		case *Match:
			return walk(e.X, bound)
		case *Binop:
			if err := walk(e.Left, bound); err != nil {
				return err
			}
			return walk(e.Right, bound)
		case *FieldExpr:
			return walk(e.X, bound)
		case *Forall:
			if err := walk(e.X, bound); err != nil {
				return err
			}
			b, err := e.Instantiate()
			if err != nil {
				return err
			}
			inner := make(map[string]bool, len(bound)+1)
			for k := range bound {
				inner[k] = true
			}
			inner[b.Var.Name] = true
			return walk(b.Body, inner)
		default:
			return fmt.Errorf("ir: unknown expression %T", e)
		}
		return nil
	}
	if err := walk(e, map[string]bool{}); err != nil {
		return nil, err
	}
	return out, nil
}
