package ir

import (
	"errors"
	"fmt"

	"modelsynth/internal/regex"
)

// ErrAbsent is returned when evaluation needs a value the trace did not
// report.
var ErrAbsent = errors.New("ir: value is absent")

// Env binds variable names to values.
type Env map[string]Value

// Bind returns an environment mapping each parameter name to the value at the
// same position.
func Bind(params []Parameter, values []Value) Env {
	env := make(Env, len(params))
	for i, p := range params {
		if i < len(values) {
			env[p.Name] = values[i]
		}
	}
	return env
}

// Holds evaluates a boolean expression.
func Holds(e Expr, env Env) (bool, error) {
	v, err := Eval(e, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(BoolValue)
	if !ok {
		return false, fmt.Errorf("ir: expression yields %s, want bool", v)
	}
	return bool(b), nil
}

// Eval interprets e under env.
func Eval(e Expr, env Env) (Value, error) {
	switch e := e.(type) {
	case *Var:
		v, ok := env[e.Name]
		if !ok {
			return nil, fmt.Errorf("ir: unbound variable %q", e.Name)
		}
		if _, absent := v.(Absent); absent {
			return nil, ErrAbsent
		}
		return v, nil
	case *Const:
		return e.Value, nil
	case *Not:
		b, err := Holds(e.X, env)
		if err != nil {
			return nil, err
		}
		return BoolValue(!b), nil
	case *Match:
		v, err := Eval(e.X, env)
		if err != nil {
			return nil, err
		}
		s, ok := v.(StringValue)
		if !ok {
			return nil, fmt.Errorf("ir: match operand is %s, want string", v)
		}
		return BoolValue(regex.Matches(e.Regex, string(s))), nil
	case *FieldExpr:
		v, err := Eval(e.X, env)
		if err != nil {
			return nil, err
		}
		s, ok := v.(StructValue)
		if !ok {
			return nil, fmt.Errorf("ir: field operand is %s, want struct", v)
		}
		f, ok := s.Get(e.Field)
		if !ok {
			return nil, fmt.Errorf("ir: struct has no field %q", e.Field)
		}
		if _, absent := f.(Absent); absent {
			return nil, ErrAbsent
		}
		return f, nil
	case *Forall:
		return evalForall(e, env)
	case *Binop:
		return evalBinop(e, env)
	}
	return nil, fmt.Errorf("ir: unknown expression %T", e)
}

func evalForall(e *Forall, env Env) (Value, error) {
	v, err := Eval(e.X, env)
	if err != nil {
		return nil, err
	}
	arr, ok := v.(ArrayValue)
	if !ok {
		return nil, fmt.Errorf("ir: forall operand is %s, want array", v)
	}
	for _, elem := range arr {
		b, err := e.Instantiate()
		if err != nil {
			return nil, err
		}
		inner := make(Env, len(env)+1)
		for k, v := range env {
			inner[k] = v
		}
		inner[b.Var.Name] = elem
		ok, err := Holds(b.Body, inner)
		if err != nil {
			return nil, err
		}
		if !ok {
			return BoolValue(false), nil
		}
	}
	return BoolValue(true), nil
}

func evalBinop(e *Binop, env Env) (Value, error) {
	l, err := Eval(e.Left, env)
	if err != nil {
		return nil, err
	}
	r, err := Eval(e.Right, env)
	if err != nil {
		return nil, err
	}

	if ls, ok := l.(StringValue); ok {
		rs, ok := r.(StringValue)
		if !ok {
			return nil, fmt.Errorf("ir: cannot compare %s with %s", l, r)
		}
		return compareStrings(e.Op, string(ls), string(rs))
	}

	a, err := numeric(l)
	if err != nil {
		return nil, err
	}
	b, err := numeric(r)
	if err != nil {
		return nil, err
	}
	_, boolean := Resolve(e.typ).(Bool)
	switch e.Op {
	case OpEq:
		return BoolValue(a == b), nil
	case OpNe:
		return BoolValue(a != b), nil
	case OpLt:
		return BoolValue(a < b), nil
	case OpLe:
		return BoolValue(a <= b), nil
	case OpGt:
		return BoolValue(a > b), nil
	case OpGe:
		return BoolValue(a >= b), nil
	case OpAnd:
		if boolean {
			return BoolValue(a != 0 && b != 0), nil
		}
		return wrap(e.typ, a&b), nil
	case OpOr:
		if boolean {
			return BoolValue(a != 0 || b != 0), nil
		}
		return wrap(e.typ, a|b), nil
	case OpAdd:
		return wrap(e.typ, a+b), nil
	case OpSub:
		return wrap(e.typ, a-b), nil
	}
	return nil, fmt.Errorf("ir: unknown operator %q", e.Op)
}

func compareStrings(op Op, a, b string) (Value, error) {
	switch op {
	case OpEq:
		return BoolValue(a == b), nil
	case OpNe:
		return BoolValue(a != b), nil
	case OpLt:
		return BoolValue(a < b), nil
	case OpLe:
		return BoolValue(a <= b), nil
	case OpGt:
		return BoolValue(a > b), nil
	case OpGe:
		return BoolValue(a >= b), nil
	}
	return nil, fmt.Errorf("ir: operator %q not defined on strings", op)
}

func numeric(v Value) (uint64, error) {
	switch v := v.(type) {
	case BoolValue:
		if v {
			return 1, nil
		}
		return 0, nil
	case CharValue:
		return uint64(v), nil
	case IntValue:
		return uint64(v), nil
	case EnumValue:
		return uint64(v.Index), nil
	}
	return 0, fmt.Errorf("ir: %s is not numeric", v)
}

// wrap truncates n to the width of t the way unsigned C arithmetic does.
func wrap(t Type, n uint64) Value {
	switch t := Resolve(t).(type) {
	case Int:
		if t.Width < 64 {
			n &= 1<<uint(t.Width) - 1
		}
		return IntValue(n)
	case Char:
		return CharValue(byte(n))
	}
	return IntValue(n)
}
