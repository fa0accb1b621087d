package model

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"modelsynth/internal/ir"
	"modelsynth/internal/regex"
)

// exprBuilder turns ExprSpec records into IR expressions. Names resolve to
// forall-bound variables first, then to the function's parameters.
type exprBuilder struct {
	types  *typeTable
	params map[string]ir.Parameter
	bound  map[string]ir.Expr
}

func (b *exprBuilder) with(name string, x ir.Expr) *exprBuilder {
	bound := make(map[string]ir.Expr, len(b.bound)+1)
	for k, v := range b.bound {
		bound[k] = v
	}
	bound[name] = x
	return &exprBuilder{types: b.types, params: b.params, bound: bound}
}

func (b *exprBuilder) operand(path, field string, e *ExprSpec) (ir.Expr, error) {
	if e == nil {
		return nil, specErrorf(path+"."+field, "missing operand")
	}
	return b.build(path+"."+field, e)
}

func (b *exprBuilder) build(path string, e *ExprSpec) (ir.Expr, error) {
	if e == nil {
		return nil, specErrorf(path, "missing expression")
	}
	switch e.Kind {
	case "var":
		if x, ok := b.bound[e.Name]; ok {
			return x, nil
		}
		if p, ok := b.params[e.Name]; ok {
			return p.Var(), nil
		}
		return nil, specErrorf(path, "unknown variable %q", e.Name)

	case "const":
		return b.constant(path, e)

	case "not":
		x, err := b.operand(path, "x", e.X)
		if err != nil {
			return nil, err
		}
		n, err := ir.NewNot(x)
		return n, wrapErr(path, err)

	case "match":
		x, err := b.operand(path, "x", e.X)
		if err != nil {
			return nil, err
		}
		r, err := regex.Parse(e.Pattern)
		if err != nil {
			return nil, wrapErr(path+".pattern", err)
		}
		m, err := ir.NewMatch(x, r)
		return m, wrapErr(path, err)

	case "binop":
		l, err := b.operand(path, "left", e.Left)
		if err != nil {
			return nil, err
		}
		r, err := b.operand(path, "right", e.Right)
		if err != nil {
			return nil, err
		}
		bo, err := ir.NewBinop(ir.Op(e.Op), l, r)
		return bo, wrapErr(path, err)

	case "field":
		x, err := b.operand(path, "x", e.X)
		if err != nil {
			return nil, err
		}
		f, err := ir.NewField(x, e.Name)
		return f, wrapErr(path, err)

	case "forall":
		x, err := b.operand(path, "x", e.X)
		if err != nil {
			return nil, err
		}
		if !ir.IsIdent(e.Var) {
			return nil, specErrorf(path+".var", "invalid bound variable %q", e.Var)
		}
		body := e.Body
		f, err := ir.NewForall(x, func(elem ir.Expr) (ir.Expr, error) {
			return b.with(e.Var, elem).build(path+".body", body)
		})
		return f, wrapErr(path, err)

	case "implies":
		l, err := b.operand(path, "left", e.Left)
		if err != nil {
			return nil, err
		}
		r, err := b.operand(path, "right", e.Right)
		if err != nil {
			return nil, err
		}
		x, err := ir.Implies(l, r)
		return x, wrapErr(path, err)

	case "and", "or":
		if len(e.Args) == 0 {
			return nil, specErrorf(path+".args", "%s needs at least one argument", e.Kind)
		}
		args := make([]ir.Expr, len(e.Args))
		for i, a := range e.Args {
			x, err := b.build(fmt.Sprintf("%s.args[%d]", path, i), a)
			if err != nil {
				return nil, err
			}
			args[i] = x
		}
		var x ir.Expr
		var err error
		if e.Kind == "and" {
			x, err = ir.And(args[0], args[1:]...)
		} else {
			x, err = ir.Or(args[0], args[1:]...)
		}
		return x, wrapErr(path, err)

	case "":
		return nil, specErrorf(path+".kind", "missing kind")
	}
	return nil, specErrorf(path+".kind", "unknown kind %q", e.Kind)
}

// constant builds a literal. Without an explicit type the YAML tag decides:
// integers are uint32, strings are sized to fit.
func (b *exprBuilder) constant(path string, e *ExprSpec) (ir.Expr, error) {
	if e.Type != "" {
		t, err := b.types.lookup(path+".type", e.Type)
		if err != nil {
			return nil, err
		}
		v, err := value(path+".value", &e.Value, t)
		if err != nil {
			return nil, err
		}
		c, err := ir.NewConst(t, v)
		return c, wrapErr(path, err)
	}
	node := &e.Value
	if node.Kind != yaml.ScalarNode {
		return nil, specErrorf(path+".value", "a non-scalar constant needs a type")
	}
	switch node.ShortTag() {
	case "!!int":
		var n uint64
		if err := node.Decode(&n); err != nil {
			return nil, wrapErr(path+".value", err)
		}
		return ir.Uint(n), nil
	case "!!bool":
		var v bool
		if err := node.Decode(&v); err != nil {
			return nil, wrapErr(path+".value", err)
		}
		return ir.BoolConst(v), nil
	case "!!str":
		return ir.Str(node.Value), nil
	}
	return nil, specErrorf(path+".value", "unsupported constant %q", node.Value)
}
