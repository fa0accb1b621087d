package oracle

import (
	"fmt"

	"modelsynth/internal/ir"
	"modelsynth/internal/regex"
	"modelsynth/internal/types"
)

// translate lowers e to a C condition. names maps parameter names to harness
// variables; regex ASTs are emitted through enc, whose lines the caller must
// place before the condition.
func translate(e ir.Expr, names map[string]string, enc *regex.Encoder) (string, error) {
	t := &translator{names: names, enc: enc}
	return t.expr(e)
}

type translator struct {
	names map[string]string
	enc   *regex.Encoder
}

func (t *translator) expr(e ir.Expr) (string, error) {
	switch e := e.(type) {
	case *ir.Var:
		v, ok := t.names[e.Name]
		if !ok {
			return "", types.NewConstructionError("Translate", "unbound variable %q", e.Name)
		}
		return v, nil
	case *ir.Const:
		s, err := literal(e.Value)
		if err != nil {
			return "", types.NewConstructionError("Translate", "%v", err)
		}
		return s, nil
	case *ir.Not:
		x, err := t.expr(e.X)
		if err != nil {
			return "", err
		}
		return "!(" + x + ")", nil
	case *ir.Match:
		x, err := t.expr(e.X)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("match(%s, %s)", t.enc.Encode(e.Regex), x), nil
	case *ir.FieldExpr:
		x, err := t.expr(e.X)
		if err != nil {
			return "", err
		}
		return "(" + x + ")." + e.Field, nil
	case *ir.Forall:
		return t.forall(e)
	case *ir.Binop:
		return t.binop(e)
	}
	return "", types.NewConstructionError("Translate", "unknown expression %T", e)
}

// forall unrolls the body over every slot of the array, each with its own
// freshly named element variable.
func (t *translator) forall(e *ir.Forall) (string, error) {
	arr, err := t.expr(e.X)
	if err != nil {
		return "", err
	}
	outer := t.names
	defer func() { t.names = outer }()

	conds := ""
	for i := 0; i < e.Len(); i++ {
		b, err := e.Instantiate()
		if err != nil {
			return "", err
		}
		t.names = make(map[string]string, len(outer)+1)
		for k, v := range outer {
			t.names[k] = v
		}
		t.names[b.Var.Name] = fmt.Sprintf("(%s[%d])", arr, i)
		c, err := t.expr(b.Body)
		if err != nil {
			return "", err
		}
		if i > 0 {
			conds += " & "
		}
		conds += "(" + c + ")"
	}
	return "(" + conds + ")", nil
}

func (t *translator) binop(e *ir.Binop) (string, error) {
	l, err := t.expr(e.Left)
	if err != nil {
		return "", err
	}
	r, err := t.expr(e.Right)
	if err != nil {
		return "", err
	}
	if _, ok := ir.Resolve(e.Left.Type()).(ir.String); ok && e.Op.IsComparison() {
		// Content comparison, never pointer identity.
		return fmt.Sprintf("strcmp(%s, %s) %s 0", l, r, e.Op), nil
	}
	return fmt.Sprintf("(%s) %s (%s)", l, e.Op, r), nil
}
