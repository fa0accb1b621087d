package model

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"modelsynth/internal/ir"
)

// typeTable resolves type references: builtin names, uintN, stringN, a
// T[N] array suffix, or a type declared earlier in the file.
type typeTable struct {
	named map[string]ir.Type
	order []string
}

func newTypeTable() *typeTable {
	return &typeTable{named: make(map[string]ir.Type)}
}

var builtins = map[string]ir.Type{
	"void":   ir.Void{},
	"bool":   ir.Bool{},
	"char":   ir.Char{},
	"uint8":  ir.Uint8,
	"uint16": ir.Uint16,
	"uint32": ir.Uint32,
	"uint64": ir.Uint64,
}

func (tt *typeTable) lookup(path, ref string) (ir.Type, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, specErrorf(path, "missing type")
	}
	if strings.HasSuffix(ref, "]") {
		open := strings.LastIndexByte(ref, '[')
		if open <= 0 {
			return nil, specErrorf(path, "malformed array type %q", ref)
		}
		n, err := strconv.Atoi(ref[open+1 : len(ref)-1])
		if err != nil {
			return nil, specErrorf(path, "malformed array length in %q", ref)
		}
		elem, err := tt.lookup(path, ref[:open])
		if err != nil {
			return nil, err
		}
		a, err := ir.NewArray(elem, n)
		return a, wrapErr(path, err)
	}
	if t, ok := tt.named[ref]; ok {
		return t, nil
	}
	if t, ok := builtins[ref]; ok {
		return t, nil
	}
	if n, ok := sizedName(ref, "uint"); ok {
		t, err := ir.NewInt(n)
		return t, wrapErr(path, err)
	}
	if n, ok := sizedName(ref, "string"); ok {
		t, err := ir.NewString(n)
		return t, wrapErr(path, err)
	}
	return nil, specErrorf(path, "unknown type %q", ref)
}

func sizedName(ref, prefix string) (int, bool) {
	if !strings.HasPrefix(ref, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(ref[len(prefix):])
	return n, err == nil
}

func (tt *typeTable) declare(path string, spec TypeSpec) error {
	if !ir.IsIdent(spec.Name) {
		return specErrorf(path+".name", "invalid type name %q", spec.Name)
	}
	if _, dup := tt.named[spec.Name]; dup {
		return specErrorf(path+".name", "duplicate type %q", spec.Name)
	}
	if _, builtin := builtins[spec.Name]; builtin {
		return specErrorf(path+".name", "%q is a builtin type", spec.Name)
	}

	var t ir.Type
	var err error
	switch spec.Kind {
	case "int":
		var inner ir.Int
		if inner, err = ir.NewInt(spec.Width); err == nil {
			t, err = ir.NewAlias(spec.Name, inner, spec.Doc)
		}
	case "string":
		var inner ir.String
		if inner, err = ir.NewString(spec.MaxLen); err == nil {
			t, err = ir.NewAlias(spec.Name, inner, spec.Doc)
		}
	case "enum":
		t, err = ir.NewEnum(spec.Name, spec.Values...)
	case "array":
		var elem ir.Type
		if elem, err = tt.lookup(path+".elem", spec.Elem); err != nil {
			return err
		}
		var inner ir.Array
		if inner, err = ir.NewArray(elem, spec.Len); err == nil {
			t, err = ir.NewAlias(spec.Name, inner, spec.Doc)
		}
	case "struct":
		fields := make([]ir.Field, len(spec.Fields))
		for i, f := range spec.Fields {
			ft, ferr := tt.lookup(fmt.Sprintf("%s.fields[%d].type", path, i), f.Type)
			if ferr != nil {
				return ferr
			}
			fields[i] = ir.Field{Name: f.Name, Type: ft}
		}
		t, err = ir.NewStruct(spec.Name, fields...)
	case "alias":
		var inner ir.Type
		if inner, err = tt.lookup(path+".of", spec.Of); err != nil {
			return err
		}
		t, err = ir.NewAlias(spec.Name, inner, spec.Doc)
	case "":
		return specErrorf(path+".kind", "missing kind")
	default:
		return specErrorf(path+".kind", "unknown kind %q", spec.Kind)
	}
	if err != nil {
		return wrapErr(path, err)
	}
	tt.named[spec.Name] = t
	tt.order = append(tt.order, spec.Name)
	return nil
}

// value decodes node as a value of type t.
func value(path string, node *yaml.Node, t ir.Type) (ir.Value, error) {
	if node == nil || node.Kind == 0 {
		return nil, specErrorf(path, "missing value")
	}
	var v ir.Value
	switch rt := ir.Resolve(t).(type) {
	case ir.Bool:
		var b bool
		if err := node.Decode(&b); err != nil {
			return nil, wrapErr(path, err)
		}
		v = ir.BoolValue(b)
	case ir.Char:
		var s string
		if err := node.Decode(&s); err != nil || len(s) != 1 {
			return nil, specErrorf(path, "want a single character")
		}
		v = ir.CharValue(s[0])
	case ir.Int:
		var n uint64
		if err := node.Decode(&n); err != nil {
			return nil, wrapErr(path, err)
		}
		v = ir.IntValue(n)
	case ir.String:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, wrapErr(path, err)
		}
		v = ir.StringValue(s)
	case ir.Enum:
		var label string
		if err := node.Decode(&label); err != nil {
			return nil, wrapErr(path, err)
		}
		i := rt.Index(label)
		if i < 0 {
			return nil, specErrorf(path, "%s has no value %q", rt.EnumName, label)
		}
		v = ir.EnumValue{Label: label, Index: i}
	case ir.Array:
		if node.Kind != yaml.SequenceNode {
			return nil, specErrorf(path, "want a list")
		}
		arr := make(ir.ArrayValue, len(node.Content))
		for i, item := range node.Content {
			ev, err := value(fmt.Sprintf("%s[%d]", path, i), item, rt.Elem)
			if err != nil {
				return nil, err
			}
			arr[i] = ev
		}
		v = arr
	case ir.Struct:
		if node.Kind != yaml.MappingNode {
			return nil, specErrorf(path, "want a mapping")
		}
		given := make(map[string]*yaml.Node, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			given[node.Content[i].Value] = node.Content[i+1]
		}
		sv := make(ir.StructValue, len(rt.Fields))
		for i, f := range rt.Fields {
			fv, err := value(path+"."+f.Name, given[f.Name], f.Type)
			if err != nil {
				return nil, err
			}
			sv[i] = ir.FieldValue{Name: f.Name, Value: fv}
		}
		v = sv
	default:
		return nil, specErrorf(path, "type %s has no literal values", t.Name())
	}
	if !ir.Conforms(v, t) {
		return nil, specErrorf(path, "value %s does not fit %s", v, t.Name())
	}
	return v, nil
}
