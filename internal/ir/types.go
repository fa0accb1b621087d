// Package ir defines the typed intermediate representation for C-shaped
// functions: data types, parameters, functions, a small boolean/arithmetic
// expression language over them, decoded values, and an evaluator.
//
// Types and expressions are closed sets of variants dispatched with type
// switches. Aliases are transparent for every type check but keep their name
// for declarations and documentation.
package ir

import (
	"fmt"
	"regexp"
	"strings"

	"modelsynth/internal/types"
)

// Type is one of Void, Bool, Char, Int, String, Enum, Array, Struct or Alias.
type Type interface {
	// Name is the C spelling for named types, or a short kind name.
	Name() string
	isType()
}

type (
	// Void is the absence of a value.
	Void struct{}
	// Bool is a C99 bool.
	Bool struct{}
	// Char is a single byte.
	Char struct{}
	// Int is an unsigned integer of Width bits.
	Int struct {
		Width int
	}
	// String is a NUL-terminated string of at most MaxLen characters.
	String struct {
		MaxLen int
	}
	// Enum is a named C enum with ordered labels.
	Enum struct {
		EnumName string
		Values   []string
	}
	// Array is a fixed-size array.
	Array struct {
		Elem Type
		Len  int
	}
	// Struct is a named record with ordered fields.
	Struct struct {
		StructName string
		Fields     []Field
	}
	// Alias is a documented typedef to another type.
	Alias struct {
		AliasName string
		Inner     Type
		Doc       string
	}
)

// Field is one named member of a Struct.
type Field struct {
	Name string
	Type Type
}

func (Void) isType()   {}
func (Bool) isType()   {}
func (Char) isType()   {}
func (Int) isType()    {}
func (String) isType() {}
func (Enum) isType()   {}
func (Array) isType()  {}
func (Struct) isType() {}
func (Alias) isType()  {}

func (Void) Name() string     { return "void" }
func (Bool) Name() string     { return "bool" }
func (Char) Name() string     { return "char" }
func (t Int) Name() string    { return fmt.Sprintf("int%d", t.Width) }
func (t String) Name() string { return fmt.Sprintf("string%d", t.MaxLen) }
func (t Enum) Name() string   { return t.EnumName }
func (t Array) Name() string  { return fmt.Sprintf("%s[%d]", t.Elem.Name(), t.Len) }
func (t Struct) Name() string { return t.StructName }
func (t Alias) Name() string  { return t.AliasName }

// Common integer widths.
var (
	Uint8  = Int{Width: 8}
	Uint16 = Int{Width: 16}
	Uint32 = Int{Width: 32}
	Uint64 = Int{Width: 64}
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdent reports whether s is a valid C identifier.
func IsIdent(s string) bool {
	return identRe.MatchString(s)
}

// NewInt returns an integer type of the given bit width.
func NewInt(width int) (Int, error) {
	if width <= 0 || width > 64 {
		return Int{}, types.NewConstructionError("Int", "invalid width %d", width)
	}
	return Int{Width: width}, nil
}

// NewString returns a string type holding at most maxLen characters.
func NewString(maxLen int) (String, error) {
	if maxLen < 0 {
		return String{}, types.NewConstructionError("String", "negative max length %d", maxLen)
	}
	return String{MaxLen: maxLen}, nil
}

// NewEnum returns an enum with the given labels.
func NewEnum(name string, values ...string) (Enum, error) {
	if !IsIdent(name) {
		return Enum{}, types.NewConstructionError("Enum", "invalid name %q", name)
	}
	if len(values) == 0 {
		return Enum{}, types.NewConstructionError("Enum", "%s has no values", name)
	}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if !IsIdent(v) {
			return Enum{}, types.NewConstructionError("Enum", "%s: invalid value %q", name, v)
		}
		if seen[v] {
			return Enum{}, types.NewConstructionError("Enum", "%s: duplicate value %q", name, v)
		}
		seen[v] = true
	}
	return Enum{EnumName: name, Values: append([]string(nil), values...)}, nil
}

// NewArray returns a fixed-size array type.
func NewArray(elem Type, n int) (Array, error) {
	if n <= 0 {
		return Array{}, types.NewConstructionError("Array", "invalid size %d", n)
	}
	if _, ok := Resolve(elem).(Void); ok {
		return Array{}, types.NewConstructionError("Array", "void element type")
	}
	return Array{Elem: elem, Len: n}, nil
}

// NewStruct returns a struct with the given fields in declaration order.
func NewStruct(name string, fields ...Field) (Struct, error) {
	if !IsIdent(name) {
		return Struct{}, types.NewConstructionError("Struct", "invalid name %q", name)
	}
	if len(fields) == 0 {
		return Struct{}, types.NewConstructionError("Struct", "%s has no fields", name)
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !IsIdent(f.Name) {
			return Struct{}, types.NewConstructionError("Struct", "%s: invalid field name %q", name, f.Name)
		}
		if seen[f.Name] {
			return Struct{}, types.NewConstructionError("Struct", "%s: duplicate field %q", name, f.Name)
		}
		if _, ok := Resolve(f.Type).(Void); ok {
			return Struct{}, types.NewConstructionError("Struct", "%s.%s: void field", name, f.Name)
		}
		seen[f.Name] = true
	}
	return Struct{StructName: name, Fields: append([]Field(nil), fields...)}, nil
}

// NewAlias returns a documented typedef of inner.
func NewAlias(name string, inner Type, doc string) (Alias, error) {
	if !IsIdent(name) {
		return Alias{}, types.NewConstructionError("Alias", "invalid name %q", name)
	}
	if inner == nil {
		return Alias{}, types.NewConstructionError("Alias", "%s has no inner type", name)
	}
	return Alias{AliasName: name, Inner: inner, Doc: doc}, nil
}

// Field returns the named field of s.
func (t Struct) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Index returns the position of label in the enum, or -1.
func (t Enum) Index(label string) int {
	for i, v := range t.Values {
		if v == label {
			return i
		}
	}
	return -1
}

// Resolve strips every Alias layer from t.
func Resolve(t Type) Type {
	for {
		a, ok := t.(Alias)
		if !ok {
			return t
		}
		t = a.Inner
	}
}

// Equal reports whether a and b describe the same type, looking through
// aliases at every level.
func Equal(a, b Type) bool {
	a, b = Resolve(a), Resolve(b)
	switch a := a.(type) {
	case Void:
		_, ok := b.(Void)
		return ok
	case Bool:
		_, ok := b.(Bool)
		return ok
	case Char:
		_, ok := b.(Char)
		return ok
	case Int:
		o, ok := b.(Int)
		return ok && a.Width == o.Width
	case String:
		o, ok := b.(String)
		return ok && a.MaxLen == o.MaxLen
	case Enum:
		o, ok := b.(Enum)
		if !ok || a.EnumName != o.EnumName || len(a.Values) != len(o.Values) {
			return false
		}
		for i := range a.Values {
			if a.Values[i] != o.Values[i] {
				return false
			}
		}
		return true
	case Array:
		o, ok := b.(Array)
		return ok && a.Len == o.Len && Equal(a.Elem, o.Elem)
	case Struct:
		o, ok := b.(Struct)
		if !ok || a.StructName != o.StructName || len(a.Fields) != len(o.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name != o.Fields[i].Name || !Equal(a.Fields[i].Type, o.Fields[i].Type) {
				return false
			}
		}
		return true
	}
	return false
}

// Walk calls fn for t and then for every type nested inside it, pre-order.
func Walk(t Type, fn func(Type)) {
	fn(t)
	switch t := t.(type) {
	case Array:
		Walk(t.Elem, fn)
	case Struct:
		for _, f := range t.Fields {
			Walk(f.Type, fn)
		}
	case Alias:
		Walk(t.Inner, fn)
	}
}

// Dependencies lists t and its nested types with every type after the types
// it refers to, which is the order C declarations must appear in.
func Dependencies(t Type) []Type {
	var out []Type
	var visit func(Type)
	visit = func(t Type) {
		switch t := t.(type) {
		case Array:
			visit(t.Elem)
		case Struct:
			for _, f := range t.Fields {
				visit(f.Type)
			}
		case Alias:
			visit(t.Inner)
		}
		out = append(out, t)
	}
	visit(t)
	return out
}

// Validate checks a type built from literals rather than constructors.
func Validate(t Type) error {
	var errs []string
	Walk(t, func(t Type) {
		var err error
		switch t := t.(type) {
		case nil:
			errs = append(errs, "nil type")
			return
		case Int:
			_, err = NewInt(t.Width)
		case String:
			_, err = NewString(t.MaxLen)
		case Enum:
			_, err = NewEnum(t.EnumName, t.Values...)
		case Array:
			_, err = NewArray(t.Elem, t.Len)
		case Struct:
			_, err = NewStruct(t.StructName, t.Fields...)
		case Alias:
			_, err = NewAlias(t.AliasName, t.Inner, t.Doc)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	})
	if len(errs) > 0 {
		return types.NewConstructionError("Validate", "%s", strings.Join(errs, "; "))
	}
	return nil
}

// Must returns v or panics if err is non-nil. It is meant for statically
// known models and tests.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
