package ir

import (
	"strconv"
	"strings"
)

// Value is a decoded or constant value of some Type.
type Value interface {
	// String renders the value for humans.
	String() string
	// Key is a canonical encoding; two values are structurally equal
	// exactly when their keys are equal.
	Key() string
	isValue()
}

type (
	BoolValue   bool
	CharValue   byte
	IntValue    uint64
	StringValue string
	// EnumValue is a label together with its ordinal.
	EnumValue struct {
		Label string
		Index int
	}
	ArrayValue []Value
	// StructValue keeps fields in declaration order.
	StructValue []FieldValue
	// Absent marks a leaf the execution backend did not report.
	Absent struct{}
)

// FieldValue is one member of a StructValue.
type FieldValue struct {
	Name  string
	Value Value
}

func (BoolValue) isValue()   {}
func (CharValue) isValue()   {}
func (IntValue) isValue()    {}
func (StringValue) isValue() {}
func (EnumValue) isValue()   {}
func (ArrayValue) isValue()  {}
func (StructValue) isValue() {}
func (Absent) isValue()      {}

func (v BoolValue) String() string   { return strconv.FormatBool(bool(v)) }
func (v CharValue) String() string   { return strconv.QuoteRune(rune(v)) }
func (v IntValue) String() string    { return strconv.FormatUint(uint64(v), 10) }
func (v StringValue) String() string { return strconv.Quote(string(v)) }
func (v EnumValue) String() string   { return v.Label }
func (Absent) String() string        { return "<absent>" }

func (v ArrayValue) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (v StructValue) String() string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = f.Name + ": " + f.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (v BoolValue) Key() string   { return "b:" + v.String() }
func (v CharValue) Key() string   { return "c:" + strconv.Itoa(int(v)) }
func (v IntValue) Key() string    { return "i:" + v.String() }
func (v StringValue) Key() string { return "s:" + v.String() }
func (v EnumValue) Key() string   { return "e:" + v.Label }
func (Absent) Key() string        { return "_" }

func (v ArrayValue) Key() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(e.Key())
	}
	sb.WriteByte(']')
	return sb.String()
}

func (v StructValue) Key() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.Name)
		sb.WriteByte('=')
		sb.WriteString(f.Value.Key())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Get returns the named field.
func (v StructValue) Get(name string) (Value, bool) {
	for _, f := range v {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// IsAbsent reports whether v is or contains an Absent leaf.
func IsAbsent(v Value) bool {
	switch v := v.(type) {
	case Absent:
		return true
	case ArrayValue:
		for _, e := range v {
			if IsAbsent(e) {
				return true
			}
		}
	case StructValue:
		for _, f := range v {
			if IsAbsent(f.Value) {
				return true
			}
		}
	}
	return false
}

// Tuple is one decoded test: input values in declaration order, followed by
// the result unless the function returns void.
type Tuple []Value

// Key is the canonical structural key used for deduplication.
func (t Tuple) Key() string {
	return ArrayValue(t).Key()
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ZeroValue is the value a zero-filled C object of type t decodes to.
func ZeroValue(t Type) Value {
	switch t := Resolve(t).(type) {
	case Bool:
		return BoolValue(false)
	case Char:
		return CharValue(0)
	case Int:
		return IntValue(0)
	case String:
		return StringValue("")
	case Enum:
		return EnumValue{Label: t.Values[0], Index: 0}
	case Array:
		out := make(ArrayValue, t.Len)
		for i := range out {
			out[i] = ZeroValue(t.Elem)
		}
		return out
	case Struct:
		out := make(StructValue, len(t.Fields))
		for i, f := range t.Fields {
			out[i] = FieldValue{Name: f.Name, Value: ZeroValue(f.Type)}
		}
		return out
	}
	return Absent{}
}

// Conforms reports whether v is a well-formed value of type t.
func Conforms(v Value, t Type) bool {
	switch t := Resolve(t).(type) {
	case Bool:
		_, ok := v.(BoolValue)
		return ok
	case Char:
		_, ok := v.(CharValue)
		return ok
	case Int:
		n, ok := v.(IntValue)
		return ok && (t.Width >= 64 || uint64(n) < 1<<uint(t.Width))
	case String:
		s, ok := v.(StringValue)
		return ok && len(s) <= t.MaxLen
	case Enum:
		e, ok := v.(EnumValue)
		return ok && e.Index >= 0 && e.Index < len(t.Values) && t.Values[e.Index] == e.Label
	case Array:
		a, ok := v.(ArrayValue)
		if !ok || len(a) != t.Len {
			return false
		}
		for _, e := range a {
			if !Conforms(e, t.Elem) {
				return false
			}
		}
		return true
	case Struct:
		s, ok := v.(StructValue)
		if !ok || len(s) != len(t.Fields) {
			return false
		}
		for i, f := range t.Fields {
			if s[i].Name != f.Name || !Conforms(s[i].Value, f.Type) {
				return false
			}
		}
		return true
	}
	return false
}
