package oracle

import (
	"fmt"
	"strconv"
	"strings"

	"modelsynth/internal/ir"
)

// Includes is the preamble shared by every prompt and generated program.
var Includes = []string{
	"#include <stdint.h>",
	"#include <stdbool.h>",
	"#include <string.h>",
	"#include <stdlib.h>",
	"#include <klee/klee.h>",
	"#include <stdio.h>",
}

// storage is the C integer type holding an Int of the given width. Widths
// that are not a C standard width are stored in the next wider type and
// range constrained by the harness.
func storage(width int) string {
	switch {
	case width <= 8:
		return "uint8_t"
	case width <= 16:
		return "uint16_t"
	case width <= 32:
		return "uint32_t"
	}
	return "uint64_t"
}

func standardWidth(width int) bool {
	return width == 8 || width == 16 || width == 32 || width == 64
}

// cType splits the C spelling of t around the declared name: for arrays the
// dimensions follow the name.
func cType(t ir.Type) (left, right string) {
	switch t := t.(type) {
	case ir.Void:
		return "void", ""
	case ir.Bool:
		return "bool", ""
	case ir.Char:
		return "char", ""
	case ir.Int:
		return storage(t.Width), ""
	case ir.String:
		return "char*", ""
	case ir.Enum:
		return t.EnumName, ""
	case ir.Array:
		l, r := cType(t.Elem)
		return l, fmt.Sprintf("%s[%d]", r, t.Len)
	case ir.Struct:
		return t.StructName, ""
	case ir.Alias:
		return t.AliasName, ""
	}
	panic(fmt.Sprintf("oracle: unknown type %T", t))
}

// declare renders "T name" with array dimensions in the right place.
func declare(t ir.Type, name string) string {
	l, r := cType(t)
	return l + " " + name + r
}

// definition is the typedef introducing t, if t is a named type.
func definition(t ir.Type) (string, bool) {
	switch t := t.(type) {
	case ir.Enum:
		return fmt.Sprintf("typedef enum { %s } %s;", strings.Join(t.Values, ", "), t.EnumName), true
	case ir.Struct:
		fields := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = declare(f.Type, f.Name) + ";"
		}
		return fmt.Sprintf("typedef struct { %s } %s;", strings.Join(fields, " "), t.StructName), true
	case ir.Alias:
		var sb strings.Builder
		for _, line := range docLines(t.Doc) {
			sb.WriteString("// " + line + "\n")
		}
		sb.WriteString("typedef " + declare(t.Inner, t.AliasName) + ";")
		return sb.String(), true
	}
	return "", false
}

// definitions collects the typedefs reachable from ts, dependencies first,
// each distinct definition once, in first-seen order.
func definitions(ts ...ir.Type) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range ts {
		for _, dep := range ir.Dependencies(t) {
			def, ok := definition(dep)
			if !ok || seen[def] {
				continue
			}
			seen[def] = true
			out = append(out, def)
		}
	}
	return out
}

func docLines(doc string) []string {
	doc = strings.TrimRight(doc, "\n")
	if doc == "" {
		return nil
	}
	return strings.Split(doc, "\n")
}

// byReference reports whether the out-parameter of fn is passed by pointer.
// Strings and arrays already decay to pointers.
func byReference(t ir.Type) bool {
	switch ir.Resolve(t).(type) {
	case ir.Array, ir.String:
		return false
	}
	return true
}

// Signature renders "ret name(params)" for fn.
func Signature(fn *ir.Function) string {
	l, r := cType(fn.Result.Type)
	params := make([]string, len(fn.Inputs))
	for i, p := range fn.Inputs {
		if fn.ReturnsVoid() && i == len(fn.Inputs)-1 && byReference(p.Type) {
			pl, _ := cType(p.Type)
			params[i] = pl + " *" + p.Name
			continue
		}
		params[i] = declare(p.Type, p.Name)
	}
	return fmt.Sprintf("%s%s %s(%s)", l, r, fn.Name, strings.Join(params, ", "))
}

// docComment renders the comment block placed above a prototype.
func docComment(fn *ir.Function) []string {
	var out []string
	if lines := docLines(fn.Doc); len(lines) > 0 {
		for _, line := range lines {
			out = append(out, "// "+line)
		}
		out = append(out, "//")
	}
	if len(fn.Inputs) > 0 {
		out = append(out, "// Parameters:")
		for _, p := range fn.Inputs {
			out = append(out, fmt.Sprintf("//     %s: %s", p.Name, p.Doc))
		}
		out = append(out, "//")
	}
	if !fn.ReturnsVoid() {
		out = append(out, "// Return Value:")
		if fn.Result.Doc != "" {
			out = append(out, "//     "+fn.Result.Doc)
		}
		out = append(out, "//")
	}
	return out
}

// literal renders a constant value as a C expression.
func literal(v ir.Value) (string, error) {
	switch v := v.(type) {
	case ir.BoolValue:
		if v {
			return "true", nil
		}
		return "false", nil
	case ir.CharValue:
		return strconv.Itoa(int(v)), nil
	case ir.IntValue:
		return strconv.FormatUint(uint64(v), 10), nil
	case ir.StringValue:
		return cString(string(v)), nil
	case ir.EnumValue:
		return v.Label, nil
	case ir.ArrayValue:
		parts := make([]string, len(v))
		for i, e := range v {
			s, err := literal(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	}
	return "", fmt.Errorf("oracle: no C literal for %s", v)
}

// cString quotes s as a C string literal. Non-printable bytes use octal
// escapes, which unlike hex escapes cannot swallow a following digit.
func cString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&sb, "\\%03o", c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// constant renders a named constant as a C global.
func constant(c ir.NamedConst) (string, error) {
	lit, err := literal(c.Value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %s;", declare(c.Type, c.Name), lit), nil
}
