package oracle

import (
	"strings"

	"modelsynth/internal/ir"
)

// BodyPlaceholder marks the only body the generation backend may write.
const BodyPlaceholder = "// implement me"

var systemPrompt = strings.Join([]string{
	"Your goal is to implement the C function provided by the user.",
	"The result should be the complete implementation of the code, including:",
	"  1. Every include statement from the input, unchanged, plus any others you need.",
	"  2. Every type definition provided by the user. Do NOT modify the type definitions.",
	"  3. Code ONLY for the function whose body contains '" + BodyPlaceholder + "'.",
	"  4. Any additional function prototypes provided may be used as helper functions. Do not define them; the user will supply them later.",
	"  5. Do NOT change the provided function declarations or prototypes.",
	"  6. Write every struct definition on a single line, e.g. struct { int x; int y; }",
	"",
	"Do NOT add a `main()` function or any examples, just implement the function.",
	"Do NOT use fenced code blocks, just write the code.",
	"Do NOT use the C strtok function. Implement your own.",
	"",
	"Example Input:",
	strings.Join(Includes, "\n"),
	"",
	"typedef uint32_t myint;",
	"",
	"myint add_one(myint x) {",
	"    " + BodyPlaceholder,
	"}",
	"",
	"Example Output:",
	strings.Join(Includes, "\n"),
	"",
	"typedef uint32_t myint;",
	"",
	"myint add_one(myint x) {",
	"    return x + 1;",
	"}",
}, "\n")

// SystemPrompt returns the fixed instructions sent with every request.
func (o *Oracle) SystemPrompt() string {
	return systemPrompt
}

// UserPrompt returns the documented skeleton the backend fills in: includes,
// the type definitions reachable from the function signature, named
// constants, dependency prototypes and the function with a placeholder body.
func (o *Oracle) UserPrompt() string {
	lines := append([]string(nil), Includes...)
	lines = append(lines, "")

	fn := o.fn
	own := definitions(signatureTypes(fn)...)
	for _, def := range own {
		lines = append(lines, def, "")
	}

	for _, c := range o.constants {
		// Checked in New.
		s, _ := constant(c)
		lines = append(lines, s)
	}
	if len(o.constants) > 0 {
		lines = append(lines, "")
	}

	present := make(map[string]bool, len(own))
	for _, def := range own {
		present[def] = true
	}
	var protoTypes []ir.Type
	for _, p := range o.prototypes {
		protoTypes = append(protoTypes, signatureTypes(p)...)
	}
	for _, def := range definitions(protoTypes...) {
		if !present[def] {
			lines = append(lines, def, "")
		}
	}

	for i, p := range o.prototypes {
		lines = append(lines, docComment(p)...)
		lines = append(lines, o.declarations[i], "")
	}

	lines = append(lines, docComment(fn)...)
	lines = append(lines, Signature(fn)+" {", "    "+BodyPlaceholder, "}")
	return strings.Join(lines, "\n")
}

// Declarations returns the forward declarations of the dependency
// prototypes exactly as they appear in the user prompt.
func (o *Oracle) Declarations() []string {
	return append([]string(nil), o.declarations...)
}

// signatureTypes lists the result type and then every input type.
func signatureTypes(fn *ir.Function) []ir.Type {
	ts := []ir.Type{fn.Result.Type}
	for _, p := range fn.Inputs {
		ts = append(ts, p.Type)
	}
	return ts
}
