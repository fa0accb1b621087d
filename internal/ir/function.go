package ir

import (
	"modelsynth/internal/regex"
	"modelsynth/internal/types"
)

// Parameter is a named, typed, optionally documented function parameter.
type Parameter struct {
	Name string
	Type Type
	Doc  string
}

// Var returns an expression referring to the parameter.
func (p Parameter) Var() *Var {
	return NewVar(p.Name, p.Type)
}

// Function describes a C function to synthesize. The last declared parameter
// is the result. When the result is Void the final input is an out-parameter
// written through a pointer.
type Function struct {
	Name         string
	Doc          string
	Inputs       []Parameter
	Result       Parameter
	Precondition Expr

	// Pattern and Regex are set for regex modules, whose body is the
	// compiled matcher instead of generated code.
	Pattern string
	Regex   regex.Regex
}

// NewFunction builds a function from its parameters, the last of which is
// the result. pre may be nil.
func NewFunction(name, doc string, params []Parameter, pre Expr) (*Function, error) {
	if !IsIdent(name) {
		return nil, types.NewConstructionError("Function", "invalid name %q", name)
	}
	if len(params) == 0 {
		return nil, types.NewConstructionError("Function", "%s: no result parameter", name)
	}
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		if !IsIdent(p.Name) {
			return nil, types.NewConstructionError("Function", "%s: invalid parameter name %q", name, p.Name)
		}
		if seen[p.Name] {
			return nil, types.NewConstructionError("Function", "%s: duplicate parameter name %q", name, p.Name)
		}
		seen[p.Name] = true
		if p.Type == nil {
			return nil, types.NewConstructionError("Function", "%s.%s: missing type", name, p.Name)
		}
		if err := Validate(p.Type); err != nil {
			return nil, err
		}
		if _, void := Resolve(p.Type).(Void); void && i != len(params)-1 {
			return nil, types.NewConstructionError("Function", "%s.%s: void input", name, p.Name)
		}
	}

	f := &Function{
		Name:         name,
		Doc:          doc,
		Inputs:       append([]Parameter(nil), params[:len(params)-1]...),
		Result:       params[len(params)-1],
		Precondition: pre,
	}
	switch Resolve(f.Result.Type).(type) {
	case Void:
		if len(f.Inputs) == 0 {
			return nil, types.NewConstructionError("Function", "%s: void result needs an out-parameter", name)
		}
	case Array:
		return nil, types.NewConstructionError("Function", "%s: arrays cannot be returned; use a void result and an out-parameter", name)
	}
	if pre != nil {
		if err := f.checkPrecondition(pre); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Function) checkPrecondition(pre Expr) error {
	if _, ok := Resolve(pre.Type()).(Bool); !ok {
		return types.NewConstructionError("Function", "%s: precondition has type %s, want bool", f.Name, pre.Type().Name())
	}
	names, err := FreeVars(pre)
	if err != nil {
		return err
	}
	for _, n := range names {
		if _, ok := f.Lookup(n); !ok {
			return types.NewConstructionError("Function", "%s: precondition refers to unknown parameter %q", f.Name, n)
		}
	}
	return nil
}

// ModuleDocPrefix starts the documentation of every regex module.
const ModuleDocPrefix = "Module that checks if the input matches the regex: "

// NewRegexModule builds a predicate whose body is the compiled matcher for
// pattern. input must be a string parameter.
func NewRegexModule(name, pattern string, input Parameter) (*Function, error) {
	if input.Type == nil {
		return nil, types.NewConstructionError("RegexModule", "%s: missing input type", name)
	}
	if _, ok := Resolve(input.Type).(String); !ok {
		return nil, types.NewConstructionError("RegexModule", "%s: input has type %s, want string", name, input.Type.Name())
	}
	r, err := regex.Parse(pattern)
	if err != nil {
		return nil, types.NewConstructionError("RegexModule", "%s: %v", name, err)
	}
	result := Parameter{
		Name: "result",
		Type: Bool{},
		Doc:  "True if the input matches the regex, False otherwise",
	}
	f, err := NewFunction(name, ModuleDocPrefix+pattern, []Parameter{input, result}, nil)
	if err != nil {
		return nil, err
	}
	f.Pattern = pattern
	f.Regex = r
	return f, nil
}

// IsRegexModule reports whether the body of f is a compiled matcher.
func (f *Function) IsRegexModule() bool {
	return f.Regex != nil
}

// ReturnsVoid reports whether the result travels through an out-parameter.
func (f *Function) ReturnsVoid() bool {
	_, ok := Resolve(f.Result.Type).(Void)
	return ok
}

// OutParam is the final input when the result is Void.
func (f *Function) OutParam() (Parameter, bool) {
	if !f.ReturnsVoid() {
		return Parameter{}, false
	}
	return f.Inputs[len(f.Inputs)-1], true
}

// Params returns the inputs followed by the result.
func (f *Function) Params() []Parameter {
	return append(append([]Parameter(nil), f.Inputs...), f.Result)
}

// Lookup finds a parameter, including the result, by name.
func (f *Function) Lookup(name string) (Parameter, bool) {
	for _, p := range f.Params() {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Outputs are the parameters whose values appear in a decoded tuple, in
// order: every input, then the result unless it is Void.
func (f *Function) Outputs() []Parameter {
	if f.ReturnsVoid() {
		return append([]Parameter(nil), f.Inputs...)
	}
	return f.Params()
}

// NamedConst is a global constant made visible to the generation backend.
type NamedConst struct {
	Name  string
	Type  Type
	Value Value
}

// NewNamedConst checks that v conforms to t. Only scalars, strings and
// arrays of those are allowed.
func NewNamedConst(name string, t Type, v Value) (NamedConst, error) {
	if !IsIdent(name) {
		return NamedConst{}, types.NewConstructionError("NamedConst", "invalid name %q", name)
	}
	rt := Resolve(t)
	if a, ok := rt.(Array); ok {
		rt = Resolve(a.Elem)
	}
	switch rt.(type) {
	case Bool, Int, String, Char:
	default:
		return NamedConst{}, types.NewConstructionError("NamedConst", "%s: unsupported type %s", name, t.Name())
	}
	if !Conforms(v, t) {
		return NamedConst{}, types.NewConstructionError("NamedConst", "%s: value %s does not conform to %s", name, v, t.Name())
	}
	return NamedConst{Name: name, Type: t, Value: v}, nil
}
