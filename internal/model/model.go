package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"modelsynth/internal/composer"
	"modelsynth/internal/ir"
	"modelsynth/internal/logging"
)

// Model is a loaded model file.
type Model struct {
	Name      string
	Types     []ir.Type
	Constants []ir.NamedConst
	// Functions holds regex modules and generated functions in declaration
	// order, regex modules last.
	Functions []*ir.Function
	Graph     *composer.Graph
	// Filters is the explicit filter set, nil when the file names none.
	Filters []*ir.Function

	byName map[string]*ir.Function
}

// Function returns the function or regex module called name.
func (m *Model) Function(name string) (*ir.Function, bool) {
	fn, ok := m.byName[name]
	return fn, ok
}

// Load reads and parses the model file at path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	logging.Composer("loaded model %s from %s: %d functions", m.Name, path, len(m.Functions))
	return m, nil
}

// Parse builds a model from YAML. Unknown keys are rejected.
func Parse(data []byte) (*Model, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, specErrorf("", "empty model file")
		}
		return nil, wrapErr("", err)
	}
	return build(&f)
}

func build(f *File) (*Model, error) {
	tt := newTypeTable()
	for i, ts := range f.Types {
		if err := tt.declare(fmt.Sprintf("types[%d]", i), ts); err != nil {
			return nil, err
		}
	}
	m := &Model{
		Name:   f.Name,
		Graph:  composer.NewGraph(),
		byName: make(map[string]*ir.Function),
	}
	for _, name := range tt.order {
		m.Types = append(m.Types, tt.named[name])
	}

	seenConst := make(map[string]bool, len(f.Constants))
	for i, cs := range f.Constants {
		path := fmt.Sprintf("constants[%d]", i)
		if seenConst[cs.Name] {
			return nil, specErrorf(path+".name", "duplicate constant %q", cs.Name)
		}
		seenConst[cs.Name] = true
		t, err := tt.lookup(path+".type", cs.Type)
		if err != nil {
			return nil, err
		}
		v, err := value(path+".value", &cs.Value, t)
		if err != nil {
			return nil, err
		}
		c, err := ir.NewNamedConst(cs.Name, t, v)
		if err != nil {
			return nil, wrapErr(path, err)
		}
		m.Constants = append(m.Constants, c)
	}

	for i, fs := range f.Functions {
		path := fmt.Sprintf("functions[%d]", i)
		fn, err := buildFunction(path, tt, fs)
		if err != nil {
			return nil, err
		}
		if err := m.add(path, fn); err != nil {
			return nil, err
		}
	}
	for i, rs := range f.Regexes {
		path := fmt.Sprintf("regex_modules[%d]", i)
		t, err := tt.lookup(path+".input.type", rs.Input.Type)
		if err != nil {
			return nil, err
		}
		fn, err := ir.NewRegexModule(rs.Name, rs.Pattern, ir.Parameter{Name: rs.Input.Name, Type: t, Doc: rs.Input.Doc})
		if err != nil {
			return nil, wrapErr(path, err)
		}
		if err := m.add(path, fn); err != nil {
			return nil, err
		}
	}

	for i, cs := range f.Calls {
		path := fmt.Sprintf("calls[%d]", i)
		target, deps, err := m.resolveEdge(path, cs.Target, "deps", cs.Deps)
		if err != nil {
			return nil, err
		}
		if err := m.Graph.AddCall(target, deps...); err != nil {
			return nil, wrapErr(path, err)
		}
	}
	for i, ps := range f.Pipes {
		path := fmt.Sprintf("pipes[%d]", i)
		target, filters, err := m.resolveEdge(path, ps.Target, "filters", ps.Filters)
		if err != nil {
			return nil, err
		}
		if err := m.Graph.AddPipe(target, filters...); err != nil {
			return nil, wrapErr(path, err)
		}
	}
	for i, name := range f.Filters {
		fn, ok := m.byName[name]
		if !ok {
			return nil, specErrorf(fmt.Sprintf("filters[%d]", i), "unknown function %q", name)
		}
		m.Filters = append(m.Filters, fn)
	}
	return m, nil
}

func (m *Model) add(path string, fn *ir.Function) error {
	if _, dup := m.byName[fn.Name]; dup {
		return specErrorf(path+".name", "duplicate function %q", fn.Name)
	}
	m.byName[fn.Name] = fn
	m.Functions = append(m.Functions, fn)
	m.Graph.AddNode(fn)
	return nil
}

func (m *Model) resolveEdge(path, target, field string, names []string) (*ir.Function, []*ir.Function, error) {
	t, ok := m.byName[target]
	if !ok {
		return nil, nil, specErrorf(path+".target", "unknown function %q", target)
	}
	if len(names) == 0 {
		return nil, nil, specErrorf(path+"."+field, "empty list")
	}
	fns := make([]*ir.Function, len(names))
	for i, name := range names {
		fn, ok := m.byName[name]
		if !ok {
			return nil, nil, specErrorf(fmt.Sprintf("%s.%s[%d]", path, field, i), "unknown function %q", name)
		}
		fns[i] = fn
	}
	return t, fns, nil
}

func buildFunction(path string, tt *typeTable, fs FuncSpec) (*ir.Function, error) {
	params := make([]ir.Parameter, 0, len(fs.Params)+1)
	for i, ps := range append(append([]ParamSpec(nil), fs.Params...), fs.Result) {
		ppath := fmt.Sprintf("%s.params[%d]", path, i)
		if i == len(fs.Params) {
			ppath = path + ".result"
		}
		t, err := tt.lookup(ppath+".type", ps.Type)
		if err != nil {
			return nil, err
		}
		name := ps.Name
		if name == "" && i == len(fs.Params) {
			name = "result"
		}
		params = append(params, ir.Parameter{Name: name, Type: t, Doc: ps.Doc})
	}

	var pre ir.Expr
	if fs.Precondition != nil {
		b := &exprBuilder{types: tt, params: make(map[string]ir.Parameter, len(params))}
		for _, p := range params {
			b.params[p.Name] = p
		}
		x, err := b.build(path+".precondition", fs.Precondition)
		if err != nil {
			return nil, err
		}
		pre = x
	}
	fn, err := ir.NewFunction(fs.Name, fs.Doc, params, pre)
	if err != nil {
		return nil, wrapErr(path, err)
	}
	return fn, nil
}
