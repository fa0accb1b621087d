// Package model loads YAML model files describing the types, functions,
// regex modules and dependency edges of a synthesis problem, and turns them
// into IR values and a composer graph.
package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// File is the document layout of a model file.
type File struct {
	Name      string        `yaml:"name"`
	Constants []ConstSpec   `yaml:"constants"`
	Types     []TypeSpec    `yaml:"types"`
	Functions []FuncSpec    `yaml:"functions"`
	Regexes   []RegexSpec   `yaml:"regex_modules"`
	Calls     []CallSpec    `yaml:"calls"`
	Pipes     []PipeSpec    `yaml:"pipes"`
	// Filters, if set, restricts the entry point's harness to these
	// predicates instead of everything piped into it.
	Filters []string `yaml:"filters"`
}

// TypeSpec declares a named type. Kind selects which other fields apply.
type TypeSpec struct {
	Name   string      `yaml:"name"`
	Kind   string      `yaml:"kind"` // int, string, enum, array, struct, alias
	Doc    string      `yaml:"doc"`
	Width  int         `yaml:"width"`
	MaxLen int         `yaml:"max_len"`
	Values []string    `yaml:"values"`
	Elem   string      `yaml:"elem"`
	Len    int         `yaml:"len"`
	Fields []FieldSpec `yaml:"fields"`
	Of     string      `yaml:"of"`
}

// FieldSpec is a struct member.
type FieldSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// ParamSpec is a function parameter.
type ParamSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Doc  string `yaml:"doc"`
}

// FuncSpec declares a function to synthesize.
type FuncSpec struct {
	Name         string      `yaml:"name"`
	Doc          string      `yaml:"doc"`
	Params       []ParamSpec `yaml:"params"`
	Result       ParamSpec   `yaml:"result"`
	Precondition *ExprSpec   `yaml:"precondition"`
}

// RegexSpec declares a regex module.
type RegexSpec struct {
	Name    string    `yaml:"name"`
	Pattern string    `yaml:"pattern"`
	Input   ParamSpec `yaml:"input"`
}

// ConstSpec declares a global constant shown in every prompt.
type ConstSpec struct {
	Name  string    `yaml:"name"`
	Type  string    `yaml:"type"`
	Value yaml.Node `yaml:"value"`
}

// CallSpec lets target call each of deps.
type CallSpec struct {
	Target string   `yaml:"target"`
	Deps   []string `yaml:"deps"`
}

// PipeSpec guards target's harness with each of filters.
type PipeSpec struct {
	Target  string   `yaml:"target"`
	Filters []string `yaml:"filters"`
}

// ExprSpec is a tagged expression record.
//
//	var:      name
//	const:    value, optional type
//	not:      x
//	match:    x, pattern
//	binop:    op, left, right
//	field:    x, name
//	forall:   x, var, body
//	implies:  left, right
//	and, or:  args
type ExprSpec struct {
	Kind    string      `yaml:"kind"`
	Name    string      `yaml:"name"`
	Type    string      `yaml:"type"`
	Value   yaml.Node   `yaml:"value"`
	Op      string      `yaml:"op"`
	X       *ExprSpec   `yaml:"x"`
	Left    *ExprSpec   `yaml:"left"`
	Right   *ExprSpec   `yaml:"right"`
	Pattern string      `yaml:"pattern"`
	Var     string      `yaml:"var"`
	Body    *ExprSpec   `yaml:"body"`
	Args    []*ExprSpec `yaml:"args"`
}

// SpecError locates a problem in a model file.
type SpecError struct {
	Path string
	Msg  string
	Err  error
}

func (e *SpecError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if e.Path == "" {
		return "model: " + msg
	}
	return fmt.Sprintf("model: %s: %s", e.Path, msg)
}

func (e *SpecError) Unwrap() error { return e.Err }

func specErrorf(path, format string, args ...interface{}) *SpecError {
	return &SpecError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(path string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*SpecError); ok {
		return err
	}
	return &SpecError{Path: path, Err: err}
}
