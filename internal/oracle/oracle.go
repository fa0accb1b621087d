// Package oracle turns one IR function into a generation prompt and a KLEE
// harness, and decodes the traces of the harness back into typed values.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modelsynth/internal/ir"
	"modelsynth/internal/logging"
	"modelsynth/internal/regex"
	"modelsynth/internal/types"
)

// ErrNotBuilt is returned when inputs are requested before an
// implementation exists.
var ErrNotBuilt = errors.New("oracle: model not built")

// Oracle owns the prompt, implementation and decoder of one function.
type Oracle struct {
	fn           *ir.Function
	prototypes   []*ir.Function
	constants    []ir.NamedConst
	filters      []*ir.Function
	declarations []string

	implementation string
	harnessed      bool
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithPrototypes makes fns visible to the backend as documented forward
// declarations it may call.
func WithPrototypes(fns ...*ir.Function) Option {
	return func(o *Oracle) { o.prototypes = append(o.prototypes, fns...) }
}

// WithConstants adds named C globals to the prompt.
func WithConstants(cs ...ir.NamedConst) Option {
	return func(o *Oracle) { o.constants = append(o.constants, cs...) }
}

// WithFilters guards the harness call behind the given predicates. Their
// definitions must be part of the implementation.
func WithFilters(fns ...*ir.Function) Option {
	return func(o *Oracle) { o.filters = append(o.filters, fns...) }
}

// New creates an oracle for fn.
func New(fn *ir.Function, opts ...Option) (*Oracle, error) {
	if fn == nil {
		return nil, types.NewConstructionError("Oracle", "nil function")
	}
	o := &Oracle{fn: fn}
	for _, opt := range opts {
		opt(o)
	}
	for _, c := range o.constants {
		if _, err := constant(c); err != nil {
			return nil, types.NewConstructionError("Oracle", "constant %s: %v", c.Name, err)
		}
	}
	for _, f := range o.filters {
		if _, ok := ir.Resolve(f.Result.Type).(ir.Bool); !ok {
			return nil, types.NewConstructionError("Oracle", "filter %s returns %s, want bool", f.Name, f.Result.Type.Name())
		}
	}
	for _, p := range o.prototypes {
		o.declarations = append(o.declarations, Signature(p)+";")
	}
	return o, nil
}

// Function returns the function under synthesis.
func (o *Oracle) Function() *ir.Function { return o.fn }

// Filters returns the predicates guarding the harness.
func (o *Oracle) Filters() []*ir.Function { return append([]*ir.Function(nil), o.filters...) }

// Harness returns the KLEE main function: the filter-and-test variant when
// filters are configured, the ordinary one otherwise.
func (o *Oracle) Harness() (string, error) {
	if len(o.filters) > 0 {
		return filterHarness(o.fn, o.filters)
	}
	return testHarness(o.fn)
}

// Generate asks gen for an implementation and returns the cleaned source.
func (o *Oracle) Generate(ctx context.Context, gen types.Generator, temperature float64) (string, error) {
	timer := logging.StartTimer(logging.CategoryGeneration, "generate "+o.fn.Name)
	defer timer.Stop()

	user := o.UserPrompt()
	logging.GenerationDebug("user prompt for %s:\n%s", o.fn.Name, user)
	resp, err := gen.Generate(ctx, o.SystemPrompt(), user, temperature)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", o.fn.Name, err)
	}
	src := cleanResponse(resp)
	if src == "" {
		return "", types.GenerationError("generate "+o.fn.Name, errors.New("empty response"), false)
	}
	logging.GenerationDebug("response for %s:\n%s", o.fn.Name, src)
	return src, nil
}

// BuildComponent generates an implementation without a harness, for use
// as a dependency of another function.
func (o *Oracle) BuildComponent(ctx context.Context, gen types.Generator, temperature float64) error {
	src, err := o.Generate(ctx, gen, temperature)
	if err != nil {
		return err
	}
	o.SetImplementation(src)
	return nil
}

// BuildMatcher fills in a regex module with its compiled matcher. No
// backend is involved. The matcher runtime is not included; the composer
// inserts it once per program.
func (o *Oracle) BuildMatcher() error {
	if !o.fn.IsRegexModule() {
		return types.NewConstructionError("Oracle", "%s is not a regex module", o.fn.Name)
	}
	lines := append(append([]string(nil), Includes...), "", Signature(o.fn)+" {")
	for _, line := range regex.MatcherBody(o.fn.Regex, o.fn.Inputs[0].Name) {
		lines = append(lines, "    "+line)
	}
	lines = append(lines, "}")
	o.SetImplementation(strings.Join(lines, "\n"))
	logging.OracleDebug("built matcher for %s: %s", o.fn.Name, o.fn.Pattern)
	return nil
}

// Build generates an implementation and appends the harness.
func (o *Oracle) Build(ctx context.Context, gen types.Generator, temperature float64) error {
	if err := o.BuildComponent(ctx, gen, temperature); err != nil {
		return err
	}
	return o.AttachHarness()
}

// AttachHarness appends the matcher runtime, when the precondition needs it
// and the implementation lacks it, and the harness.
func (o *Oracle) AttachHarness() error {
	if o.implementation == "" {
		return ErrNotBuilt
	}
	if o.harnessed {
		return nil
	}
	harness, err := o.Harness()
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString(o.implementation)
	sb.WriteString("\n\n")
	if o.fn.Precondition != nil && ir.HasMatch(o.fn.Precondition) && !regex.HasRuntime(o.implementation) {
		sb.WriteString(regex.Runtime)
		sb.WriteString("\n")
	}
	sb.WriteString(harness)
	o.implementation = sb.String()
	o.harnessed = true
	logging.Oracle("attached harness to %s (%d lines)", o.fn.Name, o.Lines())
	return nil
}

// SetImplementation replaces the source. Splicing uses it to install the
// linked program.
func (o *Oracle) SetImplementation(src string) {
	o.implementation = src
	o.harnessed = false
}

// Implementation returns the current source.
func (o *Oracle) Implementation() string { return o.implementation }

// Lines counts the non-blank lines of the implementation.
func (o *Oracle) Lines() int {
	n := 0
	for _, line := range strings.Split(o.implementation, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// Execute runs the harnessed implementation and returns the raw trace.
func (o *Oracle) Execute(ctx context.Context, exec types.Executor, timeout time.Duration) (types.Trace, error) {
	if o.implementation == "" || !(o.harnessed || strings.Contains(o.implementation, "int main(")) {
		return types.Trace{}, ErrNotBuilt
	}
	timer := logging.StartTimer(logging.CategoryExecution, "execute "+o.fn.Name)
	defer timer.Stop()
	trace, err := exec.Execute(ctx, o.implementation, timeout)
	if err != nil {
		return trace, fmt.Errorf("execute %s: %w", o.fn.Name, err)
	}
	return trace, nil
}

// GetInputs executes the harness and returns the decoded tuples that pass
// the precondition and the filters. A run exploring no paths yields no
// tuples and no error.
func (o *Oracle) GetInputs(ctx context.Context, exec types.Executor, timeout time.Duration) ([]ir.Tuple, error) {
	trace, err := o.Execute(ctx, exec, timeout)
	if err != nil {
		return nil, err
	}
	tuples := o.Decode(trace)
	logging.Oracle("%s: decoded %d tuples from %d leaves", o.fn.Name, len(tuples), trace.Len())
	return tuples, nil
}

// cleanResponse strips a fenced code block the backend was told not to use.
func cleanResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	start := strings.Index(resp, "```")
	if start < 0 {
		return resp
	}
	body := resp[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// Drop the language tag.
		body = body[nl+1:]
	} else {
		body = ""
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
