package composer

import (
	"context"
	"fmt"
	"strings"

	"modelsynth/internal/ir"
	"modelsynth/internal/logging"
	"modelsynth/internal/oracle"
	"modelsynth/internal/types"
)

// Options configures one synthesis.
type Options struct {
	Generator   types.Generator
	Temperature float64
	// Filters guard the entry point's harness. When empty, the filters
	// piped into the entry point are used.
	Filters   []*ir.Function
	Constants []ir.NamedConst
	// Locator finds functions while splicing. Nil selects TextLocator.
	Locator Locator
	// OnBuilt, if set, sees every oracle right after its implementation is
	// generated and before it is spliced.
	OnBuilt func(*oracle.Oracle)
}

// EntryPoint returns the single node nothing calls that is neither piped
// into another node nor one of filters.
func (g *Graph) EntryPoint(filters []*ir.Function) (*ir.Function, error) {
	var candidates []*ir.Function
	for _, n := range g.nodes {
		if len(g.targets[n]) == 0 && !g.piped[n] && !containsFn(filters, n) {
			candidates = append(candidates, n)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, &types.GraphError{Msg: "no entry point"}
	case 1:
		return candidates[0], nil
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return nil, &types.GraphError{Msg: "multiple entry points: " + strings.Join(names, ", ")}
}

// Validate checks that g is acyclic, that filters are nodes of g, that no
// filter is also called and that exactly one entry point remains. It returns
// the entry point.
func (g *Graph) Validate(filters []*ir.Function) (*ir.Function, error) {
	if _, err := g.TopologicalSort(); err != nil {
		return nil, err
	}
	for _, f := range filters {
		if _, ok := g.index[f]; !ok {
			return nil, &types.GraphError{Msg: fmt.Sprintf("filter %s is not in the graph", f.Name)}
		}
	}
	for _, n := range g.nodes {
		if !g.piped[n] && !containsFn(filters, n) {
			continue
		}
		if callers := g.targets[n]; len(callers) > 0 {
			return nil, &types.GraphError{Msg: fmt.Sprintf("filter %s is also a call dependency of %s", n.Name, callers[0].Name)}
		}
	}
	return g.EntryPoint(filters)
}

// Synthesize generates every function of g in dependency order, links the
// implementations into the entry point's program and attaches its harness.
// Graph errors are reported before any generation starts.
func Synthesize(ctx context.Context, g *Graph, opts Options) (*oracle.Oracle, error) {
	timer := logging.StartTimer(logging.CategoryComposer, "synthesize")
	defer timer.Stop()

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	entry, err := g.Validate(opts.Filters)
	if err != nil {
		return nil, err
	}
	filters := opts.Filters
	if len(filters) == 0 {
		filters = g.FiltersOf(entry)
	}
	if opts.Generator == nil {
		return nil, types.NewConstructionError("Synthesize", "no generator")
	}

	var used []*ir.Function
	for _, n := range order {
		if g.piped[n] && !containsFn(filters, n) {
			continue
		}
		used = append(used, n)
	}
	logging.Composer("synthesizing %s from %d functions", entry.Name, len(used))

	oracles := make(map[*ir.Function]*oracle.Oracle, len(used))
	needsRuntime := entry.Precondition != nil && ir.HasMatch(entry.Precondition)
	for _, n := range used {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o, err := build(ctx, g, n, n == entry, filters, opts)
		if err != nil {
			return nil, err
		}
		if n.IsRegexModule() {
			needsRuntime = true
		}
		if opts.OnBuilt != nil {
			opts.OnBuilt(o)
		}
		oracles[n] = o
	}

	sp := NewSplicer(opts.Locator)
	for _, n := range used {
		if n.IsRegexModule() {
			continue
		}
		o := oracles[n]
		decls := o.Declarations()
		for j, d := range g.deps[n] {
			src, err := sp.Replace(o.Implementation(), decls[j], oracles[d].Implementation())
			if err != nil {
				return nil, fmt.Errorf("splice %s into %s: %w", d.Name, n.Name, err)
			}
			o.SetImplementation(src)
		}
		logging.ComposerDebug("linked %d dependencies into %s", len(decls), n.Name)
	}

	main := oracles[entry]
	for _, f := range filters {
		src, err := sp.Insert(main.Implementation(), oracles[f].Implementation())
		if err != nil {
			return nil, fmt.Errorf("insert filter %s: %w", f.Name, err)
		}
		main.SetImplementation(src)
	}
	if needsRuntime {
		src, err := sp.InsertRuntime(main.Implementation())
		if err != nil {
			return nil, err
		}
		main.SetImplementation(src)
	}
	if err := main.AttachHarness(); err != nil {
		return nil, err
	}
	logging.Composer("synthesized %s: %d lines", entry.Name, main.Lines())
	return main, nil
}

func build(ctx context.Context, g *Graph, n *ir.Function, isEntry bool, filters []*ir.Function, opts Options) (*oracle.Oracle, error) {
	oopts := []oracle.Option{
		oracle.WithPrototypes(g.deps[n]...),
		oracle.WithConstants(opts.Constants...),
	}
	if isEntry && len(filters) > 0 {
		oopts = append(oopts, oracle.WithFilters(filters...))
	}
	o, err := oracle.New(n, oopts...)
	if err != nil {
		return nil, err
	}
	if n.IsRegexModule() {
		return o, o.BuildMatcher()
	}
	if err := o.BuildComponent(ctx, opts.Generator, opts.Temperature); err != nil {
		return nil, err
	}
	return o, nil
}
