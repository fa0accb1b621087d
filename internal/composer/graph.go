// Package composer links the oracles of several functions into one program.
//
// Functions form a dependency graph. A call edge from source to target lets
// the target call the source through a documented prototype; a pipe edge
// makes the source a filter guarding the target's harness. Synthesis
// generates every node in dependency order, splices each implementation into
// the forward declaration of its callers, and returns the oracle of the single
// entry point with the harness attached.
package composer

import (
	"fmt"
	"strings"

	"modelsynth/internal/ir"
	"modelsynth/internal/types"
)

// EdgeKind distinguishes call edges from pipe edges.
type EdgeKind int

const (
	// Call makes the source visible to the target as a prototype.
	Call EdgeKind = iota
	// Pipe makes the source a filter of the target.
	Pipe
)

func (k EdgeKind) String() string {
	if k == Pipe {
		return "pipe"
	}
	return "call"
}

// Graph records functions and the edges between them. Nodes are identified by
// pointer. Insertion order is kept so sorting is deterministic.
type Graph struct {
	nodes   []*ir.Function
	index   map[*ir.Function]int
	targets map[*ir.Function][]*ir.Function // call edges, source to targets
	deps    map[*ir.Function][]*ir.Function // call edges, target to sources
	filters map[*ir.Function][]*ir.Function // pipe edges, target to filters
	piped   map[*ir.Function]bool
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index:   make(map[*ir.Function]int),
		targets: make(map[*ir.Function][]*ir.Function),
		deps:    make(map[*ir.Function][]*ir.Function),
		filters: make(map[*ir.Function][]*ir.Function),
		piped:   make(map[*ir.Function]bool),
	}
}

// AddNode adds fn unless it is already present.
func (g *Graph) AddNode(fn *ir.Function) {
	if _, ok := g.index[fn]; ok {
		return
	}
	g.index[fn] = len(g.nodes)
	g.nodes = append(g.nodes, fn)
}

// AddEdge adds an edge of the given kind from source to target, adding both
// nodes as needed. Repeated edges are ignored.
func (g *Graph) AddEdge(source, target *ir.Function, kind EdgeKind) error {
	if source == nil || target == nil {
		return &types.GraphError{Msg: "nil function in edge"}
	}
	if source == target {
		return &types.GraphError{Msg: fmt.Sprintf("%s depends on itself", source.Name), Cycle: []string{source.Name, source.Name}}
	}
	g.AddNode(source)
	g.AddNode(target)
	switch kind {
	case Pipe:
		if containsFn(g.filters[target], source) {
			return nil
		}
		if _, ok := ir.Resolve(source.Result.Type).(ir.Bool); !ok {
			return &types.GraphError{Msg: fmt.Sprintf("filter %s returns %s, want bool", source.Name, source.Result.Type.Name())}
		}
		g.filters[target] = append(g.filters[target], source)
		g.piped[source] = true
	default:
		if containsFn(g.targets[source], target) {
			return nil
		}
		g.targets[source] = append(g.targets[source], target)
		g.deps[target] = append(g.deps[target], source)
	}
	return nil
}

// AddCall lets target call each of deps.
func (g *Graph) AddCall(target *ir.Function, deps ...*ir.Function) error {
	g.AddNode(target)
	for _, d := range deps {
		if err := g.AddEdge(d, target, Call); err != nil {
			return err
		}
	}
	return nil
}

// AddPipe guards target's harness with each of filters.
func (g *Graph) AddPipe(target *ir.Function, filters ...*ir.Function) error {
	g.AddNode(target)
	for _, f := range filters {
		if err := g.AddEdge(f, target, Pipe); err != nil {
			return err
		}
	}
	return nil
}

// Nodes returns the functions in insertion order.
func (g *Graph) Nodes() []*ir.Function { return append([]*ir.Function(nil), g.nodes...) }

// Dependencies returns the functions fn may call, in edge order.
func (g *Graph) Dependencies(fn *ir.Function) []*ir.Function {
	return append([]*ir.Function(nil), g.deps[fn]...)
}

// Dependents returns the functions that call fn.
func (g *Graph) Dependents(fn *ir.Function) []*ir.Function {
	return append([]*ir.Function(nil), g.targets[fn]...)
}

// FiltersOf returns the filters piped into fn.
func (g *Graph) FiltersOf(fn *ir.Function) []*ir.Function {
	return append([]*ir.Function(nil), g.filters[fn]...)
}

// IsFilter reports whether fn is piped into any node.
func (g *Graph) IsFilter(fn *ir.Function) bool { return g.piped[fn] }

// Filters returns every function piped into some node, in insertion order.
func (g *Graph) Filters() []*ir.Function {
	var out []*ir.Function
	for _, n := range g.nodes {
		if g.piped[n] {
			out = append(out, n)
		}
	}
	return out
}

const (
	white = iota
	grey
	black
)

// TopologicalSort orders the nodes so that every function follows the
// functions it calls. A cycle of call edges is a GraphError naming it.
func (g *Graph) TopologicalSort() ([]*ir.Function, error) {
	color := make(map[*ir.Function]int, len(g.nodes))
	var finished []*ir.Function
	var stack []*ir.Function

	var visit func(n *ir.Function) error
	visit = func(n *ir.Function) error {
		color[n] = grey
		stack = append(stack, n)
		for _, t := range g.targets[n] {
			switch color[t] {
			case grey:
				return &types.GraphError{Msg: "dependency cycle", Cycle: cycleFrom(stack, t)}
			case white:
				if err := visit(t); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		finished = append(finished, n)
		return nil
	}

	for _, n := range g.nodes {
		if color[n] == white {
			if err := visit(n); err != nil {
				return nil, err
			}
		}
	}
	for i, j := 0, len(finished)-1; i < j; i, j = i+1, j-1 {
		finished[i], finished[j] = finished[j], finished[i]
	}
	return finished, nil
}

// cycleFrom returns the names on the stack from t onwards, closed with t.
func cycleFrom(stack []*ir.Function, t *ir.Function) []string {
	var names []string
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == t {
			for _, f := range stack[i:] {
				names = append(names, f.Name)
			}
			break
		}
	}
	return append(names, t.Name)
}

// String renders the edges, one per line, for the graph command.
func (g *Graph) String() string {
	var sb strings.Builder
	for _, n := range g.nodes {
		fmt.Fprintf(&sb, "%s\n", n.Name)
		for _, d := range g.deps[n] {
			fmt.Fprintf(&sb, "  call %s\n", d.Name)
		}
		for _, f := range g.filters[n] {
			fmt.Fprintf(&sb, "  pipe %s\n", f.Name)
		}
	}
	return sb.String()
}

func containsFn(fns []*ir.Function, fn *ir.Function) bool {
	for _, f := range fns {
		if f == fn {
			return true
		}
	}
	return false
}
