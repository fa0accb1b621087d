package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"modelsynth/internal/ir"
	"modelsynth/internal/model"
	"modelsynth/internal/oracle"
)

var promptCmd = &cobra.Command{
	Use:   "prompt [model.yaml] [function]",
	Short: "Print the prompts sent for a function (default: the entry point)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := inspectOracle(args)
		if err != nil {
			return err
		}
		return printPrompts(cmd.OutOrStdout(), o)
	},
}

var harnessCmd = &cobra.Command{
	Use:   "harness [model.yaml] [function]",
	Short: "Print the KLEE harness for a function (default: the entry point)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := inspectOracle(args)
		if err != nil {
			return err
		}
		h, err := o.Harness()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), h)
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph [model.yaml]",
	Short: "Check a model and print its dependency graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := model.Load(args[0])
		if err != nil {
			return err
		}
		return printGraph(cmd.OutOrStdout(), m)
	},
}

// inspectOracle loads the model in args[0] and prepares an oracle for
// args[1], or for the entry point, without generating anything.
func inspectOracle(args []string) (*oracle.Oracle, error) {
	m, err := model.Load(args[0])
	if err != nil {
		return nil, err
	}
	entry, err := m.Graph.Validate(m.Filters)
	if err != nil {
		return nil, err
	}
	fn := entry
	if len(args) > 1 {
		var ok bool
		if fn, ok = m.Function(args[1]); !ok {
			return nil, fmt.Errorf("model has no function %q", args[1])
		}
	}
	return oracleFor(m, fn, fn == entry)
}

func oracleFor(m *model.Model, fn *ir.Function, isEntry bool) (*oracle.Oracle, error) {
	filters := m.Graph.FiltersOf(fn)
	if isEntry && len(m.Filters) > 0 {
		filters = m.Filters
	}
	return oracle.New(fn,
		oracle.WithPrototypes(m.Graph.Dependencies(fn)...),
		oracle.WithConstants(m.Constants...),
		oracle.WithFilters(filters...))
}

func printPrompts(out io.Writer, o *oracle.Oracle) error {
	fmt.Fprintln(out, "=== system ===")
	fmt.Fprintln(out, o.SystemPrompt())
	fmt.Fprintln(out, "=== user ===")
	fmt.Fprintln(out, o.UserPrompt())
	return nil
}

func printGraph(out io.Writer, m *model.Model) error {
	order, err := m.Graph.TopologicalSort()
	if err != nil {
		return err
	}
	entry, err := m.Graph.Validate(m.Filters)
	if err != nil {
		return err
	}
	fmt.Fprint(out, m.Graph.String())
	fmt.Fprintln(out)
	fmt.Fprint(out, "order:")
	for _, fn := range order {
		fmt.Fprintf(out, " %s", fn.Name)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "entry: %s\n", entry.Name)
	return nil
}
