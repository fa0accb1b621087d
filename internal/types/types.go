// Package types provides shared type definitions used across modelsynth packages.
// This package exists to break import cycles between the IR, the oracle, the
// composer and the backends. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import (
	"fmt"
	"strings"
)

// =============================================================================
// EXECUTION TRACES
// =============================================================================

// Assignment is a single symbolic leaf value reported by the execution backend.
type Assignment struct {
	Name  string
	Value uint64
}

// String renders the assignment the way ktest-tool would name it.
func (a Assignment) String() string {
	return fmt.Sprintf("%s=%d", a.Name, a.Value)
}

// Trace is the flat, ordered list of leaf assignments produced by one
// execution. Several explored paths are concatenated back to back.
type Trace struct {
	Assignments []Assignment
	// Complete is set once the backend observed its completion marker.
	Complete bool
	// Paths is the number of test files the backend reported, when known.
	Paths int
	// Raw is the unparsed dump the assignments were read from.
	Raw string
}

// Len returns the number of leaf assignments.
func (t Trace) Len() int {
	return len(t.Assignments)
}

// Records splits the trace into per-path records. A new record starts whenever
// the next name was already assigned in the record under construction.
func (t Trace) Records() [][]Assignment {
	var records [][]Assignment
	var current []Assignment
	seen := make(map[string]bool)
	for _, a := range t.Assignments {
		if seen[a.Name] {
			records = append(records, current)
			current = nil
			seen = make(map[string]bool)
		}
		seen[a.Name] = true
		current = append(current, a)
	}
	if len(current) > 0 {
		records = append(records, current)
	}
	return records
}

// String renders the trace one assignment per line.
func (t Trace) String() string {
	var sb strings.Builder
	for _, a := range t.Assignments {
		sb.WriteString(a.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
