package types

import (
	"context"
	"time"
)

// Generator fills in exactly one function body given a documented prototype.
// It must leave every supplied include, type definition and prototype intact.
// A completion that did not finish cleanly is an error.
type Generator interface {
	Generate(ctx context.Context, system, user string, temperature float64) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, system, user string, temperature float64) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	return f(ctx, system, user, temperature)
}

// Executor compiles and symbolically executes a complete C program and returns
// the leaf assignment trace of every explored feasible path.
type Executor interface {
	Execute(ctx context.Context, program string, timeout time.Duration) (Trace, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, program string, timeout time.Duration) (Trace, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, program string, timeout time.Duration) (Trace, error) {
	return f(ctx, program, timeout)
}
