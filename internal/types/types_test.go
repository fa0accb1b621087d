package types

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRecordsSplitsOnRepeatedName(t *testing.T) {
	tr := Trace{Assignments: []Assignment{
		{"x0", 1}, {"x1", 2},
		{"x0", 3}, {"x1", 4},
		{"x0", 5},
	}}

	records := tr.Records()
	require.Len(t, records, 3)
	assert.Equal(t, []Assignment{{"x0", 1}, {"x1", 2}}, records[0])
	assert.Equal(t, []Assignment{{"x0", 3}, {"x1", 4}}, records[1])
	assert.Equal(t, []Assignment{{"x0", 5}}, records[2])
}

func TestTraceRecordsEmpty(t *testing.T) {
	assert.Empty(t, Trace{}.Records())
}

func TestTraceString(t *testing.T) {
	tr := Trace{Assignments: []Assignment{{"x0", 1}, {"x3", 42}}}
	assert.Equal(t, "x0=1\nx3=42\n", tr.String())
	assert.Equal(t, 2, tr.Len())
}

func TestErrorKinds(t *testing.T) {
	construction := fmt.Errorf("wrap: %w", NewConstructionError("NewString", "negative max length %d", -1))
	assert.True(t, IsConstruction(construction))
	assert.False(t, IsBackend(construction))
	assert.Contains(t, construction.Error(), "negative max length -1")

	gen := GenerationError("complete", errors.New("rate limited"), true)
	assert.True(t, IsBackend(gen))
	assert.True(t, IsTransient(gen))
	assert.False(t, IsTimeout(gen))
	assert.Equal(t, "generation backend: complete: rate limited", gen.Error())

	exec := ExecutionError("klee", context.DeadlineExceeded)
	exec.Timeout = true
	assert.True(t, IsTimeout(exec))
	assert.False(t, IsTransient(exec))
	assert.ErrorIs(t, exec, context.DeadlineExceeded)

	graph := &GraphError{Msg: "cycle detected", Cycle: []string{"a", "b", "a"}}
	assert.True(t, IsGraph(graph))
	assert.Equal(t, "graph: cycle detected: a -> b -> a", graph.Error())
}

func TestFuncAdapters(t *testing.T) {
	gen := GeneratorFunc(func(_ context.Context, system, user string, temp float64) (string, error) {
		return fmt.Sprintf("%s|%s|%.1f", system, user, temp), nil
	})
	out, err := gen.Generate(context.Background(), "s", "u", 0.5)
	require.NoError(t, err)
	assert.Equal(t, "s|u|0.5", out)

	exec := ExecutorFunc(func(_ context.Context, program string, timeout time.Duration) (Trace, error) {
		return Trace{Complete: program != "", Paths: int(timeout.Seconds())}, nil
	})
	tr, err := exec.Execute(context.Background(), "int main() {}", 3*time.Second)
	require.NoError(t, err)
	assert.True(t, tr.Complete)
	assert.Equal(t, 3, tr.Paths)
}
