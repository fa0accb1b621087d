package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"modelsynth/internal/config"
	"modelsynth/internal/model"
	"modelsynth/internal/oracle"
	"modelsynth/internal/types"
)

const addOneModel = `
name: add_one
functions:
  - name: add_one
    doc: Adds one to x.
    params: [{name: x, type: uint32}]
    result: {type: uint32}
`

const filteredModel = `
name: filtered
functions:
  - name: small
    doc: Holds when x is below 10.
    params: [{name: x, type: uint8}]
    result: {type: bool}
  - name: double
    doc: Doubles x.
    params: [{name: x, type: uint8}]
    result: {type: uint8}
pipes:
  - {target: double, filters: [small]}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", writeFile(t, "m.yaml", filteredModel))
	require.NoError(t, err)
	assert.Contains(t, out, "double\n  pipe small\n")
	assert.Contains(t, out, "entry: double\n")
}

func TestGraphCommandRejectsBadModel(t *testing.T) {
	_, err := execute(t, "graph", writeFile(t, "m.yaml", "functions: [{name: f}]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "functions[0]")
}

func TestPromptCommand(t *testing.T) {
	out, err := execute(t, "prompt", writeFile(t, "m.yaml", addOneModel))
	require.NoError(t, err)
	assert.Contains(t, out, "=== system ===")
	assert.Contains(t, out, "=== user ===")
	assert.Contains(t, out, oracle.BodyPlaceholder)
	assert.Contains(t, out, "add_one")
}

func TestHarnessCommand(t *testing.T) {
	out, err := execute(t, "harness", writeFile(t, "m.yaml", filteredModel))
	require.NoError(t, err)
	assert.Contains(t, out, "int main() {")
	assert.Contains(t, out, "small(")

	_, err = execute(t, "harness", writeFile(t, "m.yaml", filteredModel), "nope")
	assert.Error(t, err)
}

func TestRegexCommand(t *testing.T) {
	out, err := execute(t, "regex", "ab*", "a", "abb", "ba")
	require.NoError(t, err)
	assert.Contains(t, out, `"a": match`)
	assert.Contains(t, out, `"abb": match`)
	assert.Contains(t, out, `"ba": no match`)

	out, err = execute(t, "regex", "--emit-c", "ab")
	require.NoError(t, err)
	assert.Contains(t, out, "return match(&r")
	regexEmitC = false

	_, err = execute(t, "regex", "(a")
	assert.Error(t, err)
}

func TestDecodeCommand(t *testing.T) {
	dump := `ktest file : 'klee-last/test000001.ktest'
num objects: 2
object 0: name: 'x0'
object 0: uint: 3
object 1: name: 'x1'
object 1: uint: 4

ktest file : 'klee-last/test000002.ktest'
num objects: 2
object 0: name: 'x0'
object 0: uint: 9
object 1: name: 'x1'
object 1: uint: 10
`
	out, err := execute(t, "decode", writeFile(t, "m.yaml", addOneModel), writeFile(t, "dump.txt", dump))
	require.NoError(t, err)
	assert.Contains(t, out, "(3, 4)\n")
	assert.Contains(t, out, "(9, 10)\n")
	assert.Contains(t, out, "2 of 2 records kept")
}

func TestRunModel(t *testing.T) {
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.Run.OutputDir = t.TempDir()
	cfg.Run.Attempts = 2
	cfg.Run.RateLimit = 0

	m, err := model.Parse([]byte(addOneModel))
	require.NoError(t, err)

	gen := types.GeneratorFunc(func(_ context.Context, _, user string, _ float64) (string, error) {
		return strings.Replace(user, oracle.BodyPlaceholder, "return x + 1;", 1), nil
	})
	exec := types.ExecutorFunc(func(_ context.Context, program string, _ time.Duration) (types.Trace, error) {
		return types.Trace{
			Complete: true,
			Paths:    2,
			Assignments: []types.Assignment{
				{Name: "x0", Value: 1}, {Name: "x1", Value: 2},
				{Name: "x0", Value: 5}, {Name: "x1", Value: 6},
			},
		}, nil
	})

	var out bytes.Buffer
	require.NoError(t, runModel(context.Background(), &out, m, "add_one", gen, exec, nil))
	assert.Contains(t, out.String(), "2 unique inputs from 2 attempts (0 failed)")

	data, err := os.ReadFile(filepath.Join(cfg.Run.OutputDir, "add_one", "unique.txt"))
	require.NoError(t, err)
	assert.Equal(t, "(1, 2)\n(5, 6)\n", string(data))
}

func TestModelName(t *testing.T) {
	assert.Equal(t, "dns", modelName(&model.Model{Name: "dns"}, "x/y.yaml"))
	assert.Equal(t, "y", modelName(&model.Model{}, "x/y.yaml"))
}
