package store

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsynth/internal/ir"
	"modelsynth/internal/oracle"
	"modelsynth/internal/perception"
)

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, "/out/"+name)
	require.NoError(t, err)
	return string(data)
}

func TestArtifacts(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := NewArtifacts(fs, "/out")

	require.NoError(t, a.WritePrompts("sys", "user"))
	require.NoError(t, a.WritePrompts("sys2", "user2"))
	assert.Equal(t, "sys", readFile(t, fs, SystemPromptFile))
	assert.Equal(t, "user", readFile(t, fs, UserPromptFile))

	require.NoError(t, a.WriteImplementation(2, 0.5, "int main() {}"))
	assert.Equal(t, "int main() {}", readFile(t, fs, "implementation_2_0.5.c"))

	records := []oracle.Record{
		{Tuple: tuple(1, 2), Kept: true},
		{Tuple: ir.Tuple{ir.IntValue(0), ir.Absent{}}, Reason: oracle.ReasonPrecondition, Missing: []string{"x1"}},
	}
	require.NoError(t, a.WriteTests(0, 1, records))
	assert.Equal(t, "(1, 2)\n(0, <absent>)  # dropped: precondition violated  # missing: x1\n",
		readFile(t, fs, "tests_0_1.txt"))

	require.NoError(t, a.WriteError(3, 0, errors.New("compile failed")))
	assert.Equal(t, "compile failed\n", readFile(t, fs, "errors_3_0.txt"))

	require.NoError(t, a.WriteExchanges(0, 1, []perception.Exchange{{ID: "e", Response: "r"}}))
	assert.Contains(t, readFile(t, fs, "exchanges_0_1.json"), `"id": "e"`)

	require.NoError(t, a.WriteUnique([]ir.Tuple{tuple(1), tuple(2)}))
	assert.Equal(t, "(1)\n(2)\n", readFile(t, fs, "unique.txt"))
}

func TestArtifactsStats(t *testing.T) {
	a := NewArtifacts(afero.NewMemMapFs(), "/out")
	require.NoError(t, a.RecordStats(AttemptStats{Attempt: 0, RawTests: 3}))
	require.NoError(t, a.RecordStats(AttemptStats{Attempt: 1, RawTests: 5, Error: "timeout"}))

	stats, err := a.ReadStats()
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 3, stats[0].RawTests)
	assert.Equal(t, "timeout", stats[1].Error)
}
