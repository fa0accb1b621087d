package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsynth/internal/ir"
	"modelsynth/internal/perception"
)

func newTestStore(t *testing.T) *ResultStore {
	t.Helper()
	s, err := NewResultStore(filepath.Join(t.TempDir(), "nested", "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func tuple(vals ...uint64) ir.Tuple {
	t := make(ir.Tuple, len(vals))
	for i, v := range vals {
		t[i] = ir.IntValue(v)
	}
	return t
}

func TestAddResultsDeduplicates(t *testing.T) {
	s := newTestStore(t)

	added, err := s.AddResults("add_one", "run-1", 0, []ir.Tuple{tuple(1, 2), tuple(2, 3), tuple(1, 2)})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.AddResults("add_one", "run-2", 0, []ir.Tuple{tuple(2, 3), tuple(3, 4)})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	// Same key under another function is distinct.
	added, err = s.AddResults("other", "run-2", 0, []ir.Tuple{tuple(1, 2)})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	n, err := s.Count("add_one")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := s.Results("add_one")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, tuple(1, 2).Key(), results[0].Key)
	assert.Equal(t, "run-1", results[0].RunID)
	assert.Equal(t, "run-2", results[2].RunID)
	assert.False(t, results[0].CreatedAt.IsZero())
}

func TestResultStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := NewResultStore(path)
	require.NoError(t, err)
	_, err = s.AddResults("f", "r", 0, []ir.Tuple{tuple(7)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewResultStore(path)
	require.NoError(t, err)
	defer s.Close()
	added, err := s.AddResults("f", "r2", 0, []ir.Tuple{tuple(7)})
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestRecordAttempt(t *testing.T) {
	s := newTestStore(t)
	st := AttemptStats{RunID: "r", Attempt: 1, Function: "f", Temperature: 0.5, RawTests: 4, UniqueTests: 3, Error: "boom"}
	require.NoError(t, s.RecordAttempt(st))
	require.NoError(t, s.RecordAttempt(AttemptStats{RunID: "r", Attempt: 0, Function: "f"}))
	st.RawTests = 5
	require.NoError(t, s.RecordAttempt(st))

	got, err := s.Attempts("r")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Attempt)
	assert.Equal(t, st, got[1])
}

func TestStoreExchange(t *testing.T) {
	s := newTestStore(t)
	var sink perception.ExchangeSink = s
	ex := perception.Exchange{ID: "e1", SystemPrompt: "sys", UserPrompt: "user", Response: "int x;", Timestamp: time.Now()}
	require.NoError(t, sink.StoreExchange(ex))
	require.NoError(t, sink.StoreExchange(ex))

	n, err := s.ExchangeCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
