package perception

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsynth/internal/types"
)

type memorySink struct {
	stored []Exchange
	err    error
}

func (m *memorySink) StoreExchange(ex Exchange) error {
	m.stored = append(m.stored, ex)
	return m.err
}

func TestRecordingGenerator(t *testing.T) {
	calls := 0
	inner := types.GeneratorFunc(func(_ context.Context, system, user string, _ float64) (string, error) {
		calls++
		if user == "fail" {
			return "", errors.New("boom")
		}
		return "re: " + user, nil
	})
	sink := &memorySink{err: errors.New("disk full")}
	rec := NewRecordingGenerator(inner, sink)

	out, err := rec.Generate(context.Background(), "sys", "hello", 0.25)
	require.NoError(t, err)
	assert.Equal(t, "re: hello", out)

	_, err = rec.Generate(context.Background(), "sys", "fail", 1)
	require.Error(t, err)

	exs := rec.Exchanges()
	require.Len(t, exs, 2)
	assert.Equal(t, "hello", exs[0].UserPrompt)
	assert.Equal(t, "re: hello", exs[0].Response)
	assert.Equal(t, 0.25, exs[0].Temperature)
	assert.Empty(t, exs[0].ErrorMessage)
	assert.Equal(t, "boom", exs[1].ErrorMessage)
	assert.NotEqual(t, exs[0].ID, exs[1].ID)
	assert.Len(t, sink.stored, 2, "sink errors do not stop recording")
	assert.Equal(t, 2, calls)

	assert.Len(t, rec.Drain(), 2)
	assert.Empty(t, rec.Exchanges())
}
