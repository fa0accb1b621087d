package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsynth/internal/ir"
	"modelsynth/internal/types"
)

func TestTemperatures(t *testing.T) {
	tests := []struct {
		k     int
		base  float64
		sweep bool
		want  []float64
	}{
		{0, 0.6, true, nil},
		{1, 0.6, true, []float64{0}},
		{2, 0.6, true, []float64{0, 1}},
		{4, 0.6, true, []float64{0, 0.333, 0.667, 1}},
		{3, 0.6, false, []float64{0.6, 0.6, 0.6}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Temperatures(tt.k, tt.base, tt.sweep), "k=%d sweep=%v", tt.k, tt.sweep)
	}
}

func TestResultSet(t *testing.T) {
	s := NewResultSet()
	a := ir.Tuple{ir.IntValue(1), ir.StringValue("x")}
	b := ir.Tuple{ir.IntValue(1), ir.StringValue("y")}

	assert.Equal(t, 2, s.Add(a, b, ir.Tuple{ir.IntValue(1), ir.StringValue("x")}))
	assert.Equal(t, 0, s.Add(a))
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(ir.Tuple{ir.IntValue(1), ir.StringValue("y")}))
	assert.False(t, s.Contains(ir.Tuple{ir.IntValue(2)}))
	assert.Equal(t, []ir.Tuple{a, b}, s.Tuples())
}

func TestRetryOnce(t *testing.T) {
	transient := types.GenerationError("g", errors.New("busy"), true)
	permanent := types.GenerationError("g", errors.New("bad"), false)

	calls := 0
	v, retried, err := retryOnce(context.Background(), time.Millisecond, "op", func() (int, error) {
		calls++
		if calls == 1 {
			return 0, transient
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.True(t, retried)

	calls = 0
	_, retried, err = retryOnce(context.Background(), time.Millisecond, "op", func() (int, error) {
		calls++
		return 0, permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.False(t, retried)
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = retryOnce(ctx, time.Hour, "op", func() (int, error) { return 0, transient })
	assert.ErrorIs(t, err, context.Canceled)
}
