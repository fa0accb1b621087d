package run

import (
	"context"
	"math"
	"time"

	"modelsynth/internal/logging"
	"modelsynth/internal/types"
)

// Temperatures returns the temperature of each of k attempts. With sweep
// set they are spread evenly over [0, 1], rounded to three decimals; a
// single attempt runs at 0. Otherwise every attempt uses base.
func Temperatures(k int, base float64, sweep bool) []float64 {
	if k <= 0 {
		return nil
	}
	out := make([]float64, k)
	if !sweep {
		for i := range out {
			out[i] = base
		}
		return out
	}
	if k == 1 {
		return out
	}
	step := 1 / float64(k-1)
	for i := range out {
		out[i] = math.Round(float64(i)*step*1000) / 1000
	}
	return out
}

// retryOnce runs fn and, if it fails with a transient backend error, waits
// backoff and runs it again. It reports whether a retry happened.
func retryOnce[T any](ctx context.Context, backoff time.Duration, what string, fn func() (T, error)) (T, bool, error) {
	v, err := fn()
	if err == nil || !types.IsTransient(err) {
		return v, false, err
	}
	logging.RunWarn("%s failed, retrying in %v: %v", what, backoff, err)
	t := time.NewTimer(backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case <-t.C:
	}
	v, err = fn()
	return v, true, err
}
