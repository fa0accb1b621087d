// Package perception holds the generation backends: clients that turn a
// system and user prompt into a completed C implementation.
package perception

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"modelsynth/internal/types"
)

// Provider names a generation backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// failure wraps err as a generation backend error, marking deadline
// expiry as a timeout.
func failure(op string, err error, transient bool) *types.BackendError {
	be := types.GenerationError(op, err, transient)
	if errors.Is(err, context.DeadlineExceeded) {
		be.Timeout = true
		be.Transient = true
	}
	return be
}

// withTimeout applies the client timeout when ctx carries no deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

var errUnfinished = errors.New("completion did not finish")

func unfinished(reason string) error {
	return fmt.Errorf("%w: %s", errUnfinished, reason)
}
