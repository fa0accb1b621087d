package perception

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"modelsynth/internal/logging"
	"modelsynth/internal/types"
)

// Exchange captures one prompt and its completion.
type Exchange struct {
	ID           string    `json:"id"`
	SystemPrompt string    `json:"system_prompt"`
	UserPrompt   string    `json:"user_prompt"`
	Response     string    `json:"response"`
	Temperature  float64   `json:"temperature"`
	DurationMs   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ExchangeSink receives every exchange as it completes.
type ExchangeSink interface {
	StoreExchange(ex Exchange) error
}

// RecordingGenerator wraps a Generator and keeps every exchange.
type RecordingGenerator struct {
	underlying types.Generator
	sink       ExchangeSink

	mu        sync.Mutex
	exchanges []Exchange
}

// NewRecordingGenerator wraps underlying. sink may be nil.
func NewRecordingGenerator(underlying types.Generator, sink ExchangeSink) *RecordingGenerator {
	return &RecordingGenerator{underlying: underlying, sink: sink}
}

// Generate forwards to the underlying generator and records the result.
func (r *RecordingGenerator) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	start := time.Now()
	resp, err := r.underlying.Generate(ctx, system, user, temperature)

	ex := Exchange{
		ID:           uuid.NewString(),
		SystemPrompt: system,
		UserPrompt:   user,
		Response:     resp,
		Temperature:  temperature,
		DurationMs:   time.Since(start).Milliseconds(),
		Timestamp:    start,
	}
	if err != nil {
		ex.ErrorMessage = err.Error()
	}

	r.mu.Lock()
	r.exchanges = append(r.exchanges, ex)
	r.mu.Unlock()

	if r.sink != nil {
		if serr := r.sink.StoreExchange(ex); serr != nil {
			logging.GenerationWarn("failed to store exchange %s: %v", ex.ID, serr)
		}
	}
	return resp, err
}

// Exchanges returns a copy of the recorded exchanges in call order.
func (r *RecordingGenerator) Exchanges() []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Exchange(nil), r.exchanges...)
}

// Drain returns the recorded exchanges and forgets them.
func (r *RecordingGenerator) Drain() []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.exchanges
	r.exchanges = nil
	return out
}
