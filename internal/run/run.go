// Package run repeats synthesis attempts for one graph, executes each linked
// program and accumulates the distinct tuples the attempts produce.
package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"modelsynth/internal/composer"
	"modelsynth/internal/ir"
	"modelsynth/internal/logging"
	"modelsynth/internal/oracle"
	"modelsynth/internal/perception"
	"modelsynth/internal/store"
	"modelsynth/internal/types"
)

// Options configures a run.
type Options struct {
	Generator types.Generator
	Executor  types.Executor

	// Attempts is the number of independent syntheses, at least one.
	Attempts int
	// Temperature is used for every attempt unless Sweep is set.
	Temperature float64
	Sweep       bool
	// Concurrency bounds the attempts in flight, default one.
	Concurrency int
	// RateLimit bounds attempt starts per second. Zero means unlimited.
	RateLimit rate.Limit
	// RetryBackoff is waited before retrying a transient failure.
	RetryBackoff time.Duration
	// Timeout bounds each execution.
	Timeout time.Duration

	Filters   []*ir.Function
	Constants []ir.NamedConst
	Locator   composer.Locator

	// Artifacts and Results are optional sinks.
	Artifacts *store.Artifacts
	Results   *store.ResultStore

	// RunID labels persisted records; a random one is used when empty.
	RunID string
}

// Report is the outcome of a run.
type Report struct {
	RunID    string
	Function string
	// Unique holds every distinct tuple in first-seen order.
	Unique   []ir.Tuple
	Attempts []store.AttemptStats
	// Failed counts attempts that ended with a backend error.
	Failed int
}

// Run performs opts.Attempts syntheses of g. Graph and construction errors
// abort the run; backend failures only end their attempt. The report is
// returned together with a context error if the run was cancelled.
func Run(ctx context.Context, g *composer.Graph, opts Options) (*Report, error) {
	if opts.Generator == nil || opts.Executor == nil {
		return nil, types.NewConstructionError("Run", "generator and executor are required")
	}
	entry, err := g.Validate(opts.Filters)
	if err != nil {
		return nil, err
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}

	r := &runner{
		graph:   g,
		opts:    opts,
		entry:   entry,
		limiter: rate.NewLimiter(limit, 1),
		results: NewResultSet(),
		stats:   make([]*store.AttemptStats, opts.Attempts),
	}
	timer := logging.StartTimer(logging.CategoryRun, "run "+entry.Name)
	defer timer.Stop()
	logging.Run("run %s: %d attempts of %s, concurrency %d", opts.RunID, opts.Attempts, entry.Name, opts.Concurrency)

	temps := Temperatures(opts.Attempts, opts.Temperature, opts.Sweep)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Concurrency)
	for i := 0; i < opts.Attempts; i++ {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			return r.attempt(egCtx, i, temps[i])
		})
	}
	err = eg.Wait()

	report := &Report{
		RunID:    opts.RunID,
		Function: entry.Name,
		Unique:   r.results.Tuples(),
		Attempts: r.finished(),
		Failed:   r.failed,
	}
	if opts.Artifacts != nil {
		if werr := opts.Artifacts.WriteUnique(report.Unique); werr != nil {
			logging.RunWarn("write unique tuples: %v", werr)
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	logging.Run("run %s: %d unique tuples, %d/%d attempts failed", opts.RunID, len(report.Unique), report.Failed, opts.Attempts)
	return report, err
}

type runner struct {
	graph   *composer.Graph
	opts    Options
	entry   *ir.Function
	limiter *rate.Limiter
	results *ResultSet

	mu     sync.Mutex
	stats  []*store.AttemptStats
	failed int
}

// attempt returns an error only when the whole run must stop.
func (r *runner) attempt(ctx context.Context, i int, temperature float64) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	st := store.AttemptStats{
		RunID:       r.opts.RunID,
		Attempt:     i,
		Function:    r.entry.Name,
		Temperature: temperature,
	}
	rec := r.recorder()

	err := r.execute(ctx, &st, rec)
	if r.opts.Artifacts != nil {
		if werr := r.opts.Artifacts.WriteExchanges(i, temperature, rec.Drain()); werr != nil {
			logging.RunWarn("attempt %d: write exchanges: %v", i, werr)
		}
	}
	switch {
	case err == nil:
	case types.IsConstruction(err), types.IsGraph(err):
		logging.RunError("attempt %d: %v", i, err)
		return err
	case ctx.Err() != nil && !types.IsTimeout(err):
		return ctx.Err()
	default:
		st.Error = err.Error()
		st.TimedOut = types.IsTimeout(err)
		logging.RunWarn("attempt %d (temperature %g) failed: %v", i, temperature, err)
		if r.opts.Artifacts != nil {
			if werr := r.opts.Artifacts.WriteError(i, temperature, err); werr != nil {
				logging.RunWarn("attempt %d: write error: %v", i, werr)
			}
		}
	}
	r.record(st, err != nil)
	return nil
}

func (r *runner) recorder() *perception.RecordingGenerator {
	// A nil *ResultStore must not become a non-nil sink.
	var sink perception.ExchangeSink
	if r.opts.Results != nil {
		sink = r.opts.Results
	}
	return perception.NewRecordingGenerator(r.opts.Generator, sink)
}

func (r *runner) execute(ctx context.Context, st *store.AttemptStats, gen types.Generator) error {
	start := time.Now()
	o, retried, err := retryOnce(ctx, r.opts.RetryBackoff, fmt.Sprintf("attempt %d synthesis", st.Attempt),
		func() (*oracle.Oracle, error) {
			return composer.Synthesize(ctx, r.graph, composer.Options{
				Generator:   gen,
				Temperature: st.Temperature,
				Filters:     r.opts.Filters,
				Constants:   r.opts.Constants,
				Locator:     r.opts.Locator,
			})
		})
	st.GenerationMs = time.Since(start).Milliseconds()
	st.Retried = retried
	if err != nil {
		return err
	}
	st.ImplementationLines = o.Lines()
	r.writeSources(st, o)

	start = time.Now()
	trace, retried, err := retryOnce(ctx, r.opts.RetryBackoff, fmt.Sprintf("attempt %d execution", st.Attempt),
		func() (types.Trace, error) {
			return o.Execute(ctx, r.opts.Executor, r.opts.Timeout)
		})
	st.ExecutionMs = time.Since(start).Milliseconds()
	st.Retried = st.Retried || retried
	if err != nil {
		return err
	}

	records := o.DecodeAll(trace)
	var tuples []ir.Tuple
	for _, rec := range records {
		if rec.Kept {
			tuples = append(tuples, rec.Tuple)
		}
	}
	if r.opts.Artifacts != nil {
		if werr := r.opts.Artifacts.WriteTests(st.Attempt, st.Temperature, records); werr != nil {
			logging.RunWarn("attempt %d: write tests: %v", st.Attempt, werr)
		}
	}

	own := NewResultSet()
	own.Add(tuples...)
	st.RawTests = len(tuples)
	st.UniqueTests = own.Len()
	st.UniqueAdded = r.results.Add(tuples...)
	st.TotalUnique = r.results.Len()

	if r.opts.Results != nil {
		if _, err := r.opts.Results.AddResults(r.entry.Name, r.opts.RunID, st.Attempt, tuples); err != nil {
			logging.RunWarn("attempt %d: store results: %v", st.Attempt, err)
		}
	}
	logging.Run("attempt %d (temperature %g): %d tests, %d unique, %d new",
		st.Attempt, st.Temperature, st.RawTests, st.UniqueTests, st.UniqueAdded)
	return nil
}

func (r *runner) writeSources(st *store.AttemptStats, o *oracle.Oracle) {
	a := r.opts.Artifacts
	if a == nil {
		return
	}
	if err := a.WritePrompts(o.SystemPrompt(), o.UserPrompt()); err != nil {
		logging.RunWarn("attempt %d: write prompts: %v", st.Attempt, err)
	}
	if err := a.WriteImplementation(st.Attempt, st.Temperature, o.Implementation()); err != nil {
		logging.RunWarn("attempt %d: write implementation: %v", st.Attempt, err)
	}
}

// finished returns the statistics of the attempts that ran, in order.
func (r *runner) finished() []store.AttemptStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.AttemptStats
	for _, st := range r.stats {
		if st != nil {
			out = append(out, *st)
		}
	}
	return out
}

func (r *runner) record(st store.AttemptStats, failed bool) {
	r.mu.Lock()
	r.stats[st.Attempt] = &st
	if failed {
		r.failed++
	}
	r.mu.Unlock()

	if r.opts.Artifacts != nil {
		if err := r.opts.Artifacts.RecordStats(st); err != nil {
			logging.RunWarn("attempt %d: write stats: %v", st.Attempt, err)
		}
	}
	if r.opts.Results != nil {
		if err := r.opts.Results.RecordAttempt(st); err != nil {
			logging.RunWarn("attempt %d: store stats: %v", st.Attempt, err)
		}
	}
}
