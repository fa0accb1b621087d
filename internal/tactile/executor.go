package tactile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modelsynth/internal/logging"
	"modelsynth/internal/types"
)

// runner places a program somewhere tools can reach it and runs commands
// next to it.
type runner interface {
	// prepare writes program as SourceFile into a fresh run directory.
	prepare(ctx context.Context, program string) (dir string, cleanup func(), err error)
	// run executes args in dir and returns the combined output.
	run(ctx context.Context, dir string, args []string) (output string, exitCode int, err error)
	name() string
}

// Executor implements types.Executor on top of a runner.
type Executor struct {
	runner    runner
	toolchain Toolchain
	// grace is added to the exploration timeout to cover compile and dump.
	grace          time.Duration
	defaultTimeout time.Duration

	mu            sync.RWMutex
	auditCallback func(AuditEvent)
}

// Option configures an Executor.
type Option func(*Executor)

// WithToolchain overrides the tools and flags.
func WithToolchain(tc Toolchain) Option {
	return func(e *Executor) { e.toolchain = tc }
}

// WithGrace sets the slack allowed beyond the exploration timeout.
func WithGrace(d time.Duration) Option {
	return func(e *Executor) { e.grace = d }
}

// WithDefaultTimeout sets the timeout used when Execute is given none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) { e.defaultTimeout = d }
}

func newExecutor(r runner, opts ...Option) *Executor {
	e := &Executor{
		runner:         r,
		toolchain:      DefaultToolchain(),
		grace:          2 * time.Minute,
		defaultTimeout: time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetAuditCallback sets the callback for finished steps.
func (e *Executor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *Executor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()
	if callback != nil {
		callback(event)
	}
}

// Backend names the runner, "docker" or "direct".
func (e *Executor) Backend() string { return e.runner.name() }

// Execute compiles program, explores it for at most timeout and returns the
// parsed test cases. A compile failure or a run without the completion marker
// is an execution BackendError; exceeding the deadline sets Timeout.
func (e *Executor) Execute(ctx context.Context, program string, timeout time.Duration) (types.Trace, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	timer := logging.StartTimer(logging.CategoryExecution, e.runner.name()+" execute")
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(ctx, timeout+e.grace)
	defer cancel()

	dir, cleanup, err := e.runner.prepare(ctx, program)
	if err != nil {
		return types.Trace{}, e.failure(ctx, "prepare", err)
	}
	defer cleanup()

	out, code, err := e.step(ctx, StageCompile, dir, e.toolchain.compile())
	if err != nil {
		return types.Trace{}, e.failure(ctx, string(StageCompile), err)
	}
	if code != 0 || compileFailed(out) {
		logging.ExecutionWarn("compile failed in %s: %s", dir, firstLines(out, 3))
		return types.Trace{}, types.ExecutionError(string(StageCompile), &CompileError{Output: out})
	}

	out, _, err = e.step(ctx, StageExplore, dir, e.toolchain.explore(timeout))
	if err != nil {
		return types.Trace{}, e.failure(ctx, string(StageExplore), err)
	}
	if !strings.Contains(out, CompletionMarker) {
		return types.Trace{}, types.ExecutionError(string(StageExplore),
			fmt.Errorf("klee did not finish: %s", firstLines(out, 5)))
	}

	out, code, err = e.step(ctx, StageDump, dir, e.toolchain.dump())
	if err != nil {
		return types.Trace{}, e.failure(ctx, string(StageDump), err)
	}
	if code != 0 {
		return types.Trace{}, types.ExecutionError(string(StageDump),
			fmt.Errorf("ktest-tool exited %d: %s", code, firstLines(out, 5)))
	}
	trace := ParseKTest(out)
	trace.Complete = true
	logging.Execution("%s: %d paths, %d leaves", e.runner.name(), trace.Paths, trace.Len())
	return trace, nil
}

func (e *Executor) step(ctx context.Context, stage Stage, dir string, args []string) (string, int, error) {
	start := time.Now()
	logging.ExecutionDebug("%s: %s", stage, strings.Join(args, " "))
	out, code, err := e.runner.run(ctx, dir, args)
	ev := AuditEvent{
		Stage:     stage,
		Command:   args,
		Dir:       dir,
		ExitCode:  code,
		Output:    out,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.emitAudit(ev)
	return out, code, err
}

// failure wraps err, marking expiry of the execution deadline.
func (e *Executor) failure(ctx context.Context, op string, err error) error {
	be := types.ExecutionError(op, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		be.Timeout = true
	}
	return be
}
