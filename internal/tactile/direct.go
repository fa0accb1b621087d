package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"

	"modelsynth/internal/logging"
)

// maxOutput caps the bytes kept from a single command.
const maxOutput = 64 << 20

// directRunner runs the toolchain installed on the host. Each program gets
// its own directory below workDir, so concurrent runs do not share klee-last.
type directRunner struct {
	fs      afero.Fs
	workDir string
}

// NewDirectExecutor returns an Executor running tools from the host PATH.
func NewDirectExecutor(workDir string, opts ...Option) *Executor {
	return newExecutor(&directRunner{fs: afero.NewOsFs(), workDir: workDir}, opts...)
}

func (r *directRunner) name() string { return "direct" }

func (r *directRunner) prepare(ctx context.Context, program string) (string, func(), error) {
	if err := r.fs.MkdirAll(r.workDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}
	dir, err := afero.TempDir(r.fs, r.workDir, "run-")
	if err != nil {
		return "", nil, fmt.Errorf("create run dir: %w", err)
	}
	cleanup := func() {
		if err := r.fs.RemoveAll(dir); err != nil {
			logging.ExecutionWarn("remove %s: %v", dir, err)
		}
	}
	if err := afero.WriteFile(r.fs, filepath.Join(dir, SourceFile), []byte(program), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write %s: %w", SourceFile, err)
	}
	return dir, cleanup, nil
}

func (r *directRunner) run(ctx context.Context, dir string, args []string) (string, int, error) {
	if len(args) == 0 {
		return "", -1, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	// os/exec shares one pipe when Stdout and Stderr are the same writer.
	var buf bytes.Buffer
	out := &limitedWriter{w: &buf, max: maxOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if out.truncated {
		logging.ExecutionWarn("%s output truncated, %d bytes discarded", args[0], out.discarded)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return buf.String(), -1, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return buf.String(), exitErr.ExitCode(), nil
		}
		return buf.String(), -1, err
	}
	return buf.String(), 0, nil
}

// limitedWriter discards everything after max bytes.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}
	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
