// Package tactile runs the symbolic execution backend. A program is compiled
// to LLVM bitcode with clang, explored by KLEE, and the generated test cases
// are dumped with ktest-tool and parsed into a trace.
//
// Two runners are provided: one inside a long-lived Docker container holding
// the KLEE toolchain, and one using binaries on the host.
package tactile

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageCompile Stage = "compile"
	StageExplore Stage = "explore"
	StageDump    Stage = "dump"
)

// Source and bitcode file names inside the run directory.
const (
	SourceFile  = "test.c"
	BitcodeFile = "test.bc"
)

// Toolchain names the tools and flags of the pipeline.
type Toolchain struct {
	Clang     string
	KLEE      string
	KTestTool string
	CFlags    []string
	KLEEFlags []string
}

// DefaultToolchain matches the klee/klee image.
func DefaultToolchain() Toolchain {
	return Toolchain{
		Clang:     "clang",
		KLEE:      "klee",
		KTestTool: "ktest-tool",
		KLEEFlags: []string{"--libc=uclibc", "--posix-runtime", "--external-calls=all"},
	}
}

func (tc Toolchain) compile() []string {
	args := []string{tc.Clang, "-emit-llvm", "-g", "-c"}
	args = append(args, tc.CFlags...)
	return append(args, SourceFile, "-o", BitcodeFile)
}

func (tc Toolchain) explore(timeout time.Duration) []string {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	args := append([]string{tc.KLEE}, tc.KLEEFlags...)
	return append(args, fmt.Sprintf("-max-time=%ds", secs), BitcodeFile)
}

func (tc Toolchain) dump() []string {
	return []string{"sh", "-c", "find klee-last/ -name '*.ktest' -print0 | sort -z | xargs -0 -r " + tc.KTestTool}
}

// CompileError reports a program clang rejected.
type CompileError struct {
	Output string
}

func (e *CompileError) Error() string {
	return "compile failed: " + firstLines(e.Output, 5)
}

// compileFailed reports whether clang output signals an error.
func compileFailed(output string) bool {
	return strings.Contains(output, "error") || strings.Contains(output, "Error")
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(strings.TrimSpace(s), "\n", n+1)
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}
