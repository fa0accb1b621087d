package tactile

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"modelsynth/internal/types"
)

const sampleDump = `ktest file : 'klee-last/test000001.ktest'
args       : ['test.bc']
num objects: 3
object 0: name: 'model_version'
object 0: size: 4
object 0: data: b'\x01\x00\x00\x00'
object 0: hex : 0x01000000
object 0: int : 1
object 0: uint: 1
object 0: text: ....
object 1: name: 'x0'
object 1: size: 1
object 1: data: b'\x07'
object 1: hex : 0x07
object 1: int : 7
object 1: uint: 7
object 1: text: .
object 2: name: 'x1'
object 2: size: 1
object 2: data: b'\xff'
object 2: hex : 0xff
object 2: int : -1
object 2: uint: 255
object 2: text: .

ktest file : 'klee-last/test000002.ktest'
args       : ['test.bc']
num objects: 2
object 0: name: 'model_version'
object 0: uint: 1
object 1: name: 'x0'
object 1: int : 0
object 1: uint: 0
`

func TestParseKTest(t *testing.T) {
	trace := ParseKTest(sampleDump)

	want := []types.Assignment{
		{Name: "x0", Value: 7},
		{Name: "x1", Value: 255},
		{Name: "x0", Value: 0},
	}
	if diff := cmp.Diff(want, trace.Assignments); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}
	if trace.Paths != 2 {
		t.Errorf("Paths = %d, want 2", trace.Paths)
	}
	if trace.Raw != sampleDump {
		t.Error("Raw should hold the input")
	}
	if trace.Complete {
		t.Error("parsing alone must not mark the trace complete")
	}
	if got := len(trace.Records()); got != 2 {
		t.Errorf("Records() = %d, want 2", got)
	}
}

func TestParseKTestEmpty(t *testing.T) {
	trace := ParseKTest("")
	if trace.Len() != 0 || trace.Paths != 0 {
		t.Errorf("empty dump parsed as %+v", trace)
	}
}

func TestParseKTestSkipsMalformedValues(t *testing.T) {
	trace := ParseKTest("object 0: name: 'x0'\nobject 0: uint: nope\nobject 1: name: 'x1'\nobject 1: uint: 3\n")
	want := []types.Assignment{{Name: "x1", Value: 3}}
	if diff := cmp.Diff(want, trace.Assignments); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}
}

func TestToolchainCommands(t *testing.T) {
	tc := DefaultToolchain()
	tc.CFlags = []string{"-I", "include"}

	if diff := cmp.Diff([]string{"clang", "-emit-llvm", "-g", "-c", "-I", "include", "test.c", "-o", "test.bc"}, tc.compile()); diff != "" {
		t.Errorf("compile mismatch (-want +got):\n%s", diff)
	}
	want := []string{"klee", "--libc=uclibc", "--posix-runtime", "--external-calls=all", "-max-time=2s", "test.bc"}
	if diff := cmp.Diff(want, tc.explore(1500*time.Millisecond)); diff != "" {
		t.Errorf("explore mismatch (-want +got):\n%s", diff)
	}
	if got := tc.explore(0)[len(want)-2]; got != "-max-time=1s" {
		t.Errorf("zero timeout gave %s", got)
	}
	dump := tc.dump()
	if dump[0] != "sh" || dump[2] != "find klee-last/ -name '*.ktest' -print0 | sort -z | xargs -0 -r ktest-tool" {
		t.Errorf("dump = %q", dump)
	}
}

func TestCompileFailed(t *testing.T) {
	tests := []struct {
		output string
		want   bool
	}{
		{"", false},
		{"test.c:3:1: warning: unused variable", false},
		{"test.c:3:1: error: expected ';'", true},
		{"Error: no such file", true},
	}
	for _, tt := range tests {
		if got := compileFailed(tt.output); got != tt.want {
			t.Errorf("compileFailed(%q) = %v, want %v", tt.output, got, tt.want)
		}
	}
}
