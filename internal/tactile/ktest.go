package tactile

import (
	"bufio"
	"strconv"
	"strings"

	"modelsynth/internal/types"
)

// CompletionMarker is printed by KLEE when exploration finished.
const CompletionMarker = "KLEE: done:"

// ignoredObjects are objects KLEE adds to every test case.
var ignoredObjects = map[string]bool{"model_version": true}

// ParseKTest reads ktest-tool output. Each object contributes its name and
// unsigned value, in file order; a "ktest file" header counts one path.
func ParseKTest(output string) types.Trace {
	trace := types.Trace{Raw: output}
	var name string
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "ktest file") {
			trace.Paths++
			continue
		}
		if !strings.HasPrefix(line, "object") {
			continue
		}
		_, field, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(field, "name:"):
			name = strings.Trim(strings.TrimSpace(strings.TrimPrefix(field, "name:")), "'")
		case strings.HasPrefix(field, "uint:"):
			if name == "" || ignoredObjects[name] {
				continue
			}
			v, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(field, "uint:")), 10, 64)
			if err != nil {
				continue
			}
			trace.Assignments = append(trace.Assignments, types.Assignment{Name: name, Value: v})
			name = ""
		}
	}
	return trace
}
