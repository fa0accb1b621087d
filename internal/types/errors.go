package types

import (
	"errors"
	"fmt"
	"strings"
)

// ConstructionError reports malformed IR. It is fatal and never retried.
type ConstructionError struct {
	Op  string
	Msg string
}

func (e *ConstructionError) Error() string {
	if e.Op == "" {
		return "construction: " + e.Msg
	}
	return fmt.Sprintf("construction: %s: %s", e.Op, e.Msg)
}

// NewConstructionError creates a ConstructionError with a formatted message.
func NewConstructionError(op, format string, args ...interface{}) *ConstructionError {
	return &ConstructionError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// BackendError wraps a generation or execution backend failure. It is
// recoverable at attempt granularity.
type BackendError struct {
	Backend string // "generation" or "execution"
	Op      string
	Err     error
	// Transient marks failures worth one retry after backoff.
	Transient bool
	// Timeout marks a per-attempt timeout.
	Timeout bool
}

func (e *BackendError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Backend)
	sb.WriteString(" backend")
	if e.Op != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Op)
	}
	if e.Timeout {
		sb.WriteString(" (timeout)")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backend names used in BackendError.
const (
	BackendGeneration = "generation"
	BackendExecution  = "execution"
)

// GenerationError wraps err as a generation backend failure.
func GenerationError(op string, err error, transient bool) *BackendError {
	return &BackendError{Backend: BackendGeneration, Op: op, Err: err, Transient: transient}
}

// ExecutionError wraps err as an execution backend failure.
func ExecutionError(op string, err error) *BackendError {
	return &BackendError{Backend: BackendExecution, Op: op, Err: err}
}

// DecodeError reports a leaf missing from a trace. The decoder turns it into
// an absent value instead of failing the record.
type DecodeError struct {
	Name string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: leaf %s missing from trace", e.Name)
}

// GraphError reports an invalid dependency graph, raised before any
// generation work begins.
type GraphError struct {
	Msg   string
	Cycle []string
}

func (e *GraphError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("graph: %s: %s", e.Msg, strings.Join(e.Cycle, " -> "))
	}
	return "graph: " + e.Msg
}

// IsConstruction reports whether err is or wraps a ConstructionError.
func IsConstruction(err error) bool {
	var ce *ConstructionError
	return errors.As(err, &ce)
}

// IsBackend reports whether err is or wraps a BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsGraph reports whether err is or wraps a GraphError.
func IsGraph(err error) bool {
	var ge *GraphError
	return errors.As(err, &ge)
}

// IsTransient reports whether err is a backend failure worth retrying.
func IsTransient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Transient
	}
	return false
}

// IsTimeout reports whether err is a per-attempt backend timeout.
func IsTimeout(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Timeout
	}
	return false
}
