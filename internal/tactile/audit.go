package tactile

import (
	"strings"
	"time"
)

// AuditEvent records one finished pipeline step.
type AuditEvent struct {
	Stage     Stage         `json:"stage"`
	Command   []string      `json:"command"`
	Dir       string        `json:"dir"`
	ExitCode  int           `json:"exit_code"`
	Output    string        `json:"output"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// CommandString returns the command as one line.
func (e AuditEvent) CommandString() string {
	return strings.Join(e.Command, " ")
}
