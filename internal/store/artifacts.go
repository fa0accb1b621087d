package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"modelsynth/internal/ir"
	"modelsynth/internal/logging"
	"modelsynth/internal/oracle"
	"modelsynth/internal/perception"
)

// Artifact file names below the run directory.
const (
	SystemPromptFile = "system_prompt.txt"
	UserPromptFile   = "user_prompt.txt"
	StatsFile        = "stats.json"
)

// Artifacts writes the side channel of a run: prompts, the linked program
// of every attempt, the decoded dump, errors and statistics.
type Artifacts struct {
	fs   afero.Fs
	root string

	mu    sync.Mutex
	stats map[int]AttemptStats
}

// NewArtifacts writes below root on fs.
func NewArtifacts(fs afero.Fs, root string) *Artifacts {
	return &Artifacts{fs: fs, root: root, stats: make(map[int]AttemptStats)}
}

// NewOSArtifacts writes below root on the host filesystem.
func NewOSArtifacts(root string) *Artifacts {
	return NewArtifacts(afero.NewOsFs(), root)
}

// Root returns the directory artifacts are written to.
func (a *Artifacts) Root() string { return a.root }

func suffix(attempt int, temperature float64) string {
	return fmt.Sprintf("%d_%g", attempt, temperature)
}

func (a *Artifacts) write(name, content string) error {
	if err := a.fs.MkdirAll(a.root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", a.root, err)
	}
	p := filepath.Join(a.root, name)
	if err := afero.WriteFile(a.fs, p, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	logging.StoreDebug("wrote %s (%d bytes)", p, len(content))
	return nil
}

// WritePrompts stores the prompts of an attempt's entry point. Prompts are
// the same for every attempt, so the first write wins.
func (a *Artifacts) WritePrompts(system, user string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ok, _ := afero.Exists(a.fs, filepath.Join(a.root, UserPromptFile)); ok {
		return nil
	}
	if err := a.write(SystemPromptFile, system); err != nil {
		return err
	}
	return a.write(UserPromptFile, user)
}

// WriteImplementation stores the linked program of an attempt.
func (a *Artifacts) WriteImplementation(attempt int, temperature float64, src string) error {
	return a.write("implementation_"+suffix(attempt, temperature)+".c", src)
}

// WriteTests stores the decoded dump of an attempt, one record per line,
// dropped records included with their reason.
func (a *Artifacts) WriteTests(attempt int, temperature float64, records []oracle.Record) error {
	var sb strings.Builder
	for _, r := range records {
		sb.WriteString(r.Tuple.String())
		if !r.Kept {
			sb.WriteString("  # dropped: ")
			sb.WriteString(r.Reason)
		}
		if len(r.Missing) > 0 {
			sb.WriteString("  # missing: ")
			sb.WriteString(strings.Join(r.Missing, ","))
		}
		sb.WriteByte('\n')
	}
	return a.write("tests_"+suffix(attempt, temperature)+".txt", sb.String())
}

// WriteError stores the failure of an attempt.
func (a *Artifacts) WriteError(attempt int, temperature float64, err error) error {
	return a.write("errors_"+suffix(attempt, temperature)+".txt", err.Error()+"\n")
}

// WriteExchanges stores the prompts and completions of an attempt.
func (a *Artifacts) WriteExchanges(attempt int, temperature float64, exchanges []perception.Exchange) error {
	data, err := json.MarshalIndent(exchanges, "", "  ")
	if err != nil {
		return err
	}
	return a.write("exchanges_"+suffix(attempt, temperature)+".json", string(data))
}

// WriteUnique stores the run's unique tuples.
func (a *Artifacts) WriteUnique(tuples []ir.Tuple) error {
	var sb strings.Builder
	for _, t := range tuples {
		sb.WriteString(t.String())
		sb.WriteByte('\n')
	}
	return a.write("unique.txt", sb.String())
}

// RecordStats adds st and rewrites the statistics file, keyed by attempt.
func (a *Artifacts) RecordStats(st AttemptStats) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats[st.Attempt] = st
	data, err := json.MarshalIndent(a.stats, "", "  ")
	if err != nil {
		return err
	}
	return a.write(StatsFile, string(data))
}

// ReadStats loads the statistics file.
func (a *Artifacts) ReadStats() (map[int]AttemptStats, error) {
	data, err := afero.ReadFile(a.fs, filepath.Join(a.root, StatsFile))
	if err != nil {
		return nil, err
	}
	var out map[int]AttemptStats
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", StatsFile, err)
	}
	return out, nil
}
