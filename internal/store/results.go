// Package store persists what a run produces: decoded tuples and attempt
// statistics in SQLite, and per-attempt artifacts on a filesystem.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"modelsynth/internal/ir"
	"modelsynth/internal/logging"
	"modelsynth/internal/perception"
)

// AttemptStats summarizes one attempt.
type AttemptStats struct {
	RunID       string  `json:"run_id"`
	Attempt     int     `json:"attempt"`
	Function    string  `json:"function"`
	Temperature float64 `json:"temperature"`
	// GenerationMs covers synthesis of every node, ExecutionMs the KLEE run.
	GenerationMs int64 `json:"generation_ms"`
	ExecutionMs  int64 `json:"execution_ms"`
	// RawTests counts decoded tuples, UniqueTests the distinct ones among
	// them, UniqueAdded those new to the run, TotalUnique the run total.
	RawTests            int    `json:"raw_tests"`
	UniqueTests         int    `json:"unique_tests"`
	UniqueAdded         int    `json:"unique_added"`
	TotalUnique         int    `json:"total_unique"`
	ImplementationLines int    `json:"implementation_lines"`
	Retried             bool   `json:"retried,omitempty"`
	TimedOut            bool   `json:"timed_out,omitempty"`
	Error               string `json:"error,omitempty"`
}

// Result is one persisted tuple.
type Result struct {
	Function  string
	Key       string
	Tuple     string
	RunID     string
	Attempt   int
	CreatedAt time.Time
}

// ResultStore accumulates unique tuples across runs.
type ResultStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// NewResultStore opens or creates the database at path.
func NewResultStore(path string) (*ResultStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewResultStore")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &ResultStore{db: db, dbPath: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	logging.Store("ResultStore opened at %s", path)
	return s, nil
}

func (s *ResultStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		function TEXT NOT NULL,
		key TEXT NOT NULL,
		tuple TEXT NOT NULL,
		run_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (function, key)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		run_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		function TEXT NOT NULL,
		temperature REAL,
		generation_ms INTEGER,
		execution_ms INTEGER,
		raw_tests INTEGER,
		unique_tests INTEGER,
		unique_added INTEGER,
		total_unique INTEGER,
		implementation_lines INTEGER,
		retried BOOLEAN,
		timed_out BOOLEAN,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, attempt)
	);

	CREATE TABLE IF NOT EXISTS exchanges (
		id TEXT PRIMARY KEY,
		system_prompt TEXT NOT NULL,
		user_prompt TEXT NOT NULL,
		response TEXT,
		temperature REAL,
		duration_ms INTEGER,
		error_message TEXT,
		created_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddResults stores tuples for function and returns how many were new.
func (s *ResultStore) AddResults(function, runID string, attempt int, tuples []ir.Tuple) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "AddResults")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO results (function, key, tuple, run_id, attempt)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	added := 0
	for _, t := range tuples {
		res, err := stmt.Exec(function, t.Key(), t.String(), runID, attempt)
		if err != nil {
			return 0, fmt.Errorf("insert tuple: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logging.StoreDebug("stored %d/%d new tuples for %s", added, len(tuples), function)
	return added, nil
}

// Count returns the number of unique tuples stored for function.
func (s *ResultStore) Count(function string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM results WHERE function = ?", function).Scan(&n)
	return n, err
}

// Results lists the tuples stored for function, oldest first.
func (s *ResultStore) Results(function string) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT function, key, tuple, run_id, attempt, created_at
		FROM results WHERE function = ? ORDER BY rowid`, function)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Function, &r.Key, &r.Tuple, &r.RunID, &r.Attempt, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordAttempt stores the statistics of one attempt, replacing an earlier
// record for the same run and attempt.
func (s *ResultStore) RecordAttempt(st AttemptStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO attempts
		(run_id, attempt, function, temperature, generation_ms, execution_ms, raw_tests,
		 unique_tests, unique_added, total_unique, implementation_lines, retried, timed_out, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.RunID, st.Attempt, st.Function, st.Temperature, st.GenerationMs, st.ExecutionMs, st.RawTests,
		st.UniqueTests, st.UniqueAdded, st.TotalUnique, st.ImplementationLines, st.Retried, st.TimedOut, st.Error)
	return err
}

// Attempts returns the statistics recorded for runID in attempt order.
func (s *ResultStore) Attempts(runID string) ([]AttemptStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT run_id, attempt, function, temperature, generation_ms, execution_ms,
		raw_tests, unique_tests, unique_added, total_unique, implementation_lines, retried, timed_out, error
		FROM attempts WHERE run_id = ? ORDER BY attempt`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptStats
	for rows.Next() {
		var st AttemptStats
		var errMsg sql.NullString
		if err := rows.Scan(&st.RunID, &st.Attempt, &st.Function, &st.Temperature, &st.GenerationMs,
			&st.ExecutionMs, &st.RawTests, &st.UniqueTests, &st.UniqueAdded, &st.TotalUnique,
			&st.ImplementationLines, &st.Retried, &st.TimedOut, &errMsg); err != nil {
			return nil, err
		}
		st.Error = errMsg.String
		out = append(out, st)
	}
	return out, rows.Err()
}

// StoreExchange persists one prompt and completion. It makes the store a
// perception.ExchangeSink.
func (s *ResultStore) StoreExchange(ex perception.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT OR IGNORE INTO exchanges
		(id, system_prompt, user_prompt, response, temperature, duration_ms, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.SystemPrompt, ex.UserPrompt, ex.Response, ex.Temperature, ex.DurationMs, ex.ErrorMessage, ex.Timestamp)
	return err
}

// ExchangeCount returns the number of stored exchanges.
func (s *ResultStore) ExchangeCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM exchanges").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *ResultStore) Close() error {
	return s.db.Close()
}
