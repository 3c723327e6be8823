package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"skeptic/internal/gateway"
	"skeptic/internal/logging"
)

// RunRecord is one phase run in the ledger.
type RunRecord struct {
	ID         string
	Phase      int
	Status     string
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
	Calls      int
}

// Ledger records phase runs and gateway calls in SQLite.
type Ledger struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenLedger opens (and creates if needed) the ledger database.
func OpenLedger(path string) (*Ledger, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenLedger")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}

	l := &Ledger{db: db, path: path, now: time.Now}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("ledger opened at %s", path)
	return l, nil
}

func (l *Ledger) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS phase_runs (
		id TEXT PRIMARY KEY,
		phase INTEGER NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON phase_runs(started_at);
	`
	callsTable := `
	CREATE TABLE IF NOT EXISTS gateway_calls (
		id TEXT PRIMARY KEY,
		run_id TEXT,
		phase INTEGER,
		model TEXT NOT NULL,
		ok INTEGER NOT NULL,
		status_code INTEGER,
		error TEXT,
		prompt_chars INTEGER,
		response_chars INTEGER,
		prompt_tokens INTEGER,
		completion_tokens INTEGER,
		duration_ms INTEGER,
		at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_calls_run ON gateway_calls(run_id);
	`
	for _, stmt := range []string{runsTable, callsTable} {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts a running phase run and returns its id.
func (l *Ledger) StartRun(ctx context.Context, phase int) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO phase_runs (id, phase, status, started_at) VALUES (?, ?, ?, ?)`,
		id, phase, "running", l.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun records the final status of a run.
func (l *Ledger) FinishRun(ctx context.Context, id, status, detail string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE phase_runs SET status = ?, detail = ?, finished_at = ? WHERE id = ?`,
		status, detail, l.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// RecordCall implements gateway.CallSink.
func (l *Ledger) RecordCall(ctx context.Context, rec gateway.CallRecord) error {
	ok := 0
	if rec.OK {
		ok = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO gateway_calls (id, run_id, phase, model, ok, status_code, error,
			prompt_chars, response_chars, prompt_tokens, completion_tokens, duration_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Phase, rec.Model, ok, rec.StatusCode, rec.Error,
		rec.PromptChars, rec.ResponseChars, rec.PromptTokens, rec.CompletionTokens,
		rec.Duration.Milliseconds(), rec.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record call: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first, with call counts.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT r.id, r.phase, r.status, COALESCE(r.detail, ''), r.started_at,
			COALESCE(r.finished_at, 0), COUNT(c.id)
		FROM phase_runs r LEFT JOIN gateway_calls c ON c.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec               RunRecord
			started, finished int64
		)
		if err := rows.Scan(&rec.ID, &rec.Phase, &rec.Status, &rec.Detail, &started, &finished, &rec.Calls); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started)
		if finished > 0 {
			rec.FinishedAt = time.UnixMilli(finished)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CallsForRun returns the calls attributed to a run in insertion order.
func (l *Ledger) CallsForRun(ctx context.Context, runID string) ([]gateway.CallRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, phase, model, ok, status_code, COALESCE(error, ''),
			prompt_chars, response_chars, prompt_tokens, completion_tokens, duration_ms, at
		FROM gateway_calls WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	var out []gateway.CallRecord
	for rows.Next() {
		var (
			rec     gateway.CallRecord
			ok      int
			dur, at int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Phase, &rec.Model, &ok, &rec.StatusCode, &rec.Error,
			&rec.PromptChars, &rec.ResponseChars, &rec.PromptTokens, &rec.CompletionTokens, &dur, &at); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		rec.OK = ok == 1
		rec.Duration = time.Duration(dur) * time.Millisecond
		rec.At = time.UnixMilli(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}
