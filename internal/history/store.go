// Package history persists summaries of finished event runs for audit and
// diagnostics. Only terminal runs are written; in-flight state never
// touches the store, so restarts lose nothing that was still running.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"siteflow/internal/event"
)

// Status classifies a finished run.
type Status string

const (
	StatusSucceeded Status = "succeeded" // failed bucket empty
	StatusPartial   Status = "partial"   // some handlers failed, run drained
	StatusAborted   Status = "aborted"   // drain stopped on an error
)

// Record is one finished run.
type Record struct {
	RunID       string         `json:"run_id"`
	EventType   string         `json:"event_type"`
	SiteID      string         `json:"site_id,omitempty"`
	Status      Status         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Steps       int            `json:"steps"`
	Failed      int            `json:"failed"`
	Snapshot    event.Snapshot `json:"snapshot"`
}

var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  run_id       TEXT PRIMARY KEY,
  event_type   TEXT NOT NULL,
  site_id      TEXT,
  status       TEXT NOT NULL,
  started_at   TEXT NOT NULL,
  completed_at TEXT NOT NULL,
  steps        INTEGER NOT NULL,
  failed       INTEGER NOT NULL,
  snapshot     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_completed_at ON runs(completed_at DESC);
`

// Store is a SQLite-backed run log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Record inserts one finished run.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("record run: run_id is empty")
	}
	snap, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("record run %s: marshal snapshot: %w", rec.RunID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs(run_id, event_type, site_id, status, started_at, completed_at, steps, failed, snapshot)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		rec.RunID, rec.EventType, nullable(rec.SiteID), string(rec.Status),
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
		rec.Steps, rec.Failed, string(snap),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	return nil
}

// Get returns the run with the given ID, or ErrRunNotFound.
func (s *Store) Get(ctx context.Context, runID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT run_id, event_type, site_id, status, started_at, completed_at, steps, failed, snapshot
FROM runs WHERE run_id = ?;
`, runID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// Recent returns up to n most recently completed runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, event_type, site_id, status, started_at, completed_at, steps, failed, snapshot
FROM runs ORDER BY completed_at DESC LIMIT ?;
`, n)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec        Record
		siteID     sql.NullString
		status     string
		startedS   string
		completedS string
		snap       string
	)
	if err := row.Scan(&rec.RunID, &rec.EventType, &siteID, &status, &startedS, &completedS, &rec.Steps, &rec.Failed, &snap); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if siteID.Valid {
		rec.SiteID = siteID.String
	}
	if t, err := time.Parse(time.RFC3339Nano, startedS); err == nil {
		rec.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, completedS); err == nil {
		rec.CompletedAt = t
	}
	if err := json.Unmarshal([]byte(snap), &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
