// Package journal is an optional sqlite ledger of recording runs, the segments
// each run produced and the merges that consumed them.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoRuns is returned by LatestRun on an empty journal.
var ErrNoRuns = errors.New("journal has no runs")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	pid        INTEGER NOT NULL,
	source     TEXT NOT NULL,
	quality    TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER,
	end_reason TEXT
);
CREATE TABLE IF NOT EXISTS segments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	idx         INTEGER NOT NULL,
	path        TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	ended_at    INTEGER,
	exit_code   INTEGER,
	bytes       INTEGER NOT NULL DEFAULT 0,
	merged_into TEXT
);
CREATE INDEX IF NOT EXISTS segments_run ON segments(run_id, idx);
CREATE TABLE IF NOT EXISTS merges (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	output     TEXT NOT NULL,
	inputs     INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
`

type Run struct {
	ID        string
	PID       int
	Source    string
	Quality   string
	Started   time.Time
	Ended     time.Time // zero while running or after a crash
	EndReason string
}

type Segment struct {
	ID         int64
	RunID      string
	Index      int
	Path       string
	Started    time.Time
	Ended      time.Time
	ExitCode   int // -1 when unknown
	Bytes      int64
	MergedInto string
}

type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("missing journal path")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) StartRun(ctx context.Context, r Run) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, pid, source, quality, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.PID, r.Source, r.Quality, r.Started.UnixMilli())
	return err
}

func (j *Journal) EndRun(ctx context.Context, id string, end time.Time, reason string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, end_reason = ? WHERE id = ?`,
		end.UnixMilli(), reason, id)
	return err
}

// StartSegment records a segment whose extraction command is about to run.
func (j *Journal) StartSegment(ctx context.Context, runID string, idx int, path string, start time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO segments (run_id, idx, path, started_at) VALUES (?, ?, ?, ?)`,
		runID, idx, path, start.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (j *Journal) FinishSegment(ctx context.Context, id int64, end time.Time, exitCode int, bytes int64) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE segments SET ended_at = ?, exit_code = ?, bytes = ? WHERE id = ?`,
		end.UnixMilli(), exitCode, bytes, id)
	return err
}

// Runs lists runs newest first; limit <= 0 means all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, pid, source, quality, started_at, ended_at, end_reason FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var started int64
		var ended sql.NullInt64
		var reason sql.NullString
		if err := rows.Scan(&r.ID, &r.PID, &r.Source, &r.Quality, &started, &ended, &reason); err != nil {
			return nil, err
		}
		r.Started = time.UnixMilli(started)
		if ended.Valid {
			r.Ended = time.UnixMilli(ended.Int64)
		}
		r.EndReason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *Journal) LatestRun(ctx context.Context) (Run, error) {
	runs, err := j.Runs(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNoRuns
	}
	return runs[0], nil
}

// Segments lists a run's segments in index order.
func (j *Journal) Segments(ctx context.Context, runID string) ([]Segment, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, idx, path, started_at, ended_at, exit_code, bytes, merged_into
		 FROM segments WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Segment
	for rows.Next() {
		var s Segment
		var started int64
		var ended, code sql.NullInt64
		var merged sql.NullString
		if err := rows.Scan(&s.ID, &s.RunID, &s.Index, &s.Path, &started, &ended, &code, &s.Bytes, &merged); err != nil {
			return nil, err
		}
		s.Started = time.UnixMilli(started)
		if ended.Valid {
			s.Ended = time.UnixMilli(ended.Int64)
		}
		s.ExitCode = -1
		if code.Valid {
			s.ExitCode = int(code.Int64)
		}
		s.MergedInto = merged.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordMerge stores a finished merge and marks its inputs as merged. Paths are
// matched verbatim, so both sides store absolute paths.
func (j *Journal) RecordMerge(ctx context.Context, output string, inputs []string, at time.Time) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO merges (output, inputs, created_at) VALUES (?, ?, ?)`,
		output, len(inputs), at.UnixMilli()); err != nil {
		return err
	}
	for _, in := range inputs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE segments SET merged_into = ? WHERE path = ?`, output, in); err != nil {
			return err
		}
	}
	return tx.Commit()
}
