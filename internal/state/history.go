package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of a breakdown or execution loop.
type Run struct {
	ID         string
	Operation  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Outcome    string
	Successful int
	Failed     int
	Iterations int
}

// NodeResult records what happened to one node within a run.
type NodeResult struct {
	RunID     string
	NodeID    string
	Operation string
	Success   bool
	Score     int
	Verdict   string
	Error     string
	CreatedAt time.Time
}

// History records runs and per-node results.
type History struct {
	db  *DB
	now func() time.Time
}

// NewHistory wraps a migrated database.
func NewHistory(db *DB) *History {
	return &History{db: db, now: time.Now}
}

// StartRun inserts a new running row and returns its id.
func (h *History) StartRun(operation string) (string, error) {
	id := uuid.New().String()
	_, err := h.db.Exec(
		`INSERT INTO runs (id, operation, started_at, outcome) VALUES (?, ?, ?, 'running')`,
		id, operation, formatTime(h.now()),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the outcome and final counters on a run.
func (h *History) FinishRun(id, outcome string, successful, failed, iterations int) error {
	res, err := h.db.Exec(
		`UPDATE runs SET finished_at = ?, outcome = ?, successful = ?, failed = ?, iterations = ? WHERE id = ?`,
		formatTime(h.now()), outcome, successful, failed, iterations, id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordNode appends a node result to a run.
func (h *History) RecordNode(r NodeResult) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = h.now()
	}
	_, err := h.db.Exec(
		`INSERT INTO node_results (run_id, node_id, operation, success, score, verdict, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.NodeID, r.Operation, r.Success, r.Score,
		nullString(r.Verdict), nullString(r.Error), formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert node result %s: %w", r.NodeID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (h *History) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.Query(
		`SELECT id, operation, started_at, finished_at, outcome, successful, failed, iterations
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Operation, &started, &finished, &r.Outcome, &r.Successful, &r.Failed, &r.Iterations); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		r.FinishedAt = parseNullableTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// NodeResults returns the results recorded for a run in insertion order.
func (h *History) NodeResults(runID string) ([]NodeResult, error) {
	rows, err := h.db.Query(
		`SELECT run_id, node_id, operation, success, score, verdict, error, created_at
		 FROM node_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query node results: %w", err)
	}
	defer rows.Close()

	var results []NodeResult
	for rows.Next() {
		var (
			r       NodeResult
			verdict sql.NullString
			errText sql.NullString
			created string
		)
		if err := rows.Scan(&r.RunID, &r.NodeID, &r.Operation, &r.Success, &r.Score, &verdict, &errText, &created); err != nil {
			return nil, fmt.Errorf("scan node result: %w", err)
		}
		r.Verdict = verdict.String
		r.Error = errText.String
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
