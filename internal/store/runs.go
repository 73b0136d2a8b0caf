package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/convtest/internal/harness"
)

// RunSummary is the list form of a stored run.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	FlowID       string    `json:"flow_id"`
	FlowName     string    `json:"flow_name"`
	AgentRef     string    `json:"agent_ref"`
	StartTime    time.Time `json:"start_time"`
	DurationMs   float64   `json:"duration_ms"`
	Success      bool      `json:"success"`
	StoppedEarly bool      `json:"stopped_early"`
	TotalSteps   int       `json:"total_steps"`
	PassedSteps  int       `json:"passed_steps"`
	Error        string    `json:"error,omitempty"`
}

// ListOptions filters ListRuns. Zero values mean no filter; Limit <= 0 means
// DefaultListLimit.
type ListOptions struct {
	FlowID string
	Limit  int
}

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 50

// SaveRun stores a run and its step rows in one transaction. Saving an
// existing run id replaces it.
func (s *Store) SaveRun(ctx context.Context, run *harness.RunResult) error {
	if run == nil {
		return errors.New("save run: nil run")
	}
	if run.RunID == "" {
		return errors.New("save run: empty run id")
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("save run: marshal: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.RunID); err != nil {
		return fmt.Errorf("save run: replace: %w", err)
	}

	summary := run.Report.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, flow_id, flow_name, agent_ref, session_id, start_unix_ns, duration_ms,
		 success, stopped_early, total_steps, passed_steps, error, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.FlowID,
		run.FlowName,
		run.AgentRef,
		run.SessionID,
		run.StartTime.UnixNano(),
		run.DurationMs,
		run.Success,
		run.StoppedEarly,
		summary.TotalSteps,
		summary.PassedSteps,
		run.Error,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("save run: insert run: %w", err)
	}

	for i, v := range run.ValidationResults {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO step_results
			(run_id, seq, step_id, passed, critical_failures, errors, warnings, execution_time_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.RunID, i+1, v.StepID, v.Passed, v.CriticalCount, v.ErrorCount, v.WarningCount, v.ExecutionTimeMs,
		)
		if err != nil {
			return fmt.Errorf("save run: insert step %s: %w", v.StepID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save run: commit: %w", err)
	}
	return nil
}

// GetRun returns the full stored result. It returns ErrNotFound for unknown
// ids.
func (s *Store) GetRun(ctx context.Context, runID string) (*harness.RunResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM runs WHERE id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	var run harness.RunResult
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("get run %s: unmarshal: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns run summaries, newest first.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]RunSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, flow_id, flow_name, agent_ref, start_unix_ns, duration_ms,
		       success, stopped_early, total_steps, passed_steps, error
		FROM runs`
	args := []any{}
	if opts.FlowID != "" {
		query += ` WHERE flow_id = ?`
		args = append(args, opts.FlowID)
	}
	query += ` ORDER BY start_unix_ns DESC, id COLLATE BINARY DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			r       RunSummary
			startNs int64
		)
		if err := rows.Scan(
			&r.RunID, &r.FlowID, &r.FlowName, &r.AgentRef, &startNs, &r.DurationMs,
			&r.Success, &r.StoppedEarly, &r.TotalSteps, &r.PassedSteps, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartTime = time.Unix(0, startNs).UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// StepPassRate returns how often a step id passed across stored runs of a
// flow, as passed and total counts.
func (s *Store) StepPassRate(ctx context.Context, flowID, stepID string) (passed, total int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(sr.passed), 0), COUNT(*)
		FROM step_results sr
		JOIN runs r ON r.id = sr.run_id
		WHERE r.flow_id = ? AND sr.step_id = ?
	`, flowID, stepID).Scan(&passed, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("step pass rate: %w", err)
	}
	return passed, total, nil
}
